package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"session-marketplace/internal/model"
)

// sessionInput builds a new session from key=value pairs. New sessions
// default to a one-hour draft priced in USD.
func sessionInput(values map[string]string) (model.SessionInput, error) {
	input := model.SessionInput{
		DurationMinutes: 60,
		Currency:        "USD",
		MaxAttendees:    1,
		SessionType:     "online",
		Status:          model.SessionDraft,
		Price:           decimal.Zero,
	}

	for _, key := range sortedKeys(values) {
		value := strings.TrimSpace(values[key])
		switch key {
		case "title":
			input.Title = value
		case "description":
			input.Description = value
		case "category":
			input.Category = value
		case "location":
			input.Location = value
		case "session_type":
			input.SessionType = value
		case "image_url":
			input.ImageURL = value
		case "thumbnail_url":
			input.ThumbnailURL = value
		case "currency":
			input.Currency = strings.ToUpper(value)
		case "duration_minutes":
			n, err := positiveInt(key, value)
			if err != nil {
				return model.SessionInput{}, err
			}
			input.DurationMinutes = n
		case "max_attendees":
			n, err := positiveInt(key, value)
			if err != nil {
				return model.SessionInput{}, err
			}
			input.MaxAttendees = n
		case "price":
			price, err := decimal.NewFromString(value)
			if err != nil || price.IsNegative() {
				return model.SessionInput{}, fmt.Errorf("%w: price must be a non-negative amount", model.ErrInvalidInput)
			}
			input.Price = price
		case "status":
			status := model.SessionStatus(strings.ToLower(value))
			if !status.Valid() {
				return model.SessionInput{}, fmt.Errorf("%w: status must be draft, published or cancelled", model.ErrInvalidInput)
			}
			input.Status = status
		default:
			return model.SessionInput{}, fmt.Errorf("%w: unknown session field %q", model.ErrInvalidInput, key)
		}
	}

	if input.Title == "" {
		return model.SessionInput{}, fmt.Errorf("%w: title is required", model.ErrInvalidInput)
	}
	return input, nil
}
