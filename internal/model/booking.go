package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type BookingAction string

const (
	ActionConfirm  BookingAction = "confirm"
	ActionCancel   BookingAction = "cancel"
	ActionComplete BookingAction = "complete"
)

// Terminal reports whether no further transitions are permitted.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// Transition applies action to s following
//
//	pending   --confirm-->  confirmed
//	pending   --cancel--->  cancelled
//	confirmed --cancel--->  cancelled
//	confirmed --complete->  completed
func (s BookingStatus) Transition(action BookingAction) (BookingStatus, error) {
	switch {
	case s == BookingPending && action == ActionConfirm:
		return BookingConfirmed, nil
	case (s == BookingPending || s == BookingConfirmed) && action == ActionCancel:
		return BookingCancelled, nil
	case s == BookingConfirmed && action == ActionComplete:
		return BookingCompleted, nil
	}
	return s, fmt.Errorf("%w: cannot %s a %s booking", ErrInvalidTransition, action, s)
}

type Booking struct {
	ID             int64           `json:"id"`
	Session        Ref             `json:"session"`
	SessionTitle   string          `json:"session_title,omitempty"`
	SessionImage   string          `json:"session_image,omitempty"`
	CreatorName    string          `json:"creator_name,omitempty"`
	User           Ref             `json:"user"`
	UserName       string          `json:"user_name,omitempty"`
	BookingDate    time.Time       `json:"booking_date"`
	AttendeesCount int             `json:"attendees_count"`
	UserNotes      string          `json:"user_notes,omitempty"`
	CreatorNotes   string          `json:"creator_notes,omitempty"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Currency       string          `json:"currency,omitempty"`
	Status         BookingStatus   `json:"status"`
	PaymentStatus  string          `json:"payment_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type BookingRequest struct {
	Session        int64     `json:"session"`
	BookingDate    time.Time `json:"booking_date"`
	AttendeesCount int       `json:"attendees_count"`
	UserNotes      string    `json:"user_notes"`
}

type UserDashboard struct {
	User           Identity  `json:"user"`
	ActiveBookings []Booking `json:"active_bookings"`
	PastBookings   []Booking `json:"past_bookings"`
	TotalBookings  int       `json:"total_bookings"`
}

type CreatorStats struct {
	TotalSessions     int `json:"total_sessions"`
	PublishedSessions int `json:"published_sessions"`
	TotalBookings     int `json:"total_bookings"`
	PendingBookings   int `json:"pending_bookings"`
	ConfirmedBookings int `json:"confirmed_bookings"`
}

type CreatorDashboard struct {
	User              Identity     `json:"user"`
	Sessions          []Session    `json:"sessions"`
	PendingBookings   []Booking    `json:"pending_bookings"`
	ConfirmedBookings []Booking    `json:"confirmed_bookings"`
	Stats             CreatorStats `json:"stats"`
}

// Ref is a foreign key the backend renders either as a bare id (list
// serializers) or as a nested object (detail serializers).
type Ref struct {
	ID int64
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		r.ID = 0
		return nil
	}
	if data[0] == '{' {
		var nested struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return err
		}
		r.ID = nested.ID
		return nil
	}
	return json.Unmarshal(data, &r.ID)
}
