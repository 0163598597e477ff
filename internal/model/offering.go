package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionDraft     SessionStatus = "draft"
	SessionPublished SessionStatus = "published"
	SessionCancelled SessionStatus = "cancelled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionDraft, SessionPublished, SessionCancelled:
		return true
	default:
		return false
	}
}

// Session is a bookable offering published by a creator. List responses carry
// the creator's display fields, detail responses the full Creator identity.
type Session struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	MaxAttendees    int             `json:"max_attendees"`
	Location        string          `json:"location"`
	SessionType     string          `json:"session_type"`
	ImageURL        string          `json:"image_url,omitempty"`
	ThumbnailURL    string          `json:"thumbnail_url,omitempty"`
	Status          SessionStatus   `json:"status"`
	Creator         *Identity       `json:"creator,omitempty"`
	CreatorName     string          `json:"creator_name,omitempty"`
	CreatorUsername string          `json:"creator_username,omitempty"`
	BookingsCount   int             `json:"bookings_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Bookable reports whether the backend will accept new bookings for the session.
func (s Session) Bookable() bool {
	return s.Status == SessionPublished
}

type SessionInput struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	MaxAttendees    int             `json:"max_attendees"`
	Location        string          `json:"location"`
	SessionType     string          `json:"session_type"`
	ImageURL        string          `json:"image_url,omitempty"`
	ThumbnailURL    string          `json:"thumbnail_url,omitempty"`
	Status          SessionStatus   `json:"status"`
}

// SessionUpdate holds the only fields that may change after creation.
type SessionUpdate struct {
	Description  string        `json:"description"`
	Location     string        `json:"location"`
	SessionType  string        `json:"session_type"`
	MaxAttendees int           `json:"max_attendees"`
	Status       SessionStatus `json:"status"`
}

// UpdateFrom seeds an update with the current values of s.
func UpdateFrom(s Session) SessionUpdate {
	return SessionUpdate{
		Description:  s.Description,
		Location:     s.Location,
		SessionType:  s.SessionType,
		MaxAttendees: s.MaxAttendees,
		Status:       s.Status,
	}
}

type UploadResult struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}
