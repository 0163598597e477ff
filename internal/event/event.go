package event

import "time"

type Type string

const (
	TypeLoggedIn        Type = "session.logged_in"
	TypeLoggedOut       Type = "session.logged_out"
	TypeProfileUpdated  Type = "profile.updated"
	TypeBookingsChanged Type = "bookings.changed"
	TypeSessionsChanged Type = "sessions.changed"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// New stamps an event with a fresh id and the current time.
func New(t Type, payload any) Event {
	return Event{ID: newID(), Type: t, Payload: payload, Timestamp: time.Now().UTC()}
}
