// Package booking issues enrollment and status-change requests. It never
// edits a cached collection itself: callers re-fetch after a
// bookings.changed event.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"session-marketplace/internal/event"
	"session-marketplace/internal/model"
)

const defaultAttendees = 1

// Backend is the part of the API client the manager drives.
type Backend interface {
	GetSession(ctx context.Context, id int64) (model.Session, error)
	UserDashboard(ctx context.Context) (model.UserDashboard, error)
	CreateBooking(ctx context.Context, req model.BookingRequest) (model.Booking, error)
	ConfirmBooking(ctx context.Context, id int64) (model.Booking, error)
	CancelBooking(ctx context.Context, id int64) (model.Booking, error)
}

// Roles is satisfied by *session.Context.
type Roles interface {
	IsAuthenticated() bool
	IsStudent() bool
	IsCreator() bool
}

// Prompter asks the user to approve a destructive action.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, question string) (bool, error)

func (f PromptFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// AlwaysConfirm approves every prompt.
var AlwaysConfirm Prompter = PromptFunc(func(context.Context, string) (bool, error) { return true, nil })

type Manager struct {
	backend  Backend
	roles    Roles
	prompter Prompter
	bus      event.Bus
	now      func() time.Time
}

func NewManager(backend Backend, roles Roles, prompter Prompter, bus event.Bus) *Manager {
	if prompter == nil {
		prompter = AlwaysConfirm
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &Manager{
		backend:  backend,
		roles:    roles,
		prompter: prompter,
		bus:      bus,
		now:      time.Now,
	}
}

// Enroll books one seat on sessionID for the signed-in student. The session
// fetch, the enrollment check and the booking request run in that order.
func (m *Manager) Enroll(ctx context.Context, sessionID int64, notes string) (model.Booking, error) {
	if !m.roles.IsAuthenticated() {
		return model.Booking{}, model.ErrNotAuthenticated
	}
	if !m.roles.IsStudent() || m.roles.IsCreator() {
		return model.Booking{}, fmt.Errorf("%w: only students can enroll", model.ErrForbiddenRole)
	}
	if sessionID <= 0 {
		return model.Booking{}, fmt.Errorf("%w: session id must be positive", model.ErrInvalidInput)
	}

	session, err := m.backend.GetSession(ctx, sessionID)
	if err != nil {
		return model.Booking{}, err
	}
	if !session.Bookable() {
		return model.Booking{}, fmt.Errorf("%w: %q is %s", model.ErrSessionUnavailable, session.Title, session.Status)
	}

	dash, err := m.backend.UserDashboard(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	if IsEnrolled(dash.ActiveBookings, sessionID) {
		return model.Booking{}, model.ErrAlreadyEnrolled
	}

	created, err := m.backend.CreateBooking(ctx, model.BookingRequest{
		Session:        sessionID,
		BookingDate:    m.now().UTC(),
		AttendeesCount: defaultAttendees,
		UserNotes:      notes,
	})
	if err != nil {
		return model.Booking{}, err
	}

	slog.Info("enrolled", "session_id", sessionID, "booking_id", created.ID)
	m.changed(created)
	return created, nil
}

// Confirm accepts a pending booking on one of the creator's sessions.
func (m *Manager) Confirm(ctx context.Context, booking model.Booking) (model.Booking, error) {
	if !m.roles.IsAuthenticated() {
		return model.Booking{}, model.ErrNotAuthenticated
	}
	if !m.roles.IsCreator() {
		return model.Booking{}, fmt.Errorf("%w: only creators can confirm bookings", model.ErrForbiddenRole)
	}
	if _, err := booking.Status.Transition(model.ActionConfirm); err != nil {
		return model.Booking{}, err
	}

	updated, err := m.backend.ConfirmBooking(ctx, booking.ID)
	if err != nil {
		return model.Booking{}, err
	}

	slog.Info("booking confirmed", "booking_id", booking.ID)
	m.changed(updated)
	return updated, nil
}

// Cancel withdraws a pending or confirmed booking after the prompter agrees.
func (m *Manager) Cancel(ctx context.Context, booking model.Booking) (model.Booking, error) {
	if !m.roles.IsAuthenticated() {
		return model.Booking{}, model.ErrNotAuthenticated
	}
	if _, err := booking.Status.Transition(model.ActionCancel); err != nil {
		return model.Booking{}, err
	}

	question := fmt.Sprintf("Cancel booking #%d", booking.ID)
	if booking.SessionTitle != "" {
		question += fmt.Sprintf(" for %q", booking.SessionTitle)
	}
	ok, err := m.prompter.Confirm(ctx, question+"?")
	if err != nil {
		return model.Booking{}, fmt.Errorf("prompt: %w", err)
	}
	if !ok {
		return model.Booking{}, model.ErrCancelDeclined
	}

	updated, err := m.backend.CancelBooking(ctx, booking.ID)
	if err != nil {
		return model.Booking{}, err
	}

	slog.Info("booking cancelled", "booking_id", booking.ID)
	m.changed(updated)
	return updated, nil
}

func (m *Manager) changed(booking model.Booking) {
	m.bus.Publish(event.New(event.TypeBookingsChanged, booking))
}
