package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"session-marketplace/internal/model"
)

func TestEnrolledSessionIDs(t *testing.T) {
	t.Parallel()

	bookings := []model.Booking{
		{Session: model.Ref{ID: 1}, Status: model.BookingPending},
		{Session: model.Ref{ID: 2}, Status: model.BookingConfirmed},
		{Session: model.Ref{ID: 3}, Status: model.BookingCancelled},
		{Session: model.Ref{ID: 2}, Status: model.BookingCancelled},
	}

	ids := EnrolledSessionIDs(bookings)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, ids)
	assert.True(t, IsEnrolled(bookings, 1))
	assert.False(t, IsEnrolled(bookings, 3))
	assert.False(t, IsEnrolled(nil, 1))
	assert.Empty(t, EnrolledSessionIDs(nil))
}
