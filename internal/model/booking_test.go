package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatusTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from    BookingStatus
		action  BookingAction
		want    BookingStatus
		invalid bool
	}{
		{from: BookingPending, action: ActionConfirm, want: BookingConfirmed},
		{from: BookingPending, action: ActionCancel, want: BookingCancelled},
		{from: BookingConfirmed, action: ActionCancel, want: BookingCancelled},
		{from: BookingConfirmed, action: ActionComplete, want: BookingCompleted},
		{from: BookingConfirmed, action: ActionConfirm, invalid: true},
		{from: BookingPending, action: ActionComplete, invalid: true},
		{from: BookingCancelled, action: ActionCancel, invalid: true},
		{from: BookingCancelled, action: ActionConfirm, invalid: true},
		{from: BookingCompleted, action: ActionCancel, invalid: true},
		{from: BookingCompleted, action: ActionConfirm, invalid: true},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			got, err := tc.from.Transition(tc.action)
			if tc.invalid {
				require.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tc.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBookingStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, BookingPending.Terminal())
	assert.False(t, BookingConfirmed.Terminal())
	assert.True(t, BookingCancelled.Terminal())
	assert.True(t, BookingCompleted.Terminal())
}

func TestBookingDecodesListAndDetailShapes(t *testing.T) {
	t.Parallel()

	t.Run("list serializer renders bare ids", func(t *testing.T) {
		var b Booking
		require.NoError(t, json.Unmarshal([]byte(`{"id":3,"session":7,"status":"pending","total_price":"30.00"}`), &b))
		assert.Equal(t, int64(7), b.Session.ID)
		assert.Equal(t, "30", b.TotalPrice.String())
	})

	t.Run("detail serializer nests objects", func(t *testing.T) {
		var b Booking
		payload := `{"id":3,"session":{"id":9,"title":"Go"},"user":{"id":4,"email":"s@example.com"},"status":"confirmed","total_price":"50.00"}`
		require.NoError(t, json.Unmarshal([]byte(payload), &b))
		assert.Equal(t, int64(9), b.Session.ID)
		assert.Equal(t, int64(4), b.User.ID)
		assert.Equal(t, BookingConfirmed, b.Status)
	})
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, ok := ParseRole("student")
	require.True(t, ok)
	assert.Equal(t, RoleStudent, role)

	role, ok = ParseRole("Tutor")
	require.True(t, ok)
	assert.Equal(t, RoleCreator, role)

	_, ok = ParseRole("admin")
	assert.False(t, ok)
}
