package booking

import "session-marketplace/internal/model"

// EnrolledSessionIDs returns the sessions the bookings hold a seat on.
// Cancelled bookings do not count.
func EnrolledSessionIDs(bookings []model.Booking) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(bookings))
	for _, b := range bookings {
		if b.Status == model.BookingCancelled {
			continue
		}
		ids[b.Session.ID] = struct{}{}
	}
	return ids
}

func IsEnrolled(bookings []model.Booking, sessionID int64) bool {
	_, ok := EnrolledSessionIDs(bookings)[sessionID]
	return ok
}
