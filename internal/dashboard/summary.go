// Package dashboard derives read-only views from fetched booking and session
// collections. Nothing here touches the network except View, which only
// calls the fetch function it is given.
package dashboard

import (
	"github.com/shopspring/decimal"

	"session-marketplace/internal/booking"
	"session-marketplace/internal/model"
)

type Summary struct {
	Total     int             `json:"total"`
	Confirmed int             `json:"confirmed"`
	Pending   int             `json:"pending"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Summarize counts bookings and sums revenue. Only confirmed bookings earn
// revenue.
func Summarize(bookings []model.Booking) Summary {
	summary := Summary{Total: len(bookings), Revenue: decimal.Zero}
	for _, b := range bookings {
		switch b.Status {
		case model.BookingConfirmed:
			summary.Confirmed++
			summary.Revenue = summary.Revenue.Add(b.TotalPrice)
		case model.BookingPending:
			summary.Pending++
		}
	}
	return summary
}

type StudentView struct {
	User     model.Identity
	Active   []model.Booking
	Past     []model.Booking
	Enrolled map[int64]struct{}
	Summary  Summary
}

func ForStudent(dash model.UserDashboard) StudentView {
	return StudentView{
		User:     dash.User,
		Active:   nonNil(dash.ActiveBookings),
		Past:     nonNil(dash.PastBookings),
		Enrolled: booking.EnrolledSessionIDs(dash.ActiveBookings),
		Summary:  Summarize(dash.ActiveBookings),
	}
}

type CreatorView struct {
	User      model.Identity
	Sessions  []model.Session
	Pending   []model.Booking
	Confirmed []model.Booking
	Stats     model.CreatorStats
	Summary   Summary
}

func ForCreator(dash model.CreatorDashboard) CreatorView {
	all := make([]model.Booking, 0, len(dash.PendingBookings)+len(dash.ConfirmedBookings))
	all = append(all, dash.PendingBookings...)
	all = append(all, dash.ConfirmedBookings...)

	sessions := dash.Sessions
	if sessions == nil {
		sessions = []model.Session{}
	}

	return CreatorView{
		User:      dash.User,
		Sessions:  sessions,
		Pending:   nonNil(dash.PendingBookings),
		Confirmed: nonNil(dash.ConfirmedBookings),
		Stats:     dash.Stats,
		Summary:   Summarize(all),
	}
}

func nonNil(bookings []model.Booking) []model.Booking {
	if bookings == nil {
		return []model.Booking{}
	}
	return bookings
}
