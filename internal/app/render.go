package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"session-marketplace/internal/dashboard"
	"session-marketplace/internal/model"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func money(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return amount.StringFixed(2) + " " + currency
}

func creatorName(s model.Session) string {
	switch {
	case s.CreatorName != "":
		return s.CreatorName
	case s.Creator != nil:
		return s.Creator.FullName()
	default:
		return "-"
	}
}

func renderSessions(w io.Writer, sessions []model.Session) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tPRICE\tDURATION\tCREATOR\tSTATUS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d min\t%s\t%s\n",
			s.ID, s.Title, s.Category, money(s.Price, s.Currency), s.DurationMinutes, creatorName(s), s.Status)
	}
	_ = tw.Flush()
}

func renderSession(w io.Writer, s model.Session) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Session\t#%d %s\n", s.ID, s.Title)
	fmt.Fprintf(tw, "Status\t%s\n", s.Status)
	fmt.Fprintf(tw, "Creator\t%s\n", creatorName(s))
	fmt.Fprintf(tw, "Category\t%s\n", s.Category)
	fmt.Fprintf(tw, "Price\t%s\n", money(s.Price, s.Currency))
	fmt.Fprintf(tw, "Duration\t%d min\n", s.DurationMinutes)
	fmt.Fprintf(tw, "Capacity\t%d\n", s.MaxAttendees)
	if s.Location != "" {
		fmt.Fprintf(tw, "Location\t%s (%s)\n", s.Location, s.SessionType)
	}
	if s.Description != "" {
		fmt.Fprintf(tw, "About\t%s\n", s.Description)
	}
	_ = tw.Flush()
}

func renderBookings(w io.Writer, bookings []model.Booking) {
	if len(bookings) == 0 {
		fmt.Fprintln(w, "No bookings.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSESSION\tSTATUS\tATTENDEES\tTOTAL\tBOOKED")
	for _, b := range bookings {
		title := b.SessionTitle
		if title == "" {
			title = fmt.Sprintf("#%d", b.Session.ID)
		}
		booked := "-"
		if !b.BookingDate.IsZero() {
			booked = humanize.Time(b.BookingDate)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			b.ID, title, b.Status, b.AttendeesCount, money(b.TotalPrice, b.Currency), booked)
	}
	_ = tw.Flush()
}

func renderSummary(w io.Writer, summary dashboard.Summary) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Bookings\t%d\n", summary.Total)
	fmt.Fprintf(tw, "Confirmed\t%d\n", summary.Confirmed)
	fmt.Fprintf(tw, "Pending\t%d\n", summary.Pending)
	fmt.Fprintf(tw, "Revenue\t%s\n", summary.Revenue.StringFixed(2))
	_ = tw.Flush()
}

func renderOverview(w io.Writer, view overview) {
	switch {
	case view.Creator != nil:
		c := view.Creator
		fmt.Fprintf(w, "Creator dashboard for %s\n\n", c.User.FullName())
		renderSummary(w, c.Summary)
		fmt.Fprintf(w, "\nSessions (%d, %d published)\n", c.Stats.TotalSessions, c.Stats.PublishedSessions)
		if len(c.Sessions) > 0 {
			renderSessions(w, c.Sessions)
		}
		fmt.Fprintln(w, "\nPending bookings")
		renderBookings(w, c.Pending)
		fmt.Fprintln(w, "\nConfirmed bookings")
		renderBookings(w, c.Confirmed)
	case view.Student != nil:
		s := view.Student
		fmt.Fprintf(w, "Dashboard for %s\n\n", s.User.FullName())
		renderSummary(w, s.Summary)
		fmt.Fprintln(w, "\nActive bookings")
		renderBookings(w, s.Active)
		fmt.Fprintln(w, "\nPast bookings")
		renderBookings(w, s.Past)
	}
}
