package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"session-marketplace/internal/booking"
	"session-marketplace/internal/dashboard"
	"session-marketplace/internal/event"
	"session-marketplace/internal/media"
	"session-marketplace/internal/model"
	"session-marketplace/pkg/apierror"
)

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, args []string) error
}

func (a *App) commands() []command {
	return []command{
		{"login", "login github|google [--role student|creator]", "sign in through a provider", a.login},
		{"logout", "logout", "forget stored credentials", a.logout},
		{"whoami", "whoami", "show the signed-in user", a.whoami},
		{"profile", "profile key=value...", "update first_name, last_name, bio, phone or avatar", a.profile},
		{"sessions", "sessions [--category name] [--mine]", "list published sessions, or your own as a creator", a.sessions},
		{"session", "session <id>", "show one session", a.sessionDetail},
		{"enroll", "enroll <session-id> [notes...]", "book a seat on a session", a.enroll},
		{"bookings", "bookings [--past]", "list your bookings", a.listBookings},
		{"confirm", "confirm <booking-id>", "confirm a pending booking on your session", a.confirm},
		{"cancel", "cancel <booking-id>", "cancel a pending or confirmed booking", a.cancel},
		{"dashboard", "dashboard", "show your dashboard", a.dashboard},
		{"create-session", "create-session key=value...", "create a session", a.createSession},
		{"edit-session", "edit-session <id> key=value...", "change description, location, session_type, max_attendees or status", a.editSession},
		{"delete-session", "delete-session <id>", "delete one of your sessions", a.deleteSession},
		{"upload", "upload <path>", "upload a session thumbnail", a.upload},
		{"shell", "shell", "run commands interactively", a.shell},
	}
}

// Run restores any stored session and executes one command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		return nil
	}

	a.session.Restore(ctx)
	return a.dispatch(ctx, args)
}

func (a *App) dispatch(ctx context.Context, args []string) error {
	for _, cmd := range a.commands() {
		if cmd.name == args[0] {
			return cmd.run(ctx, args[1:])
		}
	}
	return fmt.Errorf("%w: unknown command %q, run `marketplace help`", model.ErrInvalidInput, args[0])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "usage: marketplace <command> [arguments]")
	fmt.Fprintln(a.out)
	tw := newTable(a.out)
	for _, cmd := range a.commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.usage, cmd.summary)
	}
	_ = tw.Flush()
}

// Describe turns err into a message for the terminal.
func Describe(err error) string {
	switch {
	case errors.Is(err, model.ErrSessionTerminated):
		return "your session has expired, run `marketplace login` to sign in again"
	case errors.Is(err, model.ErrNotAuthenticated):
		return "you are not signed in, run `marketplace login`"
	case errors.Is(err, model.ErrTransport):
		return "cannot reach the marketplace backend: " + err.Error()
	}
	return apierror.UserMessage(err, "")
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	roleFlag := fs.String("role", "student", "student or creator")

	var provider string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		provider, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if provider == "" {
		provider = fs.Arg(0)
	}

	role, ok := model.ParseRole(*roleFlag)
	if !ok {
		return fmt.Errorf("%w: role must be student or creator", model.ErrInvalidInput)
	}

	var (
		identity model.Identity
		err      error
	)
	switch strings.ToLower(provider) {
	case "github":
		fmt.Fprintln(a.out, "Opening GitHub in your browser...")
		identity, err = a.negotiator.LoginWithCode(ctx, role)
	case "google":
		fmt.Fprintln(a.out, "Opening Google in your browser...")
		identity, err = a.negotiator.LoginWithToken(ctx, role)
	default:
		return fmt.Errorf("%w: provider must be github or google", model.ErrInvalidInput)
	}
	if errors.Is(err, model.ErrProviderCancelled) {
		fmt.Fprintln(a.out, "Sign-in cancelled.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Signed in as %s (%s).\n", identity.FullName(), identity.Role)
	return nil
}

func (a *App) logout(_ context.Context, _ []string) error {
	a.session.Logout()
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) whoami(_ context.Context, _ []string) error {
	identity, ok := a.session.Identity()
	if !ok {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}

	tw := newTable(a.out)
	fmt.Fprintf(tw, "Name\t%s\n", identity.FullName())
	fmt.Fprintf(tw, "Email\t%s\n", identity.Email)
	fmt.Fprintf(tw, "Role\t%s\n", identity.Role)
	if identity.Bio != "" {
		fmt.Fprintf(tw, "Bio\t%s\n", identity.Bio)
	}
	if identity.Phone != "" {
		fmt.Fprintf(tw, "Phone\t%s\n", identity.Phone)
	}
	if expires, ok := a.session.AccessExpiresAt(); ok {
		fmt.Fprintf(tw, "Access token\texpires %s\n", humanize.Time(expires))
	}
	return tw.Flush()
}

func (a *App) profile(ctx context.Context, args []string) error {
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: nothing to update", model.ErrInvalidInput)
	}

	var update model.ProfileUpdate
	for _, key := range sortedKeys(values) {
		v := values[key]
		switch key {
		case "first_name":
			update.FirstName = &v
		case "last_name":
			update.LastName = &v
		case "bio":
			update.Bio = &v
		case "phone":
			update.Phone = &v
		case "avatar":
			update.Avatar = &v
		default:
			return fmt.Errorf("%w: unknown profile field %q", model.ErrInvalidInput, key)
		}
	}

	identity, err := a.session.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Profile updated for %s.\n", identity.FullName())
	return nil
}

func (a *App) sessions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(a.out)
	category := fs.String("category", "", "only show this category")
	mine := fs.Bool("mine", false, "list your own sessions, drafts included")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := a.api.ListSessions
	if *mine {
		if !a.session.IsCreator() {
			return fmt.Errorf("%w: only creators have sessions of their own", model.ErrForbiddenRole)
		}
		list = a.api.MySessions
	}

	all, err := list(ctx)
	if err != nil {
		return err
	}

	shown := dashboard.FilterByCategory(all, *category)
	if len(shown) == 0 {
		fmt.Fprintln(a.out, "No sessions found.")
	} else {
		renderSessions(a.out, shown)
	}
	if categories := dashboard.Categories(all); len(categories) > 0 {
		fmt.Fprintf(a.out, "\nCategories: %s\n", strings.Join(categories, ", "))
	}
	return nil
}

func (a *App) sessionDetail(ctx context.Context, args []string) error {
	id, err := idArg(args, "session id")
	if err != nil {
		return err
	}

	s, err := a.api.GetSession(ctx, id)
	if err != nil {
		return err
	}
	renderSession(a.out, s)

	switch {
	case a.session.IsStudent():
		dash, err := a.api.UserDashboard(ctx)
		if err != nil {
			return err
		}
		if booking.IsEnrolled(dash.ActiveBookings, id) {
			fmt.Fprintln(a.out, "\nYou are enrolled in this session.")
		} else if s.Bookable() {
			fmt.Fprintf(a.out, "\nBook it with `marketplace enroll %d`.\n", id)
		}
	case a.ownsSession(s):
		bookings, err := a.api.SessionBookings(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out)
		renderBookings(a.out, bookings)
	}
	return nil
}

func (a *App) ownsSession(s model.Session) bool {
	identity, ok := a.session.Identity()
	return ok && a.session.IsCreator() && s.Creator != nil && s.Creator.ID == identity.ID
}

func (a *App) enroll(ctx context.Context, args []string) error {
	id, err := idArg(args, "session id")
	if err != nil {
		return err
	}

	created, err := a.bookings.Enroll(ctx, id, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking #%d created (%s).\n", created.ID, created.Status)
	return nil
}

func (a *App) listBookings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bookings", flag.ContinueOnError)
	fs.SetOutput(a.out)
	past := fs.Bool("past", false, "show completed and cancelled bookings")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.session.IsAuthenticated() {
		return model.ErrNotAuthenticated
	}

	var (
		list []model.Booking
		err  error
	)
	switch {
	case *past:
		list, err = a.api.PastBookings(ctx)
	case a.session.IsCreator():
		list, err = a.api.ActiveBookings(ctx)
	default:
		list, err = a.api.MyBookings(ctx)
	}
	if err != nil {
		return err
	}

	renderBookings(a.out, list)
	return nil
}

func (a *App) confirm(ctx context.Context, args []string) error {
	id, err := idArg(args, "booking id")
	if err != nil {
		return err
	}
	if !a.session.IsAuthenticated() {
		return model.ErrNotAuthenticated
	}
	if !a.session.IsCreator() {
		return fmt.Errorf("%w: only creators can confirm bookings", model.ErrForbiddenRole)
	}

	target, err := a.findBooking(ctx, id)
	if err != nil {
		return err
	}
	updated, err := a.bookings.Confirm(ctx, target)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking #%d confirmed.\n", updated.ID)
	return nil
}

func (a *App) cancel(ctx context.Context, args []string) error {
	id, err := idArg(args, "booking id")
	if err != nil {
		return err
	}
	if !a.session.IsAuthenticated() {
		return model.ErrNotAuthenticated
	}

	target, err := a.findBooking(ctx, id)
	if err != nil {
		return err
	}
	updated, err := a.bookings.Cancel(ctx, target)
	if errors.Is(err, model.ErrCancelDeclined) {
		fmt.Fprintln(a.out, "Booking kept.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Booking #%d cancelled.\n", updated.ID)
	return nil
}

// findBooking locates id among the bookings visible to the current user so
// its status can be checked before any action is sent.
func (a *App) findBooking(ctx context.Context, id int64) (model.Booking, error) {
	var candidates []model.Booking
	if a.session.IsCreator() {
		dash, err := a.api.CreatorDashboard(ctx)
		if err != nil {
			return model.Booking{}, err
		}
		candidates = append(candidates, dash.PendingBookings...)
		candidates = append(candidates, dash.ConfirmedBookings...)
		past, err := a.api.PastBookings(ctx)
		if err != nil {
			return model.Booking{}, err
		}
		candidates = append(candidates, past...)
	} else {
		mine, err := a.api.MyBookings(ctx)
		if err != nil {
			return model.Booking{}, err
		}
		candidates = mine
	}

	for _, b := range candidates {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, fmt.Errorf("%w: booking #%d", model.ErrNotFound, id)
}

func (a *App) dashboard(ctx context.Context, _ []string) error {
	view, err := a.ownOverview(ctx, false)
	if err != nil {
		return err
	}
	renderOverview(a.out, view)
	return nil
}

func (a *App) createSession(ctx context.Context, args []string) error {
	if !a.session.IsCreator() {
		return fmt.Errorf("%w: only creators can create sessions", model.ErrForbiddenRole)
	}
	values, err := parseAssignments(args)
	if err != nil {
		return err
	}

	input, err := sessionInput(values)
	if err != nil {
		return err
	}

	created, err := a.api.CreateSession(ctx, input)
	if err != nil {
		return err
	}
	a.bus.Publish(event.New(event.TypeSessionsChanged, created))
	fmt.Fprintf(a.out, "Session #%d created (%s).\n", created.ID, created.Status)
	return nil
}

func (a *App) editSession(ctx context.Context, args []string) error {
	id, err := idArg(args, "session id")
	if err != nil {
		return err
	}
	if !a.session.IsCreator() {
		return fmt.Errorf("%w: only creators can edit sessions", model.ErrForbiddenRole)
	}
	values, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	current, err := a.api.GetSession(ctx, id)
	if err != nil {
		return err
	}
	update := model.UpdateFrom(current)
	for _, key := range sortedKeys(values) {
		value := values[key]
		switch key {
		case "description":
			update.Description = value
		case "location":
			update.Location = value
		case "session_type":
			update.SessionType = value
		case "max_attendees":
			n, err := positiveInt(key, value)
			if err != nil {
				return err
			}
			update.MaxAttendees = n
		case "status":
			status := model.SessionStatus(strings.ToLower(value))
			if !status.Valid() {
				return fmt.Errorf("%w: status must be draft, published or cancelled", model.ErrInvalidInput)
			}
			update.Status = status
		default:
			return fmt.Errorf("%w: %s cannot be changed after creation", model.ErrInvalidInput, key)
		}
	}

	updated, err := a.api.UpdateSession(ctx, id, update)
	if err != nil {
		return err
	}
	a.bus.Publish(event.New(event.TypeSessionsChanged, updated))
	fmt.Fprintf(a.out, "Session #%d updated.\n", updated.ID)
	return nil
}

func (a *App) deleteSession(ctx context.Context, args []string) error {
	id, err := idArg(args, "session id")
	if err != nil {
		return err
	}
	if !a.session.IsCreator() {
		return fmt.Errorf("%w: only creators can delete sessions", model.ErrForbiddenRole)
	}

	prompter := &linePrompter{in: a.in, out: a.out}
	ok, err := prompter.Confirm(ctx, fmt.Sprintf("Delete session #%d?", id))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Session kept.")
		return nil
	}

	if err := a.api.DeleteSession(ctx, id); err != nil {
		return err
	}
	a.bus.Publish(event.New(event.TypeSessionsChanged, id))
	fmt.Fprintf(a.out, "Session #%d deleted.\n", id)
	return nil
}

func (a *App) upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: upload <path>", model.ErrInvalidInput)
	}
	if !a.session.IsAuthenticated() {
		return model.ErrNotAuthenticated
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	prepared, err := media.PrepareImage(filepath.Base(args[0]), data, a.cfg.UploadMaxBytes)
	if err != nil {
		return err
	}

	result, err := a.api.UploadImage(ctx, prepared.Filename, prepared.ContentType, prepared.Data)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s (%dx%d, %s, was %s).\n",
		prepared.Filename, prepared.Width, prepared.Height,
		humanize.Bytes(uint64(len(prepared.Data))), humanize.Bytes(uint64(len(data))))
	tw := newTable(a.out)
	fmt.Fprintf(tw, "image_url\t%s\n", result.ImageURL)
	fmt.Fprintf(tw, "thumbnail_url\t%s\n", result.ThumbnailURL)
	return tw.Flush()
}

func idArg(args []string, what string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: %s is required", model.ErrInvalidInput, what)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number", model.ErrInvalidInput, what)
	}
	return id, nil
}

func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", model.ErrInvalidInput, arg)
		}
		values[key] = value
	}
	return values, nil
}

func positiveInt(key string, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number", model.ErrInvalidInput, key)
	}
	return n, nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
