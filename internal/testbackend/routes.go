package testbackend

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"session-marketplace/internal/model"
)

const maxUploadBytes = 10 << 20

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()

	r.Route(APIPrefix, func(api chi.Router) {
		b.handle(api, http.MethodPost, "/auth/oauth/login/", http.HandlerFunc(b.oauthLogin))
		b.handle(api, http.MethodPost, "/auth/github/callback/", http.HandlerFunc(b.githubCallback))
		b.handle(api, http.MethodPost, "/auth/token/refresh/", http.HandlerFunc(b.refresh))

		b.handle(api, http.MethodGet, "/users/me/", b.authed(b.me))
		b.handle(api, http.MethodPut, "/users/update_profile/", b.authed(b.updateProfile))

		b.handle(api, http.MethodGet, "/sessions/", http.HandlerFunc(b.listSessions))
		b.handle(api, http.MethodPost, "/sessions/", b.authed(b.createSession))
		b.handle(api, http.MethodGet, "/sessions/my_sessions/", b.authed(b.mySessions))
		b.handle(api, http.MethodGet, "/sessions/{id}/", http.HandlerFunc(b.getSession))
		b.handle(api, http.MethodPut, "/sessions/{id}/", b.authed(b.updateSession))
		b.handle(api, http.MethodDelete, "/sessions/{id}/", b.authed(b.deleteSession))
		b.handle(api, http.MethodGet, "/sessions/{id}/bookings/", b.authed(b.sessionBookings))

		b.handle(api, http.MethodPost, "/bookings/", b.authed(b.createBooking))
		b.handle(api, http.MethodGet, "/bookings/my_bookings/", b.authed(b.myBookings))
		b.handle(api, http.MethodGet, "/bookings/active/", b.authed(b.bookingsByStatus(model.BookingPending, model.BookingConfirmed)))
		b.handle(api, http.MethodGet, "/bookings/past/", b.authed(b.bookingsByStatus(model.BookingCompleted, model.BookingCancelled)))
		b.handle(api, http.MethodPost, "/bookings/{id}/confirm/", b.authed(b.confirmBooking))
		b.handle(api, http.MethodPost, "/bookings/{id}/cancel/", b.authed(b.cancelBooking))

		b.handle(api, http.MethodGet, "/dashboard/user/", b.authed(b.userDashboard))
		b.handle(api, http.MethodGet, "/dashboard/creator/", b.authed(b.creatorDashboard))

		b.handle(api, http.MethodPost, "/storage/upload/", b.authed(b.upload))
	})

	return r
}

func (b *Backend) authed(h http.HandlerFunc) http.Handler {
	return b.requireAuth(h)
}

// handle registers h and records each call under "METHOD pattern" ahead of
// authentication, so rejected calls are counted too.
func (b *Backend) handle(r chi.Router, method string, pattern string, h http.Handler) {
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(io.LimitReader(req.Body, maxUploadBytes+1<<20))
		req.Body = io.NopCloser(bytes.NewReader(body))

		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:        method,
			Route:         pattern,
			Path:          req.URL.Path,
			Authorization: req.Header.Get("Authorization"),
			Body:          body,
		})
		key := method + " " + pattern
		var injected *failure
		if queue := b.failures[key]; len(queue) > 0 {
			injected = &queue[0]
			b.failures[key] = queue[1:]
		}
		b.mu.Unlock()

		if injected != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(injected.status)
			_, _ = w.Write([]byte(injected.body))
			return
		}
		h.ServeHTTP(w, req)
	}))
}

func (b *Backend) oauthLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider    string `json:"provider"`
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "Provider and access token are required")
		return
	}
	if payload.Provider != "google" {
		writeError(w, http.StatusBadRequest, "Unsupported provider")
		return
	}

	b.mu.Lock()
	userID, ok := b.googleTokens[payload.AccessToken]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid provider token")
		return
	}
	b.writeAuthResult(w, userID)
}

func (b *Backend) githubCallback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code"`
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Code == "" {
		writeError(w, http.StatusBadRequest, "Authorization code is required")
		return
	}

	b.mu.Lock()
	userID, ok := b.githubCodes[payload.Code]
	delete(b.githubCodes, payload.Code)
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "Failed to obtain access token from GitHub")
		return
	}
	b.writeAuthResult(w, userID)
}

func (b *Backend) writeAuthResult(w http.ResponseWriter, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user, ok := b.users[userID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown user")
		return
	}
	pair, err := b.issuePairLocked(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.AuthResult{Tokens: pair, User: *user})
}

func (b *Backend) refresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	userID, ok := b.validate(payload.Refresh, "refresh")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	b.mu.Lock()
	access, err := b.signLocked(userID, "access", b.accessTTL)
	b.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	user, _ := b.User(currentUserID(r))
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) updateProfile(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile payload")
		return
	}

	b.mu.Lock()
	user := b.users[currentUserID(r)]
	assign(&user.FirstName, update.FirstName)
	assign(&user.LastName, update.LastName)
	assign(&user.Avatar, update.Avatar)
	assign(&user.Bio, update.Bio)
	assign(&user.Phone, update.Phone)
	updated := *user
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, updated)
}

func (b *Backend) listSessions(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	results := make([]model.Session, 0, len(b.sessions))
	for _, session := range b.sortedSessionsLocked() {
		if session.Status == model.SessionPublished {
			results = append(results, b.listViewLocked(session))
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(results),
		"next":     nil,
		"previous": nil,
		"results":  results,
	})
}

func (b *Backend) mySessions(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	b.mu.Lock()
	if b.users[userID].Role != model.RoleCreator {
		b.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	results := []model.Session{}
	for _, session := range b.sortedSessionsLocked() {
		if session.Creator != nil && session.Creator.ID == userID {
			results = append(results, b.listViewLocked(session))
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, results)
}

func (b *Backend) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := b.Session(pathID(r))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (b *Backend) createSession(w http.ResponseWriter, r *http.Request) {
	var input model.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session payload")
		return
	}

	creator, _ := b.User(currentUserID(r))
	if creator.Role != model.RoleCreator {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Only creators can create sessions"})
		return
	}
	fieldErrors := map[string][]string{}
	if strings.TrimSpace(input.Title) == "" {
		fieldErrors["title"] = []string{"This field may not be blank."}
	}
	if input.Price.IsNegative() {
		fieldErrors["price"] = []string{"Price must be non-negative"}
	}
	if input.DurationMinutes <= 0 {
		fieldErrors["duration_minutes"] = []string{"Duration must be positive"}
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors)
		return
	}

	created := b.AddSession(model.Session{
		Title:           input.Title,
		Description:     input.Description,
		Category:        input.Category,
		DurationMinutes: input.DurationMinutes,
		Price:           input.Price,
		Currency:        input.Currency,
		MaxAttendees:    input.MaxAttendees,
		Location:        input.Location,
		SessionType:     input.SessionType,
		ImageURL:        input.ImageURL,
		ThumbnailURL:    input.ThumbnailURL,
		Status:          input.Status,
		Creator:         &creator,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (b *Backend) updateSession(w http.ResponseWriter, r *http.Request) {
	var update model.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session payload")
		return
	}

	b.mu.Lock()
	session, ok := b.sessions[pathID(r)]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if session.Creator == nil || session.Creator.ID != currentUserID(r) {
		b.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	session.Description = update.Description
	session.Location = update.Location
	session.SessionType = update.SessionType
	session.MaxAttendees = update.MaxAttendees
	if update.Status != "" {
		session.Status = update.Status
	}
	session.UpdatedAt = time.Now().UTC()
	updated := *session
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, updated)
}

func (b *Backend) deleteSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := pathID(r)
	session, ok := b.sessions[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if session.Creator == nil || session.Creator.ID != currentUserID(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	delete(b.sessions, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) sessionBookings(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[pathID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	if session.Creator == nil || session.Creator.ID != currentUserID(r) {
		writeError(w, http.StatusForbidden, "You do not have permission to view bookings for this session")
		return
	}
	writeJSON(w, http.StatusOK, b.filterBookingsLocked(func(bk *model.Booking) bool {
		return bk.Session.ID == session.ID
	}))
}

func (b *Backend) createBooking(w http.ResponseWriter, r *http.Request) {
	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid booking payload")
		return
	}
	userID := currentUserID(r)

	b.mu.Lock()
	session, ok := b.sessions[req.Session]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string][]string{"session": {"Invalid pk - object does not exist."}})
		return
	}
	if session.Status != model.SessionPublished {
		b.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"This session is not available for booking"}})
		return
	}
	if req.AttendeesCount > session.MaxAttendees && session.MaxAttendees > 0 {
		b.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Maximum " + strconv.Itoa(session.MaxAttendees) + " attendees allowed for this session"}})
		return
	}
	for _, existing := range b.bookings {
		if existing.User.ID == userID && existing.Session.ID == req.Session && !existing.Status.Terminal() {
			b.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"You already have a booking for this session"}})
			return
		}
	}
	b.mu.Unlock()

	created := b.AddBooking(model.Booking{
		Session:        model.Ref{ID: req.Session},
		User:           model.Ref{ID: userID},
		BookingDate:    req.BookingDate,
		AttendeesCount: req.AttendeesCount,
		UserNotes:      req.UserNotes,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (b *Backend) myBookings(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.filterBookingsLocked(func(bk *model.Booking) bool {
		return bk.User.ID == userID
	}))
}

func (b *Backend) bookingsByStatus(statuses ...model.BookingStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := currentUserID(r)

		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.filterBookingsLocked(func(bk *model.Booking) bool {
			return b.visibleLocked(bk, userID) && hasStatus(bk.Status, statuses)
		}))
	}
}

func (b *Backend) confirmBooking(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	booking, session, ok := b.bookingForActionLocked(w, r)
	if !ok {
		return
	}
	if session == nil || session.Creator == nil || session.Creator.ID != currentUserID(r) {
		writeError(w, http.StatusForbidden, "Only session creator can confirm bookings")
		return
	}
	booking.Status = model.BookingConfirmed
	writeJSON(w, http.StatusOK, b.detailViewLocked(booking))
}

func (b *Backend) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	booking, session, ok := b.bookingForActionLocked(w, r)
	if !ok {
		return
	}
	userID := currentUserID(r)
	isCreator := session != nil && session.Creator != nil && session.Creator.ID == userID
	if booking.User.ID != userID && !isCreator {
		writeError(w, http.StatusForbidden, "You do not have permission to cancel this booking")
		return
	}
	booking.Status = model.BookingCancelled
	writeJSON(w, http.StatusOK, b.detailViewLocked(booking))
}

func (b *Backend) bookingForActionLocked(w http.ResponseWriter, r *http.Request) (*model.Booking, *model.Session, bool) {
	booking, ok := b.bookings[pathID(r)]
	if !ok || !b.visibleLocked(booking, currentUserID(r)) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return nil, nil, false
	}
	return booking, b.sessions[booking.Session.ID], true
}

func (b *Backend) userDashboard(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	active := b.filterBookingsLocked(func(bk *model.Booking) bool {
		return bk.User.ID == userID && !bk.Status.Terminal()
	})
	past := b.filterBookingsLocked(func(bk *model.Booking) bool {
		return bk.User.ID == userID && bk.Status.Terminal()
	})
	writeJSON(w, http.StatusOK, model.UserDashboard{
		User:           *b.users[userID],
		ActiveBookings: active,
		PastBookings:   past,
		TotalBookings:  len(active) + len(past),
	})
}

func (b *Backend) creatorDashboard(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	b.mu.Lock()
	defer b.mu.Unlock()

	user := b.users[userID]
	if user.Role != model.RoleCreator {
		writeError(w, http.StatusForbidden, "Only creators can access this dashboard")
		return
	}

	sessions := []model.Session{}
	published := 0
	for _, session := range b.sortedSessionsLocked() {
		if session.Creator != nil && session.Creator.ID == userID {
			sessions = append(sessions, b.listViewLocked(session))
			if session.Status == model.SessionPublished {
				published++
			}
		}
	}
	owned := func(bk *model.Booking) bool {
		session, ok := b.sessions[bk.Session.ID]
		return ok && session.Creator != nil && session.Creator.ID == userID
	}
	all := b.filterBookingsLocked(owned)
	pending := b.filterBookingsLocked(func(bk *model.Booking) bool { return owned(bk) && bk.Status == model.BookingPending })
	confirmed := b.filterBookingsLocked(func(bk *model.Booking) bool { return owned(bk) && bk.Status == model.BookingConfirmed })

	writeJSON(w, http.StatusOK, model.CreatorDashboard{
		User:              *user,
		Sessions:          sessions,
		PendingBookings:   pending,
		ConfirmedBookings: confirmed,
		Stats: model.CreatorStats{
			TotalSessions:     len(sessions),
			PublishedSessions: published,
			TotalBookings:     len(all),
			PendingBookings:   len(pending),
			ConfirmedBookings: len(confirmed),
		},
	})
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read file")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "Only image files are allowed")
		return
	}
	if len(data) > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "File size must be less than 10MB")
		return
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, Upload{Filename: header.Filename, ContentType: contentType, Data: data})
	b.mu.Unlock()

	name := uuid.NewString()
	writeJSON(w, http.StatusOK, model.UploadResult{
		ImageURL:     "https://cdn.example.test/sessions/" + name + ".jpg",
		ThumbnailURL: "https://cdn.example.test/sessions/thumbnails/" + name + ".jpg",
	})
}

func (b *Backend) sortedSessionsLocked() []*model.Session {
	out := make([]*model.Session, 0, len(b.sessions))
	for _, session := range b.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) listViewLocked(session *model.Session) model.Session {
	view := *session
	view.Creator = nil
	if session.Creator != nil {
		view.CreatorName = session.Creator.FullName()
		view.CreatorUsername = session.Creator.Username
	}
	view.BookingsCount = 0
	for _, booking := range b.bookings {
		if booking.Session.ID == session.ID {
			view.BookingsCount++
		}
	}
	return view
}

// detailViewLocked renders the nested shape returned by confirm and cancel.
func (b *Backend) detailViewLocked(booking *model.Booking) map[string]any {
	raw, _ := json.Marshal(booking)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)

	if session, ok := b.sessions[booking.Session.ID]; ok {
		out["session"] = b.listViewLocked(session)
	}
	if user, ok := b.users[booking.User.ID]; ok {
		out["user"] = user
	}
	return out
}

func (b *Backend) filterBookingsLocked(keep func(*model.Booking) bool) []model.Booking {
	out := []model.Booking{}
	for _, booking := range b.bookings {
		if keep(booking) {
			out = append(out, *booking)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Backend) visibleLocked(booking *model.Booking, userID int64) bool {
	if booking.User.ID == userID {
		return true
	}
	session, ok := b.sessions[booking.Session.ID]
	return ok && session.Creator != nil && session.Creator.ID == userID
}

func hasStatus(status model.BookingStatus, statuses []model.BookingStatus) bool {
	for _, candidate := range statuses {
		if status == candidate {
			return true
		}
	}
	return false
}

func assign(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
