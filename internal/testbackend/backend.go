// Package testbackend is an in-process fake of the marketplace REST backend
// used by package tests. It issues HS256 JWTs, records every call and can be
// told to expire access tokens or revoke refresh tokens.
package testbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"session-marketplace/internal/model"
)

// APIPrefix is where the REST surface is mounted; BaseURL already includes it.
const APIPrefix = "/api"

type Call struct {
	Method        string
	Route         string
	Path          string
	Authorization string
	Body          []byte
}

type failure struct {
	status int
	body   string
}

type Backend struct {
	server *httptest.Server
	secret []byte

	mu             sync.Mutex
	accessTTL      time.Duration
	generation     int
	refreshRevoked bool
	users          map[int64]*model.Identity
	sessions       map[int64]*model.Session
	bookings       map[int64]*model.Booking
	githubCodes    map[string]int64
	googleTokens   map[string]int64
	failures       map[string][]failure
	calls          []Call
	uploads        []Upload
	nextID         int64
}

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ctxKey struct{}

// New starts a backend on a loopback port. Callers must Close it.
func New() *Backend {
	b := &Backend{
		secret:       []byte("test-backend-secret"),
		accessTTL:    5 * time.Minute,
		users:        map[int64]*model.Identity{},
		sessions:     map[int64]*model.Session{},
		bookings:     map[int64]*model.Booking{},
		githubCodes:  map[string]int64{},
		googleTokens: map[string]int64{},
		failures:     map[string][]failure{},
		nextID:       100,
	}
	b.server = httptest.NewServer(b.routes())
	return b
}

func (b *Backend) BaseURL() string {
	return b.server.URL + APIPrefix
}

func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

func (b *Backend) Close() {
	b.server.Close()
}

// AddUser stores identity and returns it with an assigned id.
func (b *Backend) AddUser(identity model.Identity) model.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()

	if identity.ID == 0 {
		identity.ID = b.nextIDLocked()
	}
	if identity.Role == "" {
		identity.Role = model.RoleStudent
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	stored := identity
	b.users[identity.ID] = &stored
	return stored
}

func (b *Backend) User(id int64) (model.Identity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user, ok := b.users[id]
	if !ok {
		return model.Identity{}, false
	}
	return *user, true
}

// IssueTokens mints a valid pair for userID.
func (b *Backend) IssueTokens(userID int64) model.CredentialPair {
	b.mu.Lock()
	defer b.mu.Unlock()

	pair, err := b.issuePairLocked(userID)
	if err != nil {
		panic(err)
	}
	return pair
}

// ExpireAccessTokens invalidates every access token issued so far. Refresh
// tokens keep working.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	b.generation++
	b.mu.Unlock()
}

// RevokeRefreshTokens makes the refresh endpoint reject every token.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	b.refreshRevoked = true
	b.mu.Unlock()
}

func (b *Backend) RegisterGitHubCode(code string, userID int64) {
	b.mu.Lock()
	b.githubCodes[code] = userID
	b.mu.Unlock()
}

func (b *Backend) RegisterGoogleToken(token string, userID int64) {
	b.mu.Lock()
	b.googleTokens[token] = userID
	b.mu.Unlock()
}

// FailNext makes the next call to route answer with status and body instead
// of being handled. route is "METHOD /pattern/", e.g. "POST /bookings/".
func (b *Backend) FailNext(route string, status int, body string) {
	b.mu.Lock()
	b.failures[route] = append(b.failures[route], failure{status: status, body: body})
	b.mu.Unlock()
}

// Calls returns how many times route was hit.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, call := range b.calls {
		if call.Method+" "+call.Route == route {
			n++
		}
	}
	return n
}

func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// Recorded returns a copy of every call in arrival order.
func (b *Backend) Recorded() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

func (b *Backend) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Upload, len(b.uploads))
	copy(out, b.uploads)
	return out
}

func (b *Backend) AddSession(session model.Session) model.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if session.ID == 0 {
		session.ID = b.nextIDLocked()
	}
	if session.Status == "" {
		session.Status = model.SessionPublished
	}
	if session.Currency == "" {
		session.Currency = "USD"
	}
	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now
	stored := session
	b.sessions[session.ID] = &stored
	return stored
}

func (b *Backend) Session(id int64) (model.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[id]
	if !ok {
		return model.Session{}, false
	}
	return *session, true
}

func (b *Backend) AddBooking(booking model.Booking) model.Booking {
	b.mu.Lock()
	defer b.mu.Unlock()

	if booking.ID == 0 {
		booking.ID = b.nextIDLocked()
	}
	if booking.Status == "" {
		booking.Status = model.BookingPending
	}
	if booking.AttendeesCount == 0 {
		booking.AttendeesCount = 1
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if session, ok := b.sessions[booking.Session.ID]; ok {
		booking.SessionTitle = session.Title
		if booking.TotalPrice.IsZero() {
			booking.TotalPrice = session.Price.Mul(decimalInt(booking.AttendeesCount))
		}
		if booking.Currency == "" {
			booking.Currency = session.Currency
		}
	}
	stored := booking
	b.bookings[booking.ID] = &stored
	return stored
}

func (b *Backend) Booking(id int64) (model.Booking, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	booking, ok := b.bookings[id]
	if !ok {
		return model.Booking{}, false
	}
	return *booking, true
}

func (b *Backend) nextIDLocked() int64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) issuePairLocked(userID int64) (model.CredentialPair, error) {
	access, err := b.signLocked(userID, "access", b.accessTTL)
	if err != nil {
		return model.CredentialPair{}, err
	}
	refresh, err := b.signLocked(userID, "refresh", 24*time.Hour)
	if err != nil {
		return model.CredentialPair{}, err
	}
	return model.CredentialPair{Access: access, Refresh: refresh}, nil
}

func (b *Backend) signLocked(userID int64, typ string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"typ": typ,
		"gen": b.generation,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(b.secret)
}

// validate returns the user id carried by a token of the expected type.
func (b *Backend) validate(tokenString string, expectedType string) (int64, bool) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, false
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	if typ, _ := claims["typ"].(string); typ != expectedType {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if expectedType == "access" {
		gen, _ := claims["gen"].(float64)
		if int(gen) != b.generation {
			return 0, false
		}
	}
	if expectedType == "refresh" && b.refreshRevoked {
		return 0, false
	}

	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false
	}
	if _, exists := b.users[id]; !exists {
		return 0, false
	}
	return id, true
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}

		token, found := strings.CutPrefix(header, "Bearer ")
		userID, ok := b.validate(strings.TrimSpace(token), "access")
		if !found || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
