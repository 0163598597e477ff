package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-marketplace/internal/credential"
	"session-marketplace/internal/gateway"
	"session-marketplace/internal/model"
	"session-marketplace/internal/testbackend"
	"session-marketplace/pkg/apierror"
)

func newClient(t *testing.T) (*Client, *testbackend.Backend, *credential.MemoryStore) {
	t.Helper()

	backend := testbackend.New()
	t.Cleanup(backend.Close)

	store := credential.NewMemoryStore()
	gw, err := gateway.New(backend.BaseURL(), store, gateway.WithHTTPClient(backend.Client()))
	require.NoError(t, err)
	return NewClient(gw), backend, store
}

func TestListSessionsUnwrapsPage(t *testing.T) {
	t.Parallel()
	client, backend, _ := newClient(t)

	creator := backend.AddUser(model.Identity{FirstName: "Grace", LastName: "Hopper", Role: model.RoleCreator})
	backend.AddSession(model.Session{Title: "Compilers", Price: decimal.RequireFromString("40.00"), Creator: &creator})
	backend.AddSession(model.Session{Title: "Draft", Status: model.SessionDraft, Creator: &creator})

	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Compilers", sessions[0].Title)
	assert.Equal(t, "Grace Hopper", sessions[0].CreatorName)
	assert.True(t, decimal.RequireFromString("40").Equal(sessions[0].Price))
}

func TestDecodeListAcceptsBareAndPaged(t *testing.T) {
	t.Parallel()

	bare, err := decodeList[model.Booking](json.RawMessage(`[{"id":1,"session":9,"status":"pending"}]`))
	require.NoError(t, err)
	require.Len(t, bare, 1)
	assert.Equal(t, int64(9), bare[0].Session.ID)

	paged, err := decodeList[model.Booking](json.RawMessage(`{"count":1,"results":[{"id":2,"session":{"id":3}}]}`))
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, int64(3), paged[0].Session.ID)

	empty, err := decodeList[model.Booking](nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBookingRoundTrip(t *testing.T) {
	t.Parallel()
	client, backend, store := newClient(t)
	ctx := context.Background()

	creator := backend.AddUser(model.Identity{Role: model.RoleCreator})
	student := backend.AddUser(model.Identity{Role: model.RoleStudent})
	session := backend.AddSession(model.Session{Title: "Go", Price: decimal.NewFromInt(25), MaxAttendees: 3, Creator: &creator})

	store.Save(backend.IssueTokens(student.ID))
	booking, err := client.CreateBooking(ctx, model.BookingRequest{Session: session.ID, AttendeesCount: 1})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, booking.Status)
	assert.True(t, decimal.NewFromInt(25).Equal(booking.TotalPrice))

	active, err := client.ActiveBookings(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	store.Save(backend.IssueTokens(creator.ID))
	confirmed, err := client.ConfirmBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, confirmed.Status)
	assert.Equal(t, session.ID, confirmed.Session.ID, "nested session object decodes to its id")
	assert.Equal(t, student.ID, confirmed.User.ID)

	cancelled, err := client.CancelBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)

	dash, err := client.CreatorDashboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, dash.ConfirmedBookings)
	assert.Equal(t, 1, dash.Stats.TotalSessions)
}

func TestUpdateSessionSendsMutableFieldsOnly(t *testing.T) {
	t.Parallel()
	client, backend, store := newClient(t)

	creator := backend.AddUser(model.Identity{Role: model.RoleCreator})
	session := backend.AddSession(model.Session{Title: "Original", Description: "old", Creator: &creator})
	store.Save(backend.IssueTokens(creator.ID))

	update := model.UpdateFrom(session)
	update.Description = "new"
	update.Status = model.SessionCancelled
	updated, err := client.UpdateSession(context.Background(), session.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Description)
	assert.Equal(t, "Original", updated.Title)

	calls := backend.Recorded()
	var sent map[string]any
	require.NoError(t, json.Unmarshal(calls[len(calls)-1].Body, &sent))
	assert.ElementsMatch(t,
		[]string{"description", "location", "session_type", "max_attendees", "status"},
		keys(sent))
}

func TestCreateSessionValidationError(t *testing.T) {
	t.Parallel()
	client, backend, store := newClient(t)

	creator := backend.AddUser(model.Identity{Role: model.RoleCreator})
	store.Save(backend.IssueTokens(creator.ID))

	_, err := client.CreateSession(context.Background(), model.SessionInput{Title: "", DurationMinutes: 0})
	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "validation failed", apiErr.Message)
	assert.Contains(t, apiErr.Details, "title:")
	assert.Contains(t, apiErr.Details, "duration_minutes:")
}

func TestOAuthExchangesAreAnonymous(t *testing.T) {
	t.Parallel()
	client, backend, store := newClient(t)

	user := backend.AddUser(model.Identity{Email: "gh@example.com"})
	store.Save(backend.IssueTokens(user.ID))
	backend.RegisterGitHubCode("code-1", user.ID)

	result, err := client.GitHubCallback(context.Background(), "code-1", model.RoleStudent)
	require.NoError(t, err)
	assert.True(t, result.Tokens.Complete())
	assert.Equal(t, user.ID, result.User.ID)

	calls := backend.Recorded()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Authorization)

	var sent map[string]string
	require.NoError(t, json.Unmarshal(calls[0].Body, &sent))
	assert.Equal(t, map[string]string{"code": "code-1", "role": "user"}, sent)
}

func TestProfileAndUpload(t *testing.T) {
	t.Parallel()
	client, backend, store := newClient(t)

	user := backend.AddUser(model.Identity{FirstName: "Old"})
	store.Save(backend.IssueTokens(user.ID))

	first := "New"
	updated, err := client.UpdateProfile(context.Background(), model.ProfileUpdate{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.FirstName)

	result, err := client.UploadImage(context.Background(), "x.gif", "image/gif", []byte("GIF89a"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.ThumbnailURL)

	_, err = client.UploadImage(context.Background(), "x.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, apierror.StatusOf(err))
	assert.Equal(t, "Only image files are allowed", apierror.UserMessage(err, ""))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
