package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-marketplace/internal/api"
	"session-marketplace/internal/credential"
	"session-marketplace/internal/event"
	"session-marketplace/internal/gateway"
	"session-marketplace/internal/model"
	"session-marketplace/internal/testbackend"
)

type harness struct {
	backend *testbackend.Backend
	store   *credential.MemoryStore
	client  *api.Client
	session *Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	backend := testbackend.New()
	t.Cleanup(backend.Close)

	store := credential.NewMemoryStore()
	gw, err := gateway.New(backend.BaseURL(), store, gateway.WithHTTPClient(backend.Client()))
	require.NoError(t, err)

	client := api.NewClient(gw)
	sc := New(store, client, event.NewBus())
	gw.OnSessionTerminated(sc.Terminate)

	return &harness{backend: backend, store: store, client: client, session: sc}
}

func nextEvent(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return event.Event{}
	}
}

func TestRestoreWithValidToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	user := h.backend.AddUser(model.Identity{Email: "s@example.com", Role: model.RoleStudent})
	h.store.Save(h.backend.IssueTokens(user.ID))

	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	require.True(t, h.session.Restore(context.Background()))

	identity, ok := h.session.Identity()
	require.True(t, ok)
	assert.Equal(t, user.ID, identity.ID)
	assert.True(t, h.session.IsAuthenticated())
	assert.True(t, h.session.IsStudent())
	assert.False(t, h.session.IsCreator())

	e := nextEvent(t, events)
	assert.Equal(t, event.TypeLoggedIn, e.Type)
}

func TestRestoreRefreshesSilently(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	user := h.backend.AddUser(model.Identity{Role: model.RoleCreator})
	h.store.Save(h.backend.IssueTokens(user.ID))
	h.backend.ExpireAccessTokens()

	require.True(t, h.session.Restore(context.Background()))
	assert.True(t, h.session.IsCreator())
	assert.Equal(t, 1, h.backend.Calls("POST /auth/token/refresh/"))
}

func TestRestoreWithInvalidTokenClearsStorage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	user := h.backend.AddUser(model.Identity{})
	h.store.Save(h.backend.IssueTokens(user.ID))
	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	require.False(t, h.session.Restore(context.Background()))
	assert.False(t, h.session.IsAuthenticated())
	_, ok := h.store.Read()
	assert.False(t, ok)
}

func TestRestoreWithGarbageTokenClearsStorage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.Save(model.CredentialPair{Access: "garbage", Refresh: "also-garbage"})

	require.False(t, h.session.Restore(context.Background()))
	_, ok := h.store.Read()
	assert.False(t, ok)
}

func TestRestoreWithoutCredentialsMakesNoCall(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.False(t, h.session.Restore(context.Background()))
	assert.Zero(t, h.backend.TotalCalls())
}

func TestLoginRequiresCompletePair(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.session.Login(model.CredentialPair{Access: "a"}, model.Identity{ID: 1})
	require.ErrorIs(t, err, model.ErrIncompleteCredentials)
	assert.False(t, h.session.IsAuthenticated())
	_, ok := h.store.Read()
	assert.False(t, ok)
}

func TestLoginAndLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	pair := model.CredentialPair{Access: "a", Refresh: "r"}
	require.NoError(t, h.session.Login(pair, model.Identity{ID: 9, Role: model.RoleCreator}))
	assert.True(t, h.session.IsCreator())
	stored, _ := h.store.Read()
	assert.Equal(t, pair, stored)
	assert.Equal(t, event.TypeLoggedIn, nextEvent(t, events).Type)

	h.session.Logout()
	assert.False(t, h.session.IsAuthenticated())
	assert.False(t, h.session.IsCreator())
	_, ok := h.store.Read()
	assert.False(t, ok)
	assert.Equal(t, event.TypeLoggedOut, nextEvent(t, events).Type)

	h.session.Logout()
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s after second logout", e.Type)
	default:
	}
}

func TestGatewayTerminationSignsOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	user := h.backend.AddUser(model.Identity{})
	pair := h.backend.IssueTokens(user.ID)
	require.NoError(t, h.session.Login(pair, user))

	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	_, err := h.client.MyBookings(context.Background())
	require.ErrorIs(t, err, model.ErrSessionTerminated)
	assert.False(t, h.session.IsAuthenticated())
	_, ok := h.store.Read()
	assert.False(t, ok)
}

func TestUpdateProfileReadoptsIdentity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	user := h.backend.AddUser(model.Identity{FirstName: "Old", Bio: "x"})
	pair := h.backend.IssueTokens(user.ID)
	require.NoError(t, h.session.Login(pair, user))

	bio := "Teaches Go"
	identity, err := h.session.UpdateProfile(context.Background(), model.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Teaches Go", identity.Bio)

	current, _ := h.session.Identity()
	assert.Equal(t, "Teaches Go", current.Bio)
	stored, _ := h.store.Read()
	assert.Equal(t, pair, stored)

	assert.Equal(t, 1, h.backend.Calls("PUT /users/update_profile/"))
	assert.Equal(t, 1, h.backend.Calls("GET /users/me/"))
}

func TestUpdateWhileSignedOut(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.ErrorIs(t, h.session.UpdateIdentity(model.Identity{ID: 1}), model.ErrNotAuthenticated)
	_, err := h.session.UpdateProfile(context.Background(), model.ProfileUpdate{})
	require.ErrorIs(t, err, model.ErrNotAuthenticated)
	assert.Zero(t, h.backend.TotalCalls())
}

func TestAccessExpiresAt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, ok := h.session.AccessExpiresAt()
	assert.False(t, ok)

	user := h.backend.AddUser(model.Identity{})
	require.NoError(t, h.session.Login(h.backend.IssueTokens(user.ID), user))

	exp, ok := h.session.AccessExpiresAt()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, time.Minute)
}
