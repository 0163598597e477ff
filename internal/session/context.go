// Package session owns the signed-in identity for the lifetime of the
// process. Consumers read role predicates from it and subscribe to its
// transitions instead of caching identity themselves.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"session-marketplace/internal/credential"
	"session-marketplace/internal/event"
	"session-marketplace/internal/model"
)

// Users is the part of the backend the session needs.
type Users interface {
	Me(ctx context.Context) (model.Identity, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (model.Identity, error)
}

type Context struct {
	store credential.Store
	users Users
	bus   event.Bus

	mu       sync.RWMutex
	identity *model.Identity
}

func New(store credential.Store, users Users, bus event.Bus) *Context {
	if bus == nil {
		bus = event.NewBus()
	}
	return &Context{store: store, users: users, bus: bus}
}

// Restore resolves the identity behind persisted credentials. Any failure
// clears the credentials and leaves the session signed out.
func (c *Context) Restore(ctx context.Context) bool {
	pair, ok := c.store.Read()
	if !ok || pair.Access == "" {
		return false
	}

	identity, err := c.users.Me(ctx)
	if err != nil {
		slog.Info("stored credentials rejected, starting signed out", "error", err)
		c.store.Clear()
		c.signOut(nil)
		return false
	}

	// Credentials may have been dropped by a failed refresh while Me ran.
	if _, ok := c.store.Read(); !ok {
		c.signOut(nil)
		return false
	}

	c.mu.Lock()
	c.identity = &identity
	c.mu.Unlock()

	slog.Info("session restored", "user_id", identity.ID, "role", identity.Role.String())
	c.bus.Publish(event.New(event.TypeLoggedIn, identity))
	return true
}

// Login persists pair and adopts identity. It is the only way identity
// becomes non-empty.
func (c *Context) Login(pair model.CredentialPair, identity model.Identity) error {
	if !pair.Complete() {
		return model.ErrIncompleteCredentials
	}

	c.store.Save(pair)

	c.mu.Lock()
	c.identity = &identity
	c.mu.Unlock()

	slog.Info("signed in", "user_id", identity.ID, "role", identity.Role.String())
	c.bus.Publish(event.New(event.TypeLoggedIn, identity))
	return nil
}

// Logout clears credentials and identity. Calling it while signed out is a
// no-op apart from clearing storage.
func (c *Context) Logout() {
	c.store.Clear()
	c.signOut(nil)
}

// Terminate is called when the gateway gives up on the stored credentials.
func (c *Context) Terminate(cause error) {
	c.store.Clear()
	if c.signOut(cause) {
		slog.Warn("session terminated", "error", cause)
	}
}

func (c *Context) signOut(cause error) bool {
	c.mu.Lock()
	was := c.identity != nil
	c.identity = nil
	c.mu.Unlock()

	if was {
		c.bus.Publish(event.New(event.TypeLoggedOut, cause))
	}
	return was
}

// UpdateIdentity replaces the identity of the signed-in user.
func (c *Context) UpdateIdentity(identity model.Identity) error {
	c.mu.Lock()
	if c.identity == nil {
		c.mu.Unlock()
		return model.ErrNotAuthenticated
	}
	c.identity = &identity
	c.mu.Unlock()

	c.bus.Publish(event.New(event.TypeProfileUpdated, identity))
	return nil
}

// UpdateProfile saves update, re-reads the user and re-adopts it with the
// current credential pair.
func (c *Context) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (model.Identity, error) {
	if !c.IsAuthenticated() {
		return model.Identity{}, model.ErrNotAuthenticated
	}

	if _, err := c.users.UpdateProfile(ctx, update); err != nil {
		return model.Identity{}, err
	}
	identity, err := c.users.Me(ctx)
	if err != nil {
		return model.Identity{}, fmt.Errorf("reload profile: %w", err)
	}

	pair, ok := c.store.Read()
	if !ok {
		return model.Identity{}, model.ErrSessionTerminated
	}
	if err := c.Login(pair, identity); err != nil {
		return model.Identity{}, err
	}
	c.bus.Publish(event.New(event.TypeProfileUpdated, identity))
	return identity, nil
}

func (c *Context) Identity() (model.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.identity == nil {
		return model.Identity{}, false
	}
	return *c.identity, true
}

func (c *Context) IsAuthenticated() bool {
	_, ok := c.Identity()
	return ok
}

func (c *Context) IsCreator() bool {
	identity, ok := c.Identity()
	return ok && identity.Role == model.RoleCreator
}

func (c *Context) IsStudent() bool {
	identity, ok := c.Identity()
	return ok && identity.Role == model.RoleStudent
}

// AccessExpiresAt reports the exp claim of the stored access token, if any.
func (c *Context) AccessExpiresAt() (time.Time, bool) {
	pair, ok := c.store.Read()
	if !ok {
		return time.Time{}, false
	}
	return credential.AccessExpiry(pair.Access)
}

func (c *Context) Subscribe() (<-chan event.Event, func()) {
	return c.bus.Subscribe()
}
