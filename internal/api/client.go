// Package api is the typed surface of the marketplace REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"session-marketplace/internal/gateway"
	"session-marketplace/internal/model"
)

// Transport is satisfied by *gateway.Gateway.
type Transport interface {
	Do(ctx context.Context, method string, path string, body any, out any, opts ...gateway.CallOption) error
	Upload(ctx context.Context, path string, filename string, contentType string, data []byte, out any) error
}

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

type Client struct {
	transport Transport
}

func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// OAuthLogin exchanges a provider access token for a session.
func (c *Client) OAuthLogin(ctx context.Context, provider string, accessToken string, role model.Role) (model.AuthResult, error) {
	var result model.AuthResult
	body := map[string]string{"provider": provider, "access_token": accessToken, "role": string(role)}
	if err := c.transport.Do(ctx, http.MethodPost, "/auth/oauth/login/", body, &result, gateway.Anonymous()); err != nil {
		return model.AuthResult{}, fmt.Errorf("oauth login: %w", err)
	}
	return result, nil
}

// GitHubCallback exchanges an authorization code for a session.
func (c *Client) GitHubCallback(ctx context.Context, code string, role model.Role) (model.AuthResult, error) {
	var result model.AuthResult
	body := map[string]string{"code": code, "role": string(role)}
	if err := c.transport.Do(ctx, http.MethodPost, "/auth/github/callback/", body, &result, gateway.Anonymous()); err != nil {
		return model.AuthResult{}, fmt.Errorf("github callback: %w", err)
	}
	return result, nil
}

func (c *Client) Me(ctx context.Context) (model.Identity, error) {
	var identity model.Identity
	if err := c.transport.Do(ctx, http.MethodGet, "/users/me/", nil, &identity); err != nil {
		return model.Identity{}, fmt.Errorf("fetch current user: %w", err)
	}
	return identity, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (model.Identity, error) {
	var identity model.Identity
	if err := c.transport.Do(ctx, http.MethodPut, "/users/update_profile/", update, &identity); err != nil {
		return model.Identity{}, fmt.Errorf("update profile: %w", err)
	}
	return identity, nil
}

// ListSessions returns the published catalogue. The backend may answer with
// a paginated envelope or a bare list.
func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	var raw json.RawMessage
	if err := c.transport.Do(ctx, http.MethodGet, "/sessions/", nil, &raw); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions, err := decodeList[model.Session](raw)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id int64) (model.Session, error) {
	var session model.Session
	if err := c.transport.Do(ctx, http.MethodGet, sessionPath(id), nil, &session); err != nil {
		return model.Session{}, fmt.Errorf("get session %d: %w", id, err)
	}
	return session, nil
}

func (c *Client) CreateSession(ctx context.Context, input model.SessionInput) (model.Session, error) {
	var session model.Session
	if err := c.transport.Do(ctx, http.MethodPost, "/sessions/", input, &session); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// UpdateSession sends only the fields that may change after creation.
func (c *Client) UpdateSession(ctx context.Context, id int64, update model.SessionUpdate) (model.Session, error) {
	var session model.Session
	if err := c.transport.Do(ctx, http.MethodPut, sessionPath(id), update, &session); err != nil {
		return model.Session{}, fmt.Errorf("update session %d: %w", id, err)
	}
	return session, nil
}

func (c *Client) DeleteSession(ctx context.Context, id int64) error {
	if err := c.transport.Do(ctx, http.MethodDelete, sessionPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	return nil
}

func (c *Client) MySessions(ctx context.Context) ([]model.Session, error) {
	var raw json.RawMessage
	if err := c.transport.Do(ctx, http.MethodGet, "/sessions/my_sessions/", nil, &raw); err != nil {
		return nil, fmt.Errorf("list own sessions: %w", err)
	}
	return decodeList[model.Session](raw)
}

func (c *Client) SessionBookings(ctx context.Context, id int64) ([]model.Booking, error) {
	return c.bookings(ctx, fmt.Sprintf("/sessions/%d/bookings/", id))
}

func (c *Client) CreateBooking(ctx context.Context, req model.BookingRequest) (model.Booking, error) {
	var booking model.Booking
	if err := c.transport.Do(ctx, http.MethodPost, "/bookings/", req, &booking); err != nil {
		return model.Booking{}, fmt.Errorf("create booking: %w", err)
	}
	return booking, nil
}

func (c *Client) ConfirmBooking(ctx context.Context, id int64) (model.Booking, error) {
	return c.bookingAction(ctx, id, model.ActionConfirm)
}

func (c *Client) CancelBooking(ctx context.Context, id int64) (model.Booking, error) {
	return c.bookingAction(ctx, id, model.ActionCancel)
}

func (c *Client) MyBookings(ctx context.Context) ([]model.Booking, error) {
	return c.bookings(ctx, "/bookings/my_bookings/")
}

// ActiveBookings lists pending and confirmed bookings visible to the caller.
func (c *Client) ActiveBookings(ctx context.Context) ([]model.Booking, error) {
	return c.bookings(ctx, "/bookings/active/")
}

func (c *Client) PastBookings(ctx context.Context) ([]model.Booking, error) {
	return c.bookings(ctx, "/bookings/past/")
}

func (c *Client) UserDashboard(ctx context.Context) (model.UserDashboard, error) {
	var dash model.UserDashboard
	if err := c.transport.Do(ctx, http.MethodGet, "/dashboard/user/", nil, &dash); err != nil {
		return model.UserDashboard{}, fmt.Errorf("user dashboard: %w", err)
	}
	return dash, nil
}

func (c *Client) CreatorDashboard(ctx context.Context) (model.CreatorDashboard, error) {
	var dash model.CreatorDashboard
	if err := c.transport.Do(ctx, http.MethodGet, "/dashboard/creator/", nil, &dash); err != nil {
		return model.CreatorDashboard{}, fmt.Errorf("creator dashboard: %w", err)
	}
	return dash, nil
}

// UploadImage stores an image and returns its public and thumbnail URLs.
func (c *Client) UploadImage(ctx context.Context, filename string, contentType string, data []byte) (model.UploadResult, error) {
	var result model.UploadResult
	if err := c.transport.Upload(ctx, "/storage/upload/", filename, contentType, data, &result); err != nil {
		return model.UploadResult{}, fmt.Errorf("upload image: %w", err)
	}
	return result, nil
}

func (c *Client) bookingAction(ctx context.Context, id int64, action model.BookingAction) (model.Booking, error) {
	var booking model.Booking
	path := fmt.Sprintf("/bookings/%d/%s/", id, action)
	if err := c.transport.Do(ctx, http.MethodPost, path, nil, &booking); err != nil {
		return model.Booking{}, fmt.Errorf("%s booking %d: %w", action, id, err)
	}
	return booking, nil
}

func (c *Client) bookings(ctx context.Context, path string) ([]model.Booking, error) {
	var raw json.RawMessage
	if err := c.transport.Do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return decodeList[model.Booking](raw)
}

func sessionPath(id int64) string {
	return fmt.Sprintf("/sessions/%d/", id)
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}

	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if page.Results == nil {
		return []T{}, nil
	}
	return page.Results, nil
}
