// Package gateway sends every backend call with the current bearer token and
// recovers from an expired access token with a single refresh-and-retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"session-marketplace/internal/credential"
	"session-marketplace/internal/model"
	"session-marketplace/pkg/apierror"
)

const (
	RefreshPath     = "/auth/token/refresh/"
	requestIDHeader = "X-Request-ID"
	maxResponseSize = 16 << 20
)

type Gateway struct {
	baseURL string
	client  *http.Client
	store   credential.Store
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger

	refreshes singleflight.Group

	mu           sync.RWMutex
	onTerminated []func(cause error)
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithRateLimit paces outbound calls. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = metrics
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func New(baseURL string, store credential.Store, opts ...Option) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", model.ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: credential store is required", model.ErrInvalidInput)
	}

	g := &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// OnSessionTerminated registers fn to run whenever the gateway gives up on
// the stored credentials.
func (g *Gateway) OnSessionTerminated(fn func(cause error)) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.onTerminated = append(g.onTerminated, fn)
	g.mu.Unlock()
}

type callOptions struct {
	anonymous bool
}

type CallOption func(*callOptions)

// Anonymous sends the call without a bearer token and never refreshes on 401.
func Anonymous() CallOption {
	return func(o *callOptions) {
		o.anonymous = true
	}
}

type payload struct {
	contentType string
	data        []byte
}

// Do sends a JSON request and decodes a 2xx JSON response into out when out
// is non-nil. body may be nil.
func (g *Gateway) Do(ctx context.Context, method string, path string, body any, out any, opts ...CallOption) error {
	var p payload
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		p = payload{contentType: "application/json", data: data}
	}
	return g.roundTrip(ctx, method, path, p, out, opts)
}

// Upload posts data as the multipart field "file".
func (g *Gateway) Upload(ctx context.Context, path string, filename string, contentType string, data []byte, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	p := payload{contentType: writer.FormDataContentType(), data: buf.Bytes()}
	return g.roundTrip(ctx, http.MethodPost, path, p, out, nil)
}

func (g *Gateway) roundTrip(ctx context.Context, method string, path string, p payload, out any, opts []CallOption) error {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	token := ""
	if !o.anonymous {
		if pair, ok := g.store.Read(); ok {
			token = pair.Access
		}
	}

	status, data, err := g.send(ctx, method, path, p, token, 1)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized || o.anonymous {
		return decode(status, data, out)
	}

	cause := apierror.FromResponse(status, data)
	fresh, err := g.refresh(ctx, token, cause)
	if err != nil {
		return err
	}

	g.metrics.observeRetry()
	status, data, err = g.send(ctx, method, path, p, fresh, 2)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", model.ErrAuthenticationFailed, apierror.FromResponse(status, data))
	}
	return decode(status, data, out)
}

// refresh exchanges the stored refresh token for a new access token.
// Concurrent callers holding the same refresh token share one exchange, and a
// caller whose rejected token has already been replaced reuses the new one.
func (g *Gateway) refresh(ctx context.Context, sentToken string, cause error) (string, error) {
	pair, ok := g.store.Read()
	if !ok || pair.Refresh == "" {
		g.store.Clear()
		g.terminate(cause)
		if sentToken == "" {
			return "", cause
		}
		return "", fmt.Errorf("%w: %w", model.ErrSessionTerminated, cause)
	}
	if sentToken != "" && pair.Access != "" && pair.Access != sentToken {
		// another caller already refreshed after this request was sent
		g.metrics.observeRefresh("reused")
		return pair.Access, nil
	}

	result, err, _ := g.refreshes.Do(pair.Refresh, func() (any, error) {
		var resp struct {
			Access string `json:"access"`
		}
		err := g.Do(context.WithoutCancel(ctx), http.MethodPost, RefreshPath,
			map[string]string{"refresh": pair.Refresh}, &resp, Anonymous())
		if err == nil && resp.Access == "" {
			err = errors.New("refresh response carried no access token")
		}
		if err != nil {
			g.metrics.observeRefresh("failure")
			g.logger.Warn("token refresh failed", "error", err)
			g.store.Clear()
			g.terminate(err)
			return "", err
		}

		g.metrics.observeRefresh("success")
		g.store.ReplaceAccess(resp.Access)
		return resp.Access, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrSessionTerminated, err)
	}
	return result.(string), nil
}

func (g *Gateway) terminate(cause error) {
	g.mu.RLock()
	handlers := make([]func(error), len(g.onTerminated))
	copy(handlers, g.onTerminated)
	g.mu.RUnlock()

	for _, fn := range handlers {
		fn(cause)
	}
}

func (g *Gateway) send(ctx context.Context, method string, path string, p payload, token string, attempt int) (int, []byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("%w: %s %s: %w", model.ErrTransport, method, path, err)
		}
	}

	var body io.Reader
	if p.data != nil {
		body = bytes.NewReader(p.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if p.contentType != "" {
		req.Header.Set("Content-Type", p.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.observe(method, path, 0, time.Since(started))
		g.logger.Warn("backend unreachable",
			"request_id", requestID,
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err,
		)
		return 0, nil, fmt.Errorf("%w: %s %s: %w", model.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read %s %s: %w", model.ErrTransport, method, path, err)
	}

	elapsed := time.Since(started)
	g.metrics.observe(method, path, resp.StatusCode, elapsed)

	attrs := []any{
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
		"attempt", attempt,
	}
	switch {
	case resp.StatusCode >= 500:
		g.logger.Error("backend call", attrs...)
	case resp.StatusCode >= 400:
		g.logger.Warn("backend call", attrs...)
	default:
		g.logger.Debug("backend call", attrs...)
	}

	return resp.StatusCode, data, nil
}

func decode(status int, data []byte, out any) error {
	if status < 200 || status > 299 {
		return apierror.FromResponse(status, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
