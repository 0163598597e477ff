package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/browser"

	"session-marketplace/internal/middleware"
)

const landingPage = `<!doctype html>
<html><head><title>Signed in</title></head>
<body><p>You can close this window and return to the terminal.</p></body></html>`

// LoopbackOpener opens the provider page in the system browser and serves
// the redirect target on the loopback interface. The browser tab is
// cross-origin until the provider redirects back.
type LoopbackOpener struct {
	redirect    *url.URL
	openBrowser func(url string) error
}

func NewLoopbackOpener(redirectURL string) (*LoopbackOpener, error) {
	redirect, err := url.Parse(redirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("loopback redirect url %q is invalid", redirectURL)
	}
	return &LoopbackOpener{redirect: redirect, openBrowser: browser.OpenURL}, nil
}

func (o *LoopbackOpener) Open(ctx context.Context, authURL string) (Surface, error) {
	listener, err := net.Listen("tcp", o.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", o.redirect.Host, err)
	}

	surface := &LoopbackSurface{
		redirect: o.redirect,
		listener: listener,
	}

	path := o.redirect.Path
	if path == "" {
		path = "/"
	}
	r := chi.NewRouter()
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Get(path, surface.callback)
	surface.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := surface.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("loopback redirect server stopped", "error", err)
			surface.Close()
		}
	}()

	context.AfterFunc(ctx, surface.Close)

	if err := o.openBrowser(authURL); err != nil {
		slog.Warn("could not open a browser, open this URL manually", "url", authURL, "error", err)
	}
	return surface, nil
}

type LoopbackSurface struct {
	redirect *url.URL
	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	landing *url.URL
	closed  bool
}

// Addr is the address the redirect server actually listens on.
func (s *LoopbackSurface) Addr() string {
	return s.listener.Addr().String()
}

func (s *LoopbackSurface) callback(w http.ResponseWriter, r *http.Request) {
	landed := *s.redirect
	landed.Path = r.URL.Path
	landed.RawQuery = r.URL.RawQuery

	s.mu.Lock()
	if s.landing == nil {
		s.landing = &landed
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingPage))
}

func (s *LoopbackSurface) Location() (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.landing == nil {
		return nil, ErrCrossOrigin
	}
	landed := *s.landing
	return &landed, nil
}

func (s *LoopbackSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *LoopbackSurface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
