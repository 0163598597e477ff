package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

const DefaultPollInterval = 500 * time.Millisecond

// ErrCrossOrigin is returned by Surface.Location while the surface shows a
// page this process may not read. Watchers ignore it.
var ErrCrossOrigin = errors.New("surface location is cross-origin")

// Surface is a separate browser surface (popup, tab) showing a provider page.
type Surface interface {
	Location() (*url.URL, error)
	Closed() bool
	Close()
}

type SurfaceOpener interface {
	Open(ctx context.Context, authURL string) (Surface, error)
}

// Outcome is delivered exactly once per started Watcher.
type Outcome struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	Cancelled        bool
	TimedOut         bool
}

// Watcher polls a Surface until it closes or lands on the redirect target.
type Watcher struct {
	surface  Surface
	redirect *url.URL
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewWatcher(surface Surface, redirect *url.URL, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		surface:  surface,
		redirect: redirect,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling. callback runs once, from the polling goroutine, with
// either a redirect result or Cancelled. Later calls to Start are ignored.
func (w *Watcher) Start(ctx context.Context, callback func(Outcome)) {
	w.startOnce.Do(func() {
		go w.run(ctx, callback)
	})
}

// Stop tears the watcher down; a pending callback receives Cancelled.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done is closed after the callback has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context, callback func(Outcome)) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.surface.Close()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				callback(Outcome{TimedOut: true})
			} else {
				callback(Outcome{Cancelled: true})
			}
			return
		case <-w.stop:
			w.surface.Close()
			callback(Outcome{Cancelled: true})
			return
		case <-ticker.C:
		}

		if w.surface.Closed() {
			callback(Outcome{Cancelled: true})
			return
		}

		location, err := w.surface.Location()
		if err != nil {
			if !errors.Is(err, ErrCrossOrigin) {
				slog.Debug("surface location unreadable", "error", err)
			}
			continue
		}
		if !sameTarget(location, w.redirect) {
			continue
		}

		query := location.Query()
		outcome := Outcome{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		}
		if outcome.Code == "" && outcome.Error == "" {
			continue
		}

		w.surface.Close()
		callback(outcome)
		return
	}
}

func sameTarget(location *url.URL, redirect *url.URL) bool {
	if location == nil || redirect == nil {
		return false
	}
	return strings.EqualFold(location.Scheme, redirect.Scheme) &&
		strings.EqualFold(location.Host, redirect.Host) &&
		strings.TrimRight(location.Path, "/") == strings.TrimRight(redirect.Path, "/")
}

// await opens authURL and blocks until the watcher reports an outcome.
func await(ctx context.Context, opener SurfaceOpener, authURL string, redirect *url.URL, interval time.Duration) (Outcome, error) {
	surface, err := opener.Open(ctx, authURL)
	if err != nil {
		return Outcome{}, err
	}

	outcomes := make(chan Outcome, 1)
	watcher := NewWatcher(surface, redirect, interval)
	watcher.Start(ctx, func(o Outcome) { outcomes <- o })
	<-watcher.Done()
	return <-outcomes, nil
}
