package oauth

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = 5 * time.Millisecond

type step struct {
	location string
	err      error
	close    bool
}

// scriptedSurface replays one step per Location call, then stays
// cross-origin.
type scriptedSurface struct {
	mu         sync.Mutex
	steps      []step
	closed     bool
	closeCalls int
	reads      int
}

func (s *scriptedSurface) Location() (*url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if len(s.steps) == 0 {
		return nil, ErrCrossOrigin
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	if next.close {
		s.closed = true
		return nil, ErrCrossOrigin
	}
	if next.err != nil {
		return nil, next.err
	}
	return url.Parse(next.location)
}

func (s *scriptedSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *scriptedSurface) Close() {
	s.mu.Lock()
	s.closed = true
	s.closeCalls++
	s.mu.Unlock()
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func runWatcher(t *testing.T, ctx context.Context, surface Surface, redirect string) (Outcome, int) {
	t.Helper()

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	w := NewWatcher(surface, mustURL(t, redirect), testInterval)
	w.Start(ctx, func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	})

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not finish")
	}
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, outcomes)
	return outcomes[0], len(outcomes)
}

func TestWatcherExtractsCodeAfterCrossOriginPages(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{steps: []step{
		{err: ErrCrossOrigin},
		{err: errors.New("SecurityError: blocked a frame")},
		{location: "https://github.com/login/oauth/authorize?client_id=x"},
		{location: "http://127.0.0.1:8765/other?code=wrong"},
		{location: "http://127.0.0.1:8765/login"},
		{location: "http://127.0.0.1:8765/login?code=abc&state=creator"},
	}}

	outcome, calls := runWatcher(t, context.Background(), surface, "http://127.0.0.1:8765/login")
	assert.Equal(t, Outcome{Code: "abc", State: "creator"}, outcome)
	assert.Equal(t, 1, calls)
	assert.True(t, surface.Closed(), "watcher closes the surface after reading the code")
}

func TestWatcherReportsProviderError(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{steps: []step{
		{location: "http://127.0.0.1:8765/login?error=access_denied&error_description=denied&state=user"},
	}}

	outcome, _ := runWatcher(t, context.Background(), surface, "http://127.0.0.1:8765/login")
	assert.Equal(t, "access_denied", outcome.Error)
	assert.Equal(t, "denied", outcome.ErrorDescription)
	assert.False(t, outcome.Cancelled)
}

func TestWatcherTreatsClosedSurfaceAsCancellation(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{steps: []step{{err: ErrCrossOrigin}, {close: true}}}

	outcome, calls := runWatcher(t, context.Background(), surface, "http://127.0.0.1:8765/login")
	assert.True(t, outcome.Cancelled)
	assert.Empty(t, outcome.Code)
	assert.Equal(t, 1, calls)
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	defer cancel()

	outcome, calls := runWatcher(t, ctx, surface, "http://127.0.0.1:8765/login")
	assert.True(t, outcome.Cancelled)
	assert.False(t, outcome.TimedOut)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, surface.closeCalls)
}

func TestWatcherReportsDeadlineAsTimeout(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	outcome, calls := runWatcher(t, ctx, surface, "http://127.0.0.1:8765/login")
	assert.True(t, outcome.TimedOut)
	assert.False(t, outcome.Cancelled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, surface.closeCalls)
}

func TestWatcherStopDeliversSingleCancellation(t *testing.T) {
	t.Parallel()

	surface := &scriptedSurface{}
	var count int
	var mu sync.Mutex
	w := NewWatcher(surface, mustURL(t, "http://127.0.0.1:8765/login"), testInterval)
	w.Start(context.Background(), func(o Outcome) {
		mu.Lock()
		count++
		mu.Unlock()
		assert.True(t, o.Cancelled)
	})
	w.Start(context.Background(), func(Outcome) { t.Error("second start must be ignored") })

	w.Stop()
	w.Stop()
	<-w.Done()

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
	assert.True(t, surface.Closed())
}

func TestSameTarget(t *testing.T) {
	t.Parallel()

	redirect := mustURL(t, "http://localhost:3000/login")
	assert.True(t, sameTarget(mustURL(t, "http://localhost:3000/login?code=1"), redirect))
	assert.True(t, sameTarget(mustURL(t, "HTTP://LOCALHOST:3000/login/"), redirect))
	assert.False(t, sameTarget(mustURL(t, "http://localhost:3001/login"), redirect))
	assert.False(t, sameTarget(mustURL(t, "https://localhost:3000/login"), redirect))
	assert.False(t, sameTarget(mustURL(t, "http://localhost:3000/"), redirect))
	assert.False(t, sameTarget(nil, redirect))
}
