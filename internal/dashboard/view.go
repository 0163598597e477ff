package dashboard

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"session-marketplace/internal/event"
)

// Subscriber is satisfied by event buses and *session.Context.
type Subscriber interface {
	Subscribe() (<-chan event.Event, func())
}

// View holds the result of the most recently issued fetch that succeeded.
// A fetch that completes after a newer one has been applied is discarded.
type View[T any] struct {
	fetch    func(ctx context.Context) (T, error)
	onChange func(T)

	mu      sync.Mutex
	issued  uint64
	applied uint64
	current T
	loaded  bool
	lastErr error
}

func NewView[T any](fetch func(ctx context.Context) (T, error), onChange func(T)) *View[T] {
	return &View[T]{fetch: fetch, onChange: onChange}
}

// Refresh issues a new fetch and returns the view's value afterwards, which
// may come from a newer fetch than this one.
func (v *View[T]) Refresh(ctx context.Context) (T, error) {
	v.mu.Lock()
	v.issued++
	seq := v.issued
	v.mu.Unlock()

	value, err := v.fetch(ctx)

	v.mu.Lock()
	if seq <= v.applied {
		current, applied := v.current, v.applied
		v.mu.Unlock()
		slog.Debug("discarded stale fetch", "seq", seq, "applied", applied)
		return current, nil
	}
	if err != nil {
		v.lastErr = err
		current := v.current
		v.mu.Unlock()
		return current, err
	}
	v.applied = seq
	v.current = value
	v.loaded = true
	v.lastErr = nil
	onChange := v.onChange
	v.mu.Unlock()

	if onChange != nil {
		onChange(value)
	}
	return value, nil
}

// Current returns the applied value and whether any fetch has succeeded.
func (v *View[T]) Current() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.loaded
}

// Reset forgets the applied value and discards every fetch issued so far.
func (v *View[T]) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	v.applied = v.issued
	v.current = zero
	v.loaded = false
	v.lastErr = nil
}

func (v *View[T]) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

// Follow refreshes the view whenever an event of one of the given types is
// published, until ctx is done. Refreshes run concurrently; the newest wins.
func (v *View[T]) Follow(ctx context.Context, sub Subscriber, types ...event.Type) {
	events, unsubscribe := sub.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if len(types) > 0 && !slices.Contains(types, e.Type) {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("view refresh failed", "trigger", e.Type, "error", err)
				}
			}()
		}
	}
}
