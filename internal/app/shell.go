package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"session-marketplace/internal/event"
)

// shell reads commands line by line. The dashboard is kept current in the
// background and re-fetched after every booking or session change.
func (a *App) shell(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.forgetOverview(ctx)
	}()
	go func() {
		defer wg.Done()
		a.overview.Follow(ctx, a.bus,
			event.TypeLoggedIn,
			event.TypeProfileUpdated,
			event.TypeBookingsChanged,
			event.TypeSessionsChanged,
		)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	if a.session.IsAuthenticated() {
		go func() { _, _ = a.overview.Refresh(ctx) }()
	}

	for {
		fmt.Fprint(a.out, "marketplace> ")
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) == 0:
		case fields[0] == "exit" || fields[0] == "quit":
			return nil
		case fields[0] == "shell":
			fmt.Fprintln(a.out, "already in the shell")
		case fields[0] == "help":
			a.usage()
		case fields[0] == "dashboard":
			a.printOverview(ctx)
		default:
			if cmdErr := a.dispatch(ctx, fields); cmdErr != nil {
				fmt.Fprintf(a.out, "error: %s\n", Describe(cmdErr))
			}
		}

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return nil
		}
	}
}

func (a *App) printOverview(ctx context.Context) {
	view, err := a.ownOverview(ctx, true)
	if err != nil {
		fmt.Fprintf(a.out, "error: %s\n", Describe(err))
		return
	}
	renderOverview(a.out, view)
}

// forgetOverview drops the cached dashboard whenever the user signs out.
func (a *App) forgetOverview(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type == event.TypeLoggedOut {
				a.overview.Reset()
			}
		}
	}
}
