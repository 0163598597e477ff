package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackSurfaceRecordsRedirect(t *testing.T) {
	t.Parallel()

	opener, err := NewLoopbackOpener("http://127.0.0.1:0/login")
	require.NoError(t, err)

	var opened string
	opener.openBrowser = func(u string) error {
		opened = u
		return nil
	}

	surface, err := opener.Open(context.Background(), "https://github.com/login/oauth/authorize?state=user")
	require.NoError(t, err)
	defer surface.Close()
	assert.Equal(t, "https://github.com/login/oauth/authorize?state=user", opened)

	_, err = surface.Location()
	require.ErrorIs(t, err, ErrCrossOrigin)

	addr := surface.(*LoopbackSurface).Addr()
	resp, err := http.Get("http://" + addr + "/login?code=abc&state=user")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "close this window")

	location, err := surface.Location()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", location.Host)
	assert.Equal(t, "/login", location.Path)
	assert.Equal(t, "abc", location.Query().Get("code"))

	resp, err = http.Get("http://" + addr + "/favicon.ico")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.False(t, surface.Closed())
	surface.Close()
	assert.True(t, surface.Closed())
}

func TestLoopbackSurfaceClosesWithContext(t *testing.T) {
	t.Parallel()

	opener, err := NewLoopbackOpener("http://127.0.0.1:0/cb")
	require.NoError(t, err)
	opener.openBrowser = func(string) error { return errors.New("no display") }

	ctx, cancel := context.WithCancel(context.Background())
	surface, err := opener.Open(ctx, "https://accounts.example.test/auth")
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, surface.Closed, time.Second, 5*time.Millisecond)
}

func TestNewLoopbackOpenerRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewLoopbackOpener("/login")
	require.Error(t, err)
}
