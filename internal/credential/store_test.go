package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-marketplace/internal/model"
)

// exerciseStore runs the shared contract against any Store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	_, ok := store.Read()
	require.False(t, ok, "fresh store must be empty")

	store.ReplaceAccess("orphan")
	_, ok = store.Read()
	require.False(t, ok, "replacing access on an empty store must not create a half pair")

	store.Save(model.CredentialPair{Access: "access-1", Refresh: "refresh-1"})
	pair, ok := store.Read()
	require.True(t, ok)
	assert.Equal(t, model.CredentialPair{Access: "access-1", Refresh: "refresh-1"}, pair)

	store.ReplaceAccess("access-2")
	pair, ok = store.Read()
	require.True(t, ok)
	assert.Equal(t, "access-2", pair.Access)
	assert.Equal(t, "refresh-1", pair.Refresh, "refresh token must be left untouched")

	store.Save(model.CredentialPair{Access: "access-3", Refresh: "refresh-3"})
	pair, _ = store.Read()
	assert.Equal(t, "refresh-3", pair.Refresh)

	store.Clear()
	_, ok = store.Read()
	require.False(t, ok)

	store.Clear()
	_, ok = store.Read()
	require.False(t, ok, "clear must be idempotent")
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	t.Run("plain", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"), "")
		require.NoError(t, err)
		exerciseStore(t, store)
	})

	t.Run("sealed", func(t *testing.T) {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"), "correct horse")
		require.NoError(t, err)
		exerciseStore(t, store)
	})
}

func TestFileStoreSealedAtRest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewFileStore(path, "correct horse")
	require.NoError(t, err)
	store.Save(model.CredentialPair{Access: "secret-access", Refresh: "secret-refresh"})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access")
	assert.NotContains(t, string(raw), "secret-refresh")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	wrongKey, err := NewFileStore(path, "battery staple")
	require.NoError(t, err)
	_, ok := wrongKey.Read()
	assert.False(t, ok, "a wrong passphrase reads as absent")

	reopened, err := NewFileStore(path, "correct horse")
	require.NoError(t, err)
	pair, ok := reopened.Read()
	require.True(t, ok)
	assert.Equal(t, "secret-access", pair.Access)
}

func TestFileStoreCorruptFileReadsAsAbsent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path, "")
	require.NoError(t, err)
	_, ok := store.Read()
	assert.False(t, ok)
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("  ", "")
	require.Error(t, err)
}
