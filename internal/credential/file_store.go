package credential

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"session-marketplace/internal/model"
)

const (
	sealSaltSize = 16
	sealTime     = 1
	sealMemoryKB = 64 * 1024
	sealThreads  = 4
)

var sealAAD = []byte("marketplace-credentials/v1")

// slots is the on-disk layout: two named string slots.
type slots struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// sealedFile wraps slots encrypted with XChaCha20-Poly1305 under an
// argon2id-derived key.
type sealedFile struct {
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Sealed []byte `json:"sealed"`
}

// FileStore keeps the pair in a JSON file, optionally sealed with a passphrase.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

func NewFileStore(path string, passphrase string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("credential file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}

	store := &FileStore{path: path}
	if passphrase != "" {
		store.passphrase = []byte(passphrase)
	}
	return store, nil
}

func (s *FileStore) Save(pair model.CredentialPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeLocked(slots{AccessToken: pair.Access, RefreshToken: pair.Refresh})
}

func (s *FileStore) Read() (model.CredentialPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.readLocked()
	if !ok {
		return model.CredentialPair{}, false
	}
	pair := model.CredentialPair{Access: current.AccessToken, Refresh: current.RefreshToken}
	return pair, !pair.Empty()
}

func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("credential file remove failed", "path", s.path, "error", err)
	}
}

func (s *FileStore) ReplaceAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.readLocked()
	if !ok || (current.AccessToken == "" && current.RefreshToken == "") {
		return
	}
	current.AccessToken = token
	s.writeLocked(current)
}

func (s *FileStore) readLocked() (slots, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("credential file read failed", "path", s.path, "error", err)
		}
		return slots{}, false
	}

	if len(s.passphrase) > 0 {
		data, err = s.open(data)
		if err != nil {
			slog.Warn("credential file could not be unsealed", "path", s.path, "error", err)
			return slots{}, false
		}
	}

	var current slots
	if err := json.Unmarshal(data, &current); err != nil {
		slog.Warn("credential file is corrupt", "path", s.path, "error", err)
		return slots{}, false
	}
	return current, true
}

func (s *FileStore) writeLocked(current slots) {
	data, err := json.Marshal(current)
	if err != nil {
		slog.Error("credential encode failed", "error", err)
		return
	}

	if len(s.passphrase) > 0 {
		data, err = s.seal(data)
		if err != nil {
			slog.Error("credential seal failed", "error", err)
			return
		}
	}

	// Write-then-rename keeps both slots consistent for concurrent readers.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		slog.Error("credential temp file failed", "error", err)
		return
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		slog.Error("credential write failed", "error", errors.Join(writeErr, closeErr))
		return
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		slog.Warn("credential chmod failed", "error", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		slog.Error("credential rename failed", "path", s.path, "error", err)
	}
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, sealSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(sealedFile{
		Salt:   salt,
		Nonce:  nonce,
		Sealed: aead.Seal(nil, nonce, plain, sealAAD),
	})
}

func (s *FileStore) open(data []byte) ([]byte, error) {
	var envelope sealedFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Salt) != sealSaltSize {
		return nil, errors.New("credential file is not sealed")
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(envelope.Salt))
	if err != nil {
		return nil, err
	}
	if len(envelope.Nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	return aead.Open(nil, envelope.Nonce, envelope.Sealed, sealAAD)
}

func (s *FileStore) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, sealTime, sealMemoryKB, sealThreads, chacha20poly1305.KeySize)
}
