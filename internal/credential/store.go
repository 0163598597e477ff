// Package credential persists the access/refresh token pair. Stores never
// fail from the caller's point of view: absence is a normal state, and storage
// faults are logged and surface as absence.
package credential

import (
	"sync"

	"session-marketplace/internal/model"
)

const (
	AccessSlot  = "access_token"
	RefreshSlot = "refresh_token"
)

// Store holds the two token slots. Both are written and cleared together;
// ReplaceAccess is the only single-slot write and is used after a refresh.
type Store interface {
	Save(pair model.CredentialPair)
	Read() (model.CredentialPair, bool)
	Clear()
	ReplaceAccess(token string)
}

type MemoryStore struct {
	mu   sync.RWMutex
	pair model.CredentialPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(pair model.CredentialPair) {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
}

func (s *MemoryStore) Read() (model.CredentialPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, !s.pair.Empty()
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.pair = model.CredentialPair{}
	s.mu.Unlock()
}

// ReplaceAccess is a no-op when nothing is stored.
func (s *MemoryStore) ReplaceAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair.Empty() {
		return
	}
	s.pair.Access = token
}
