package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRevocationStore is a process-local RevocationStore. Entries are
// dropped once the token would have expired.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore returns an empty store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke remembers tokenID until expiresAt.
func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !expiresAt.After(now) {
		return nil
	}
	s.cleanup(now)
	s.entries[tokenID] = expiresAt
	return nil
}

// IsRevoked reports whether tokenID was revoked and has not yet expired.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.entries[tokenID]
	return ok && exp.After(s.now()), nil
}

// cleanup removes expired entries. Callers hold the write lock.
func (s *MemoryRevocationStore) cleanup(now time.Time) {
	for id, exp := range s.entries {
		if !exp.After(now) {
			delete(s.entries, id)
		}
	}
}
