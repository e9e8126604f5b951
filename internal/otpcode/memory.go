package otpcode

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type memoryEntry struct {
	codeHash  string
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-process TTLStore. Expiry is
// enforced lazily on read; there is no background sweeper. Intended as
// the explicit fallback for sms-login codes when the TTL store is
// unreachable, never as a silent default.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func memoryKey(identity string, purpose Purpose) string {
	return string(purpose) + ":" + identity
}

func (s *MemoryStore) Set(_ context.Context, identity string, purpose Purpose, codeHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memoryKey(identity, purpose)] = memoryEntry{
		codeHash:  codeHash,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, identity string, purpose Purpose, codeHash string) (CompareResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(identity, purpose)
	entry, ok := s.entries[key]
	if !ok {
		return CompareNotFound, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return CompareNotFound, nil
	}
	if subtle.ConstantTimeCompare([]byte(entry.codeHash), []byte(codeHash)) != 1 {
		return CompareMismatch, nil
	}
	delete(s.entries, key)
	return CompareDeleted, nil
}

func (s *MemoryStore) Delete(_ context.Context, identity string, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, memoryKey(identity, purpose))
	return nil
}

// Len reports the number of stored entries, including not-yet-swept
// expired ones.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
