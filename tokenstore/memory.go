package tokenstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process store for tests and single-node development.
// It is safe for concurrent use. Expired records stay in the map until
// Sweep runs, but are never returned.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{records: make(map[string]Record), now: o.now}
}

func (s *MemoryStore) Put(_ context.Context, owner, token string, expiresAt time.Time) error {
	now := s.now()
	if !expiresAt.After(now) {
		return ErrExpiryNotInFuture
	}

	s.mu.Lock()
	s.records[owner] = Record{
		OwnerID:   owner,
		TokenHash: HashToken(token),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, owner string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[owner]
	s.mu.RUnlock()

	if !ok || rec.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, owner string) error {
	s.mu.Lock()
	delete(s.records, owner)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Rotate(_ context.Context, owner, presented, next string, expiresAt time.Time) error {
	now := s.now()
	if !expiresAt.After(now) {
		return ErrExpiryNotInFuture
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[owner]
	if !ok {
		return ErrNotFound
	}
	if rec.Expired(now) {
		delete(s.records, owner)
		return ErrNotFound
	}
	if !rec.Matches(presented) {
		return ErrMismatch
	}

	s.records[owner] = Record{
		OwnerID:   owner,
		TokenHash: HashToken(next),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	return nil
}

// Sweep removes every expired record and returns how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for owner, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, owner)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
