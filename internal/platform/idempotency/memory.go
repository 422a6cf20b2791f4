package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process, for tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key Key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, record, write, err := claimAgainst(s.lookup(key), key, fingerprint, now.UTC(), ttl)
	if err == nil && write != nil {
		s.records[key.ID()] = *write
	}
	return claim, record, err
}

func (s *MemoryStore) SaveResponse(_ context.Context, key Key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := completed(s.lookup(key), key, fingerprint, resp, now.UTC(), ttl)
	if err != nil {
		return err
	}
	s.records[key.ID()] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.records, key.ID())
	s.mu.Unlock()
	return nil
}

// CleanupExpired removes up to limit expired records; limit <= 0 removes all of them.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed == limit {
			break
		}
		if record.expired(now.UTC()) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) lookup(key Key) *Record {
	record, ok := s.records[key.ID()]
	if !ok {
		return nil
	}
	return &record
}
