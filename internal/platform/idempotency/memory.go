package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Suitable for a single instance and for tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if !ok || record.expired(now) {
		record = newPendingRecord(key, fingerprint, now, normaliseTTL(ttl))
		s.records[id] = record
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	return reservationFor(record, fingerprint)
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	record, ok := s.records[id]
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint}
	}
	s.records[id] = complete(record, resp, now, normaliseTTL(ttl))
	return nil
}

// Release implements Store. Only the owner of the reservation can release it.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := recordID(key)
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if !record.expired(now) {
			continue
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}
