package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "idempotency:"

// RedisStore keeps one JSON record per key and lets Redis expire it.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption customises RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace prepended to every Redis key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve implements Store. SETNX makes the first writer the owner; later callers read the record.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = normaliseTTL(ttl)
	redisKey := s.key(key)

	record := newPendingRecord(key, fingerprint, now, ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	// Two rounds cover a record that expires between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := s.client.SetNX(ctx, redisKey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: record}, nil
		}

		existing, found, err := s.load(ctx, redisKey)
		if err != nil {
			return Reservation{}, err
		}
		if !found {
			continue
		}
		if existing.expired(now) {
			if err := s.client.Del(ctx, redisKey).Err(); err != nil {
				return Reservation{}, fmt.Errorf("idempotency: drop expired: %w", err)
			}
			continue
		}
		return reservationFor(existing, fingerprint)
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// SaveResponse implements Store. The fingerprint check and write run under WATCH so a concurrent
// reservation for a different request cannot be overwritten.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = normaliseTTL(ttl)
	redisKey := s.key(key)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		record := Record{Key: key, Fingerprint: fingerprint}
		raw, err := tx.Get(ctx, redisKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("idempotency: load: %w", err)
		default:
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("idempotency: decode record: %w", err)
			}
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}

		payload, err := json.Marshal(complete(record, resp, now, ttl))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, ttl)
			return nil
		})
		return err
	}, redisKey)
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	redisKey := s.key(key)
	record, found, err := s.load(ctx, redisKey)
	if err != nil || !found {
		return err
	}
	if record.Fingerprint != fingerprint {
		return nil
	}
	return s.client.Del(ctx, redisKey).Err()
}

// CleanupExpired implements Store. Redis expires keys on its own, so there is nothing to sweep.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, redisKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + recordID(key)
}
