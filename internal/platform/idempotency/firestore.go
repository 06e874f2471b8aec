package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/vibek01/ECOM-D1/internal/platform/firestore"
)

const (
	defaultCollection  = "idempotency_keys"
	defaultMaxAttempts = 5
	defaultSweepLimit  = 100
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store idempotency keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore implements Store on a Firestore collection. Its small reservation transactions may be
// retried by the client, unlike order placement.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ttl = normaliseTTL(ttl)
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc firestoreRecord
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if record := doc.toRecord(); !record.expired(now) {
				result, err = reservationFor(record, fingerprint)
				return err
			}
		}

		record := newPendingRecord(key, fingerprint, now, ttl)
		if err := tx.Set(ref, fromRecord(record)); err != nil {
			return err
		}
		result = Reservation{State: ReservationStateNew, Record: record}
		return nil
	}, pfirestore.WithTxAttempts(defaultMaxAttempts))
	return result, err
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	ttl = normaliseTTL(ttl)
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}

	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record := Record{Key: key, Fingerprint: fingerprint}
		snap, err := tx.Get(ref)
		switch {
		case err != nil && status.Code(err) != codes.NotFound:
			return err
		case err == nil:
			var doc firestoreRecord
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			record = doc.toRecord()
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}
		return tx.Set(ref, fromRecord(complete(record, resp, now, ttl)))
	}, pfirestore.WithTxAttempts(defaultMaxAttempts))
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// CleanupExpired implements Store.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	docs, err := client.Collection(s.collection).Where("expires_at", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := batch.Delete(doc.Ref); err != nil {
			batch.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	batch.End()
	return len(docs), nil
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(recordID(key)), nil
}

type firestoreRecord struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
