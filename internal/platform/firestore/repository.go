package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping Firestore collection access. Every method joins the
// transaction carried by ctx when called inside Provider.RunInTx.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Set upserts the given value under the provided document ID.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	return r.write(ctx, writeSet, id, value)
}

// Create inserts the value and fails with a conflict when the document already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	return r.write(ctx, writeCreate, id, value)
}

func (r *BaseRepository[T]) write(ctx context.Context, kind writeKind, id string, value T) error {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return fmt.Errorf("firestore: encode document %s: %w", id, err)
	}

	if session, ok := SessionFromContext(ctx); ok {
		return session.stage(kind, doc, payload, value)
	}

	switch kind {
	case writeCreate:
		_, err = doc.Create(ctx, payload)
		return WrapError(r.op("create"), err)
	default:
		_, err = doc.Set(ctx, payload)
		return WrapError(r.op("set"), err)
	}
}

// Delete removes the document and reports not found when it does not exist. Inside a transaction the
// delete is staged until commit.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return err
	}
	if session, ok := SessionFromContext(ctx); ok {
		return session.stage(writeDelete, doc, nil, nil)
	}
	_, err = doc.Delete(ctx, firestore.Exists)
	return WrapError(r.op("delete"), err)
}

// Get fetches the document by ID and decodes it into the strongly typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	var snapshot *firestore.DocumentSnapshot
	if session, ok := SessionFromContext(ctx); ok {
		if value, deleted, staged := session.staged(doc); staged {
			if deleted {
				return Document[T]{}, newError(r.op("get"), status.Error(codes.NotFound, "document deleted in this transaction"))
			}
			return Document[T]{ID: doc.ID, Data: value.(T)}, nil
		}
		snapshot, err = session.tx.Get(doc)
	} else {
		snapshot, err = doc.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.decodeDocument(ctx, snapshot)
}

// GetAll fetches the documents with the given IDs in one round trip. Missing documents are skipped.
func (r *BaseRepository[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		refs = append(refs, coll.Doc(id))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	var snapshots []*firestore.DocumentSnapshot
	if session, ok := SessionFromContext(ctx); ok {
		snapshots, err = session.tx.GetAll(refs)
	} else {
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, WrapError(r.op("get_all"), err)
	}

	docs := make([]Document[T], 0, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Exists() {
			continue
		}
		decoded, err := r.decodeDocument(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if session, ok := SessionFromContext(ctx); ok {
		iter = session.tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if isIteratorDone(err) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		decoded, err := r.decodeDocument(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

// DocumentRef exposes the underlying document reference for advanced scenarios.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

func (r *BaseRepository[T]) decodeDocument(ctx context.Context, snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), status.Error(codes.InvalidArgument, "firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}

// IsNotFound reports whether err denotes a missing document.
func IsNotFound(err error) bool {
	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return status.Code(err) == codes.NotFound
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
