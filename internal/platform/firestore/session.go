package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type writeKind int

const (
	writeSet writeKind = iota
	writeCreate
	writeDelete
)

type stagedWrite struct {
	kind    writeKind
	ref     *firestore.DocumentRef
	payload any
	value   any
	skip    bool
}

// TxSession tracks the reads and writes of one Firestore transaction. Firestore requires every read to
// happen before the first write, so writes are staged in order and applied when the closure returns.
// Reads of a document that already has a staged write observe the staged value.
type TxSession struct {
	tx     *firestore.Transaction
	writes []stagedWrite
	index  map[string]int
}

type sessionKey struct{}

func newTxSession(tx *firestore.Transaction) *TxSession {
	return &TxSession{tx: tx, index: make(map[string]int)}
}

// SessionFromContext returns the active transaction session, if any.
func SessionFromContext(ctx context.Context) (*TxSession, bool) {
	if ctx == nil {
		return nil, false
	}
	session, ok := ctx.Value(sessionKey{}).(*TxSession)
	return session, ok && session != nil
}

func withSession(ctx context.Context, session *TxSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// Transaction exposes the underlying Firestore transaction.
func (s *TxSession) Transaction() *firestore.Transaction {
	return s.tx
}

// staged returns the pending write for ref. A staged delete reports deleted=true.
func (s *TxSession) staged(ref *firestore.DocumentRef) (value any, deleted bool, ok bool) {
	idx, ok := s.index[ref.Path]
	if !ok {
		return nil, false, false
	}
	write := s.writes[idx]
	return write.value, write.kind == writeDelete, true
}

func (s *TxSession) stage(kind writeKind, ref *firestore.DocumentRef, payload, value any) error {
	if idx, ok := s.index[ref.Path]; ok {
		existing := s.writes[idx]
		switch {
		case kind == writeCreate && existing.kind != writeDelete:
			return newError("session.create", status.Error(codes.AlreadyExists, "document already written in this transaction"))
		case kind == writeCreate && existing.skip:
			existing.kind = writeCreate
			existing.skip = false
		case kind == writeCreate:
			// Recreating a document deleted earlier in the transaction overwrites it.
			existing.kind = writeSet
		case kind == writeDelete && existing.kind == writeCreate:
			// Created and deleted in the same transaction: nothing reaches the store.
			s.writes[idx] = stagedWrite{kind: writeDelete, ref: ref, skip: true}
			return nil
		case kind == writeDelete:
			existing.kind = writeDelete
		case existing.kind == writeDelete && !existing.skip:
			existing.kind = writeSet
		case existing.kind == writeDelete:
			existing.kind = writeCreate
			existing.skip = false
		}
		existing.payload = payload
		existing.value = value
		s.writes[idx] = existing
		return nil
	}
	s.index[ref.Path] = len(s.writes)
	s.writes = append(s.writes, stagedWrite{kind: kind, ref: ref, payload: payload, value: value})
	return nil
}

func (s *TxSession) flush() error {
	for _, write := range s.writes {
		if write.skip {
			continue
		}
		var err error
		switch write.kind {
		case writeCreate:
			err = s.tx.Create(write.ref, write.payload)
		case writeDelete:
			err = s.tx.Delete(write.ref, firestore.Exists)
		default:
			err = s.tx.Set(write.ref, write.payload)
		}
		if err != nil {
			return WrapError("session.flush", err)
		}
	}
	return nil
}

// RunInTx runs fn inside a Firestore transaction. Repositories built on BaseRepository join the
// transaction through the context handed to fn. Staged writes are committed only when fn returns nil;
// otherwise the transaction is rolled back and fn's error is returned as is. Calls nested inside an
// active session join it.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error, opts ...TxOption) error {
	if fn == nil {
		return errors.New("firestore: transaction function is nil")
	}
	if _, ok := SessionFromContext(ctx); ok {
		return fn(ctx)
	}
	return p.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		session := newTxSession(tx)
		if err := fn(withSession(ctx, session)); err != nil {
			return err
		}
		return session.flush()
	}, opts...)
}
