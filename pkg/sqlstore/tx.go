package sqlstore

import (
	"context"
	"fmt"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

type opKind int

const (
	opInsert opKind = iota + 1
	opUpdate
	opDelete
)

type txOp[R livequery.Record] struct {
	kind opKind
	id   string
	rec  R
	data []byte // encoded rec, nil for deletes
}

// staged is the transaction's view of one id.
type staged[R livequery.Record] struct {
	rec     R
	deleted bool
}

// Tx buffers writes until [Tx.Commit].
//
// Reads inside the transaction see its own buffered writes. Operations are
// applied and published in the order they were made.
type Tx[R livequery.Record] struct {
	store  *Store[R]
	ctx    context.Context
	ops    []txOp[R]
	view   map[string]staged[R]
	closed bool
}

// Begin starts a transaction.
func (s *Store[R]) Begin(ctx context.Context) (*Tx[R], error) {
	if s.closed {
		return nil, ErrClosed
	}

	return &Tx[R]{store: s, ctx: ctx, view: map[string]staged[R]{}}, nil
}

// Get reads through buffered writes.
func (tx *Tx[R]) Get(id string) (R, bool, error) {
	if st, ok := tx.view[id]; ok {
		if st.deleted {
			var zero R

			return zero, false, nil
		}

		return st.rec, true, nil
	}

	return tx.store.Get(tx.ctx, id)
}

func (tx *Tx[R]) exists(id string) (bool, error) {
	if tx.closed {
		return false, errTxClosed
	}

	if id == "" {
		return false, errEmptyID
	}

	_, ok, err := tx.Get(id)

	return ok, err
}

// Insert buffers a new record. Returns [ErrExists] if the id is taken.
func (tx *Tx[R]) Insert(rec R) error {
	ok, err := tx.exists(rec.ID())
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	if ok {
		return fmt.Errorf("insert %s: %w", rec.ID(), ErrExists)
	}

	return tx.buffer(opInsert, rec)
}

// Update buffers a replacement. Returns [ErrNotFound] for unknown ids.
func (tx *Tx[R]) Update(rec R) error {
	ok, err := tx.exists(rec.ID())
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if !ok {
		return fmt.Errorf("update %s: %w", rec.ID(), ErrNotFound)
	}

	return tx.buffer(opUpdate, rec)
}

// Put buffers an insert or update, whichever applies.
func (tx *Tx[R]) Put(rec R) error {
	ok, err := tx.exists(rec.ID())
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	if ok {
		return tx.buffer(opUpdate, rec)
	}

	return tx.buffer(opInsert, rec)
}

// Delete buffers a removal. Returns [ErrNotFound] for unknown ids.
func (tx *Tx[R]) Delete(id string) error {
	if tx.closed {
		return fmt.Errorf("delete: %w", errTxClosed)
	}

	if id == "" {
		return fmt.Errorf("delete: %w", errEmptyID)
	}

	rec, ok, err := tx.Get(id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	tx.ops = append(tx.ops, txOp[R]{kind: opDelete, id: id, rec: rec})
	tx.view[id] = staged[R]{rec: rec, deleted: true}

	return nil
}

func (tx *Tx[R]) buffer(kind opKind, rec R) error {
	data, err := tx.store.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID(), err)
	}

	tx.ops = append(tx.ops, txOp[R]{kind: kind, id: rec.ID(), rec: rec, data: data})
	tx.view[rec.ID()] = staged[R]{rec: rec}

	return nil
}

// Rollback discards buffered writes. Safe to call after Commit.
func (tx *Tx[R]) Rollback() {
	tx.closed = true
	tx.ops = nil
	tx.view = nil
}

// Commit writes all buffered operations in one SQL transaction, then
// publishes one mutation event per operation and one commit event for the
// whole transaction. An empty transaction publishes nothing.
func (tx *Tx[R]) Commit(ctx context.Context) error {
	if tx.closed {
		return errTxClosed
	}

	tx.closed = true

	if len(tx.ops) == 0 {
		return nil
	}

	s := tx.store
	if s.closed {
		return ErrClosed
	}

	err := s.write(ctx, tx.ops)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	commit := livequery.NewPending[R]()

	for _, op := range tx.ops {
		sig := op.signals()
		commit.Add(sig)
		s.hub.Publish(livequery.CategoryMutation, livequery.Event[R]{Entity: s.entity, Signals: sig})
	}

	if commit.Len() > 0 {
		s.hub.Publish(livequery.CategoryCommit, livequery.Event[R]{Entity: s.entity, Signals: commit.Drain()})
	}

	return nil
}

func (op txOp[R]) signals() livequery.Signals[R] {
	rec := []R{op.rec}

	switch op.kind {
	case opInsert:
		return livequery.Signals[R]{Inserted: rec}
	case opUpdate:
		return livequery.Signals[R]{Updated: rec}
	default:
		return livequery.Signals[R]{Deleted: rec}
	}
}

func (s *Store[R]) write(ctx context.Context, ops []txOp[R]) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}

	for _, op := range ops {
		switch op.kind {
		case opDelete:
			_, err = sqlTx.ExecContext(ctx, "DELETE FROM records WHERE entity = ? AND id = ?", s.entity, op.id)
		default:
			_, err = sqlTx.ExecContext(ctx, `
				INSERT INTO records (entity, id, data) VALUES (?, ?, ?)
				ON CONFLICT (entity, id) DO UPDATE SET data = excluded.data`,
				s.entity, op.id, op.data)
		}

		if err != nil {
			_ = sqlTx.Rollback()

			return fmt.Errorf("sqlite: %s: %w", op.id, err)
		}
	}

	err = sqlTx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}

	return nil
}
