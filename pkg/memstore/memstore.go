// Package memstore provides an in-memory [livequery.Store] for tests, demos
// and ephemeral data.
//
// A Store holds the records of one entity. Mutations apply immediately and
// publish one mutation event per call. [Store.Commit] publishes one commit
// event covering every mutation since the previous commit, coalesced by id.
// [Store.RunInTransaction] stages mutations against a copy and applies them
// only when the callback succeeds, then commits.
//
// A Store is not safe for concurrent use. Events are delivered synchronously
// on the mutating call, so a subscriber may mutate the store from its handler.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

var (
	// ErrExists is returned when inserting a record whose id is taken.
	ErrExists = errors.New("record already exists")

	// ErrNotFound is returned when updating or deleting an unknown id.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyID is returned for records without an id.
	ErrEmptyID = errors.New("record has empty id")

	// ErrWrongEntity is returned by Execute for specs of another entity.
	ErrWrongEntity = errors.New("fetch spec entity does not match store")
)

var _ livequery.Store[idRecord] = (*Store[idRecord])(nil)

type idRecord string

func (r idRecord) ID() string { return string(r) }

// Store is an in-memory record store for one entity.
type Store[R livequery.Record] struct {
	entity  string
	records map[string]R
	hub     livequery.Hub[R]

	// uncommitted coalesces everything since the last commit.
	uncommitted *livequery.Pending[R]
}

// New returns an empty store for entity.
func New[R livequery.Record](entity string) *Store[R] {
	return &Store[R]{
		entity:      entity,
		records:     map[string]R{},
		uncommitted: livequery.NewPending[R](),
	}
}

// NewID returns a fresh time-ordered record id (UUIDv7).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Entity returns the entity name events are published under.
func (s *Store[R]) Entity() string { return s.entity }

// Len returns the number of stored records.
func (s *Store[R]) Len() int { return len(s.records) }

// Get returns the record with id.
func (s *Store[R]) Get(id string) (R, bool) {
	r, ok := s.records[id]

	return r, ok
}

// All returns every record ordered by id.
func (s *Store[R]) All() []R {
	out := make([]R, 0, len(s.records))
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		out = append(out, s.records[id])
	}

	return out
}

// Execute implements [livequery.Store]. Records are returned in id order;
// the first predicate error aborts the query.
func (s *Store[R]) Execute(ctx context.Context, spec livequery.FetchSpec[R]) ([]R, error) {
	err := ctx.Err()
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	if spec.Entity != "" && spec.Entity != s.entity {
		return nil, fmt.Errorf("execute %q: %w (store holds %q)", spec.Entity, ErrWrongEntity, s.entity)
	}

	var out []R

	for _, rec := range s.All() {
		ok, err := spec.Match(rec)
		if err != nil {
			return nil, fmt.Errorf("execute: record %s: %w", rec.ID(), err)
		}

		if ok {
			out = append(out, rec)
		}
	}

	return out, nil
}

// Subscribe implements [livequery.Store].
func (s *Store[R]) Subscribe(category livequery.Category, fn func(livequery.Event[R])) (func(), error) {
	return s.hub.Subscribe(category, fn)
}

// Subscribers returns the number of live subscriptions.
func (s *Store[R]) Subscribers() int { return s.hub.Subscribers() }

// Insert adds records that must not exist yet.
func (s *Store[R]) Insert(recs ...R) error {
	sig, err := stage(s.records, opInsert, recs)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	s.apply([]livequery.Signals[R]{sig})

	return nil
}

// Update replaces records that must exist.
func (s *Store[R]) Update(recs ...R) error {
	sig, err := stage(s.records, opUpdate, recs)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	s.apply([]livequery.Signals[R]{sig})

	return nil
}

// Put inserts or replaces records.
func (s *Store[R]) Put(recs ...R) error {
	sig, err := stage(s.records, opPut, recs)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	s.apply([]livequery.Signals[R]{sig})

	return nil
}

// Delete removes records by id. Every id must exist.
func (s *Store[R]) Delete(ids ...string) error {
	sig, err := stageDelete(s.records, ids)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	s.apply([]livequery.Signals[R]{sig})

	return nil
}

// Commit publishes one commit event with every change since the previous
// commit. Nothing is published when nothing changed.
func (s *Store[R]) Commit() {
	if s.uncommitted.Len() == 0 {
		return
	}

	sig := s.uncommitted.Drain()
	s.hub.Publish(livequery.CategoryCommit, livequery.Event[R]{Entity: s.entity, Signals: sig})
}

// RunInTransaction runs fn against a staged copy. On success the staged
// mutations are applied in order, each publishing its mutation event, and
// then committed. On error nothing changes and nothing is published.
func (s *Store[R]) RunInTransaction(ctx context.Context, fn func(tx *Tx[R]) error) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}

	tx := &Tx[R]{records: maps.Clone(s.records)}

	err = fn(tx)
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}

	s.records = tx.records
	s.publish(tx.changes)
	s.Commit()

	return nil
}

// apply writes staged signals to the live map and publishes them.
func (s *Store[R]) apply(batches []livequery.Signals[R]) {
	for _, sig := range batches {
		write(s.records, sig)
	}

	s.publish(batches)
}

func (s *Store[R]) publish(batches []livequery.Signals[R]) {
	for _, sig := range batches {
		if sig.Empty() {
			continue
		}

		s.uncommitted.Add(sig)
		s.hub.Publish(livequery.CategoryMutation, livequery.Event[R]{Entity: s.entity, Signals: sig})
	}
}

// Tx stages mutations inside [Store.RunInTransaction].
type Tx[R livequery.Record] struct {
	records map[string]R
	changes []livequery.Signals[R]
}

// Get reads through staged changes.
func (tx *Tx[R]) Get(id string) (R, bool) {
	r, ok := tx.records[id]

	return r, ok
}

// Insert stages inserts.
func (tx *Tx[R]) Insert(recs ...R) error { return tx.stage(opInsert, recs) }

// Update stages updates.
func (tx *Tx[R]) Update(recs ...R) error { return tx.stage(opUpdate, recs) }

// Put stages upserts.
func (tx *Tx[R]) Put(recs ...R) error { return tx.stage(opPut, recs) }

// Delete stages deletes.
func (tx *Tx[R]) Delete(ids ...string) error {
	sig, err := stageDelete(tx.records, ids)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	write(tx.records, sig)
	tx.changes = append(tx.changes, sig)

	return nil
}

func (tx *Tx[R]) stage(op opKind, recs []R) error {
	sig, err := stage(tx.records, op, recs)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	write(tx.records, sig)
	tx.changes = append(tx.changes, sig)

	return nil
}

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opPut
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "put"
	}
}

// stage validates recs against records and classifies them. records is not
// modified. A record repeated within recs keeps its last value.
func stage[R livequery.Record](records map[string]R, op opKind, recs []R) (livequery.Signals[R], error) {
	var sig livequery.Signals[R]

	seen := map[string]int{} // id -> index in the target slice

	for _, rec := range recs {
		id := rec.ID()
		if id == "" {
			return livequery.Signals[R]{}, ErrEmptyID
		}

		_, exists := records[id]

		switch {
		case op == opInsert && exists:
			return livequery.Signals[R]{}, fmt.Errorf("%w: %s", ErrExists, id)
		case op == opUpdate && !exists:
			return livequery.Signals[R]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		if i, dup := seen[id]; dup {
			if exists {
				sig.Updated[i] = rec
			} else {
				sig.Inserted[i] = rec
			}

			continue
		}

		if exists {
			seen[id] = len(sig.Updated)
			sig.Updated = append(sig.Updated, rec)
		} else {
			seen[id] = len(sig.Inserted)
			sig.Inserted = append(sig.Inserted, rec)
		}
	}

	return sig, nil
}

func stageDelete[R livequery.Record](records map[string]R, ids []string) (livequery.Signals[R], error) {
	var sig livequery.Signals[R]

	seen := map[string]bool{}

	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			return livequery.Signals[R]{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		if seen[id] {
			continue
		}

		seen[id] = true
		sig.Deleted = append(sig.Deleted, rec)
	}

	return sig, nil
}

func write[R livequery.Record](records map[string]R, sig livequery.Signals[R]) {
	for _, rec := range sig.Inserted {
		records[rec.ID()] = rec
	}

	for _, rec := range sig.Updated {
		records[rec.ID()] = rec
	}

	for _, rec := range sig.Deleted {
		delete(records, rec.ID())
	}
}
