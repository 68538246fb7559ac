package livequery

import (
	"maps"
	"slices"
	"strings"
)

// Signals is the raw mutation payload of one store event or one drained
// buffer: record snapshots that were inserted, updated or deleted.
type Signals[R Record] struct {
	Inserted []R
	Updated  []R
	Deleted  []R
}

// Empty reports whether no record was signaled.
func (s Signals[R]) Empty() bool {
	return len(s.Inserted) == 0 && len(s.Updated) == 0 && len(s.Deleted) == 0
}

// Len returns the total number of signaled records.
func (s Signals[R]) Len() int {
	return len(s.Inserted) + len(s.Updated) + len(s.Deleted)
}

// Pending coalesces mutation signals by record id. The controller buffers
// with it in [ModeBuffered]; store adapters use it to build commit events.
//
// Each id lives in at most one of the three sets. Later signals replace
// earlier snapshots:
//
//	insert + update  -> insert (fresh snapshot)
//	update + delete  -> delete
//	insert + delete  -> nothing
//	delete + insert  -> update
//
// The zero value is not usable; call [NewPending].
type Pending[R Record] struct {
	inserted map[string]R
	updated  map[string]R
	deleted  map[string]R
}

// NewPending returns an empty buffer.
func NewPending[R Record]() *Pending[R] {
	return &Pending[R]{
		inserted: map[string]R{},
		updated:  map[string]R{},
		deleted:  map[string]R{},
	}
}

// Len returns the number of buffered records.
func (p *Pending[R]) Len() int {
	return len(p.inserted) + len(p.updated) + len(p.deleted)
}

// Add merges sig in order: inserts, then updates, then deletes.
func (p *Pending[R]) Add(sig Signals[R]) {
	for _, rec := range sig.Inserted {
		p.insert(rec)
	}

	for _, rec := range sig.Updated {
		p.update(rec)
	}

	for _, rec := range sig.Deleted {
		p.remove(rec)
	}
}

func (p *Pending[R]) insert(rec R) {
	id := rec.ID()

	if _, ok := p.deleted[id]; ok {
		// delete + insert: the object existed before and still does.
		delete(p.deleted, id)
		p.updated[id] = rec

		return
	}

	delete(p.updated, id)
	p.inserted[id] = rec
}

func (p *Pending[R]) update(rec R) {
	id := rec.ID()

	if _, ok := p.inserted[id]; ok {
		p.inserted[id] = rec

		return
	}

	if _, ok := p.deleted[id]; ok {
		// Update after delete is a stale signal; the delete stands.
		return
	}

	p.updated[id] = rec
}

func (p *Pending[R]) remove(rec R) {
	id := rec.ID()

	if _, ok := p.inserted[id]; ok {
		// insert + delete: never observed.
		delete(p.inserted, id)

		return
	}

	delete(p.updated, id)
	p.deleted[id] = rec
}

// Drain returns the accumulated signals sorted by id and resets the buffer.
func (p *Pending[R]) Drain() Signals[R] {
	sig := Signals[R]{
		Inserted: sortedValues(p.inserted),
		Updated:  sortedValues(p.updated),
		Deleted:  sortedValues(p.deleted),
	}

	p.inserted = map[string]R{}
	p.updated = map[string]R{}
	p.deleted = map[string]R{}

	return sig
}

func sortedValues[R Record](m map[string]R) []R {
	if len(m) == 0 {
		return nil
	}

	vals := slices.Collect(maps.Values(m))
	slices.SortFunc(vals, func(a, b R) int { return strings.Compare(a.ID(), b.ID()) })

	return vals
}
