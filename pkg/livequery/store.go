package livequery

import (
	"context"
	"fmt"
	"slices"
)

// Category selects which store event stream a subscription receives.
type Category int

const (
	// CategoryMutation delivers one event per store mutation.
	CategoryMutation Category = iota + 1

	// CategoryCommit delivers one event per commit, covering every mutation
	// since the previous commit.
	CategoryCommit
)

func (c Category) String() string {
	switch c {
	case CategoryMutation:
		return "mutation"
	case CategoryCommit:
		return "commit"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Event is one store notification.
type Event[R Record] struct {
	// Entity is the record kind the signals belong to.
	Entity string

	Signals[R]
}

// Store is the boundary the controller depends on.
//
// Execute runs the fetch spec: it returns every record of spec.Entity that
// satisfies spec.Where. Order is not required; the controller sorts.
//
// Subscribe registers fn for events of the given category. Events must be
// delivered serially. The returned unsubscribe func must be synchronous: once
// it returns, fn is never called again.
type Store[R Record] interface {
	Execute(ctx context.Context, spec FetchSpec[R]) ([]R, error)
	Subscribe(category Category, fn func(Event[R])) (func(), error)
}

// Hub fans store events out to subscribers. Store adapters embed one.
//
// A Hub is not safe for concurrent use; callers serialize Publish with
// Subscribe and unsubscribe. A subscriber added during Publish first sees the
// next event; one removed during Publish sees nothing further.
type Hub[R Record] struct {
	next uint64
	subs []hubSub[R]
}

type hubSub[R Record] struct {
	id       uint64
	category Category
	fn       func(Event[R])
}

// Subscribe implements the subscription half of [Store].
func (h *Hub[R]) Subscribe(category Category, fn func(Event[R])) (func(), error) {
	if category != CategoryMutation && category != CategoryCommit {
		return nil, fmt.Errorf("subscribe: unknown category %v", category)
	}

	if fn == nil {
		return nil, fmt.Errorf("subscribe: nil handler")
	}

	h.next++
	id := h.next
	h.subs = append(h.subs, hubSub[R]{id: id, category: category, fn: fn})

	return func() {
		h.subs = slices.DeleteFunc(h.subs, func(s hubSub[R]) bool { return s.id == id })
	}, nil
}

// Publish delivers ev to every subscriber of category. Empty events are
// dropped.
func (h *Hub[R]) Publish(category Category, ev Event[R]) {
	if ev.Signals.Empty() {
		return
	}

	for _, s := range slices.Clone(h.subs) {
		if s.category != category || !h.active(s.id) {
			continue
		}

		s.fn(ev)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub[R]) Subscribers() int {
	return len(h.subs)
}

func (h *Hub[R]) active(id uint64) bool {
	return slices.ContainsFunc(h.subs, func(s hubSub[R]) bool { return s.id == id })
}
