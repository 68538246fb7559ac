package livequery

import (
	"fmt"

	"github.com/golang/glog"
)

// Mode selects how store events drive resync cycles.
type Mode int

const (
	// ModeImmediate runs one cycle per mutation event.
	ModeImmediate Mode = iota + 1

	// ModeOnCommit runs one cycle per commit event.
	ModeOnCommit

	// ModeBuffered accumulates mutation events until
	// [Controller.ApplyPendingChanges].
	ModeBuffered
)

// ModeFromFlags maps the two classic configuration flags to a Mode.
//
//	applyImmediately onCommitOnly  mode
//	true             false         ModeImmediate
//	true             true          ModeOnCommit
//	false            any           ModeBuffered
func ModeFromFlags(applyImmediately, onCommitOnly bool) Mode {
	switch {
	case !applyImmediately:
		return ModeBuffered
	case onCommitOnly:
		return ModeOnCommit
	default:
		return ModeImmediate
	}
}

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeOnCommit:
		return "on-commit"
	case ModeBuffered:
		return "buffered"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeImmediate, ModeOnCommit, ModeBuffered} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) valid() bool {
	return m >= ModeImmediate && m <= ModeBuffered
}

func (m Mode) category() Category {
	if m == ModeOnCommit {
		return CategoryCommit
	}

	return CategoryMutation
}

// adapter owns the store subscription, the pending buffer and the cycle queue.
//
// Cycles never overlap: a delivery that arrives while a cycle runs (from an
// observer callback) is queued and runs after it.
type adapter[R Record] struct {
	store  Store[R]
	entity string
	mode   Mode
	cycle  func(Signals[R]) ChangeSet[R]

	unsubscribe func()
	pending     *Pending[R]
	queue       []Signals[R]
	running     bool
}

func newAdapter[R Record](store Store[R], entity string, mode Mode, cycle func(Signals[R]) ChangeSet[R]) *adapter[R] {
	return &adapter[R]{
		store:   store,
		entity:  entity,
		mode:    mode,
		cycle:   cycle,
		pending: NewPending[R](),
	}
}

func (a *adapter[R]) subscribed() bool {
	return a.unsubscribe != nil
}

func (a *adapter[R]) subscribe() error {
	if a.subscribed() {
		return nil
	}

	unsub, err := a.store.Subscribe(a.mode.category(), a.deliver)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", a.mode.category(), err)
	}

	a.unsubscribe = unsub

	return nil
}

// detach unsubscribes and drops everything not yet applied.
func (a *adapter[R]) detach() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}

	a.pending = NewPending[R]()
	a.queue = nil
}

func (a *adapter[R]) deliver(ev Event[R]) {
	if a.entity != "" && ev.Entity != a.entity {
		return
	}

	if ev.Signals.Empty() {
		return
	}

	if a.mode == ModeBuffered {
		a.pending.Add(ev.Signals)

		return
	}

	a.run(ev.Signals)
}

// run executes sig, or queues it when a cycle is already running. The change
// set of sig is returned only when it ran synchronously.
func (a *adapter[R]) run(sig Signals[R]) ChangeSet[R] {
	if a.running {
		a.queue = append(a.queue, sig)

		return ChangeSet[R]{}
	}

	a.running = true
	defer func() { a.running = false }()

	cs := a.cycle(sig)

	for len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		a.cycle(next)
	}

	return cs
}

// flush applies the pending buffer as one cycle.
func (a *adapter[R]) flush() ChangeSet[R] {
	if a.pending.Len() == 0 {
		return ChangeSet[R]{}
	}

	return a.run(a.pending.Drain())
}

// setMode switches modes. Pending changes are applied before leaving
// buffered mode; the subscription is moved when the category changes.
func (a *adapter[R]) setMode(m Mode) error {
	if m == a.mode {
		return nil
	}

	if a.mode == ModeBuffered {
		a.flush()
	}

	prev := a.mode
	a.mode = m

	if !a.subscribed() || prev.category() == m.category() {
		return nil
	}

	a.unsubscribe()
	a.unsubscribe = nil

	err := a.subscribe()
	if err != nil {
		return err
	}

	glog.V(1).Infof("livequery: mode %s -> %s, resubscribed to %s events", prev, m, m.category())

	return nil
}
