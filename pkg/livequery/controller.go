package livequery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/golang/glog"
)

// Options configures a [Controller].
type Options struct {
	// CacheName enables the section cache when non-empty and Cache is set.
	CacheName string

	// Cache persists layouts between fetches. Nil disables caching.
	Cache SectionCache

	// Mode defaults to [ModeImmediate].
	Mode Mode

	// IndexTitle derives index titles from section names. Nil uses
	// [DefaultIndexTitle]. An [IndexTitler] observer takes precedence.
	IndexTitle func(sectionName string) string

	// OnError receives errors absorbed during resync cycles: predicate
	// failures and rejected cycles. It runs on the delivering context.
	OnError func(error)
}

// Controller keeps a sectioned result of a [FetchSpec] in sync with a [Store].
//
// A Controller starts unfetched. [Controller.PerformFetch] executes the query,
// builds the sections and subscribes to the store; from then on store events
// update the result and are reported to the observer. A Controller is not safe
// for concurrent use.
type Controller[R Record] struct {
	store Store[R]
	spec  FetchSpec[R]
	fp    Fingerprint
	opts  Options

	observer any
	caps     capabilities[R]
	adapter  *adapter[R]

	// state is nil while unfetched.
	state *State[R]

	// provisional marks a state seeded from the cache and not yet confirmed
	// by re-sectioning.
	provisional bool
	closed      bool
}

// New validates spec and returns an unfetched controller.
func New[R Record](store Store[R], spec FetchSpec[R], opts Options) (*Controller[R], error) {
	if store == nil {
		return nil, errors.New("new controller: nil store")
	}

	if opts.Mode == 0 {
		opts.Mode = ModeImmediate
	}

	if !opts.Mode.valid() {
		return nil, fmt.Errorf("new controller: invalid mode %v", opts.Mode)
	}

	err := spec.validate(opts.caching())
	if err != nil {
		return nil, fmt.Errorf("new controller: %w", err)
	}

	c := &Controller[R]{
		store: store,
		spec:  spec,
		fp:    spec.Fingerprint(),
		opts:  opts,
	}
	c.adapter = newAdapter(store, spec.Entity, opts.Mode, c.cycle)

	return c, nil
}

func (o Options) caching() bool {
	return o.Cache != nil && o.CacheName != ""
}

// FetchSpec returns the controller's spec.
func (c *Controller[R]) FetchSpec() FetchSpec[R] { return c.spec }

// Fingerprint returns the structural fingerprint of the fetch spec.
func (c *Controller[R]) Fingerprint() Fingerprint { return c.fp }

// SetObserver assigns the observer and probes its capabilities. Nil removes
// it. When fetched, index titles of the current result are re-derived without
// notifying anyone.
func (c *Controller[R]) SetObserver(o any) {
	c.observer = o
	c.caps = probe[R](o)

	if c.state != nil {
		c.state = c.retitle(c.state)
	}
}

// Observer returns the assigned observer.
func (c *Controller[R]) Observer() any { return c.observer }

// PerformFetch executes the query and (re)builds the result.
//
// Any previous subscription is torn down first and pending changes are
// discarded. On error the controller is unfetched.
func (c *Controller[R]) PerformFetch(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}

	c.adapter.detach()
	c.state = nil
	c.provisional = false

	records, err := c.store.Execute(ctx, c.spec)
	if err != nil {
		return fmt.Errorf("perform fetch: %w: %w", ErrQueryExecution, err)
	}

	st, provisional, err := c.initialState(records)
	if err != nil {
		return fmt.Errorf("perform fetch: %w", err)
	}

	err = c.adapter.subscribe()
	if err != nil {
		return fmt.Errorf("perform fetch: %w", err)
	}

	c.state = st
	c.provisional = provisional

	if glog.V(1) {
		glog.Infof("livequery: fetched %d records in %d sections (fingerprint=%s provisional=%t mode=%s)",
			st.count, len(st.sections), c.fp, provisional, c.adapter.mode)
	}

	return nil
}

func (c *Controller[R]) initialState(records []R) (*State[R], bool, error) {
	if c.opts.caching() {
		if layout, ok := readCache(c.opts.Cache, c.opts.CacheName, c.fp); ok {
			if st, ok := seedFromLayout(layout, records); ok {
				return st, true, nil
			}

			glog.V(1).Infof("livequery: cache %q layout does not match fetched records, rebuilding", c.opts.CacheName)
		}
	}

	st, err := c.sectioner().build(c.sorted(records))
	if err != nil {
		return nil, false, err
	}

	writeCache(c.opts.Cache, c.opts.CacheName, c.fp, st.layout())

	return st, false, nil
}

func (c *Controller[R]) sorted(records []R) []R {
	out := slices.Clone(records)
	slices.SortStableFunc(out, c.spec.Compare)

	return out
}

func (c *Controller[R]) sectioner() sectioner[R] {
	return sectioner[R]{key: c.spec.sectionKey, title: c.SectionIndexTitle}
}

// retitle rebuilds index titles of st with the current title rule.
func (c *Controller[R]) retitle(st *State[R]) *State[R] {
	out := emptyState[R]()
	out.count = st.count
	out.paths = st.paths
	out.byName = st.byName
	out.sections = make([]*Section[R], len(st.sections))

	for i, s := range st.sections {
		out.sections[i] = &Section[R]{name: s.name, indexTitle: c.SectionIndexTitle(s.name), objects: s.objects}
	}

	indexTitles(out)

	return out
}

// cycle runs one resync. It is the adapter's only entry into the controller.
func (c *Controller[R]) cycle(sig Signals[R]) ChangeSet[R] {
	if c.state == nil {
		return ChangeSet[R]{}
	}

	if c.provisional && !c.confirm() {
		return ChangeSet[R]{}
	}

	res, err := resync(c.spec, c.sectioner(), c.state, sig)

	for _, recErr := range res.recordErrs {
		glog.Warningf("livequery: %v", recErr)
		report(c.opts.OnError, recErr)
	}

	if err != nil {
		glog.Warningf("livequery: cycle rejected: %v", err)
		report(c.opts.OnError, err)

		return ChangeSet[R]{}
	}

	if res.changes.Empty() {
		return res.changes
	}

	c.state = res.state
	writeCache(c.opts.Cache, c.opts.CacheName, c.fp, res.state.layout())

	c.caps.deliver(res.changes)

	return res.changes
}

// confirm re-sections a cache-seeded state. A disagreeing layout is replaced
// silently and the cache rewritten. Returns false if the cycle must not run.
func (c *Controller[R]) confirm() bool {
	st, err := c.sectioner().build(c.sorted(c.state.Objects()))
	if err != nil {
		glog.Warningf("livequery: confirm cached layout: %v", err)
		report(c.opts.OnError, err)

		return false
	}

	c.provisional = false

	if equalLayouts(st.layout(), c.state.layout()) {
		return true
	}

	glog.V(1).Infof("livequery: cache %q layout was stale, corrected", c.opts.CacheName)

	c.state = st
	writeCache(c.opts.Cache, c.opts.CacheName, c.fp, st.layout())

	return true
}

// Close unsubscribes from the store and discards the result. Further fetches
// fail with [ErrClosed].
func (c *Controller[R]) Close() error {
	c.adapter.detach()
	c.state = nil
	c.provisional = false
	c.closed = true

	return nil
}

// Fetched reports whether a result is available.
func (c *Controller[R]) Fetched() bool { return c.state != nil }

// Snapshot returns the current immutable result, or nil when unfetched.
func (c *Controller[R]) Snapshot() *State[R] { return c.state }

// Mode returns the current mode.
func (c *Controller[R]) Mode() Mode { return c.adapter.mode }

// SetMode switches modes. Leaving [ModeBuffered] applies pending changes
// first. The subscription moves when the event category changes.
//
// Switching from [ModeBuffered] to [ModeOnCommit] applies writes the store
// has not committed yet. The next commit event names them again; they are
// delivered as updates and leave the result unchanged.
func (c *Controller[R]) SetMode(m Mode) error {
	if c.closed {
		return ErrClosed
	}

	if !m.valid() {
		return fmt.Errorf("set mode: invalid mode %v", m)
	}

	return c.adapter.setMode(m)
}

// PendingChanges returns the number of buffered, unapplied records.
func (c *Controller[R]) PendingChanges() int { return c.adapter.pending.Len() }

// ApplyPendingChanges runs one cycle over the buffered changes and returns
// its change set. Called from inside an observer callback, the cycle is
// queued and an empty change set is returned.
func (c *Controller[R]) ApplyPendingChanges() (ChangeSet[R], error) {
	if c.closed {
		return ChangeSet[R]{}, ErrClosed
	}

	if c.state == nil {
		return ChangeSet[R]{}, ErrNotFetched
	}

	return c.adapter.flush(), nil
}

// FetchedObjects returns all records in result order, nil when unfetched.
func (c *Controller[R]) FetchedObjects() []R {
	if c.state == nil {
		return nil
	}

	return c.state.Objects()
}

// Sections returns the sections, nil when unfetched.
func (c *Controller[R]) Sections() []*Section[R] {
	if c.state == nil {
		return nil
	}

	return c.state.Sections()
}

// Object returns the record at path.
func (c *Controller[R]) Object(path IndexPath) (R, bool) {
	if c.state == nil {
		var zero R

		return zero, false
	}

	return c.state.Object(path)
}

// IndexPathOf returns the path of the record with id. Absence is not an error.
func (c *Controller[R]) IndexPathOf(id string) (IndexPath, bool) {
	if c.state == nil {
		return IndexPath{}, false
	}

	return c.state.IndexPathOf(id)
}

// SectionIndexTitles returns the distinct index titles in section order.
func (c *Controller[R]) SectionIndexTitles() []string {
	if c.state == nil {
		return nil
	}

	return c.state.IndexTitles()
}

// SectionIndexTitle returns the index title for a section name: the
// observer's override, else [Options.IndexTitle], else [DefaultIndexTitle].
func (c *Controller[R]) SectionIndexTitle(sectionName string) string {
	if c.caps.titler != nil {
		return c.caps.titler.SectionIndexTitle(sectionName)
	}

	if c.opts.IndexTitle != nil {
		return c.opts.IndexTitle(sectionName)
	}

	return DefaultIndexTitle(sectionName)
}

// SectionForSectionIndexTitle returns the first section using title, where
// index is the position of title in [Controller.SectionIndexTitles].
func (c *Controller[R]) SectionForSectionIndexTitle(title string, index int) (int, error) {
	if c.state == nil {
		return 0, ErrNotFetched
	}

	return c.state.sectionForTitleIndex(title, index)
}

// SectionForIndexTitle returns the first section using title.
func (c *Controller[R]) SectionForIndexTitle(title string) (int, error) {
	if c.state == nil {
		return 0, ErrNotFetched
	}

	return c.state.sectionForTitle(title)
}

// IndexTitleForSection returns the position in [Controller.SectionIndexTitles]
// covering section.
func (c *Controller[R]) IndexTitleForSection(section int) (int, bool) {
	if c.state == nil {
		return 0, false
	}

	return c.state.titleIndexForSection(section)
}
