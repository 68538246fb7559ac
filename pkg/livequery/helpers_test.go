package livequery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"
)

// item is the record type used throughout the package tests.
type item struct {
	id       string
	name     string
	group    string
	archived bool
	fail     bool
}

func (i item) ID() string { return i.id }

var errItemFail = errors.New("item predicate failure")

// firstLetterSpec sorts by the first letter only, so equal letters keep
// fetch order, and sections by that letter.
func firstLetterSpec() FetchSpec[item] {
	return FetchSpec[item]{
		Entity:      "item",
		Where:       whereActive,
		WhereDesc:   "archived == false",
		Compare:     func(a, b item) int { return strings.Compare(a.name[:1], b.name[:1]) },
		SortDesc:    "name[0] asc",
		SectionKey:  func(i item) string { return i.name[:1] },
		SectionDesc: "name[0]",
	}
}

// nameSpec sorts by name then id and sections by the first letter.
func nameSpec() FetchSpec[item] {
	return FetchSpec[item]{
		Entity:    "item",
		Where:     whereActive,
		WhereDesc: "archived == false",
		Compare: func(a, b item) int {
			return cmp.Or(strings.Compare(a.name, b.name), strings.Compare(a.id, b.id))
		},
		SortDesc:    "name asc, id asc",
		SectionKey:  func(i item) string { return i.name[:1] },
		SectionDesc: "name[0]",
	}
}

func whereActive(i item) (bool, error) {
	if i.fail {
		return false, errItemFail
	}

	return !i.archived, nil
}

// fakeStore is a minimal in-package Store backed by a map.
type fakeStore struct {
	Hub[item]

	records  map[string]item
	execErr  error
	executes int
}

func newFakeStore(items ...item) *fakeStore {
	s := &fakeStore{records: map[string]item{}}
	for _, it := range items {
		s.records[it.id] = it
	}

	return s
}

func (s *fakeStore) Execute(_ context.Context, spec FetchSpec[item]) ([]item, error) {
	s.executes++

	if s.execErr != nil {
		return nil, s.execErr
	}

	// Insertion order matters for first-letter specs; callers list ids in
	// the order they want to see them fetched.
	ids := slices.Sorted(maps.Keys(s.records))

	var out []item

	for _, id := range ids {
		ok, err := spec.Match(s.records[id])
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, s.records[id])
		}
	}

	return out, nil
}

func (s *fakeStore) insert(items ...item) {
	for _, it := range items {
		s.records[it.id] = it
	}

	s.Publish(CategoryMutation, Event[item]{Entity: "item", Signals: Signals[item]{Inserted: items}})
}

func (s *fakeStore) update(items ...item) {
	for _, it := range items {
		s.records[it.id] = it
	}

	s.Publish(CategoryMutation, Event[item]{Entity: "item", Signals: Signals[item]{Updated: items}})
}

func (s *fakeStore) remove(ids ...string) {
	var gone []item

	for _, id := range ids {
		gone = append(gone, s.records[id])
		delete(s.records, id)
	}

	s.Publish(CategoryMutation, Event[item]{Entity: "item", Signals: Signals[item]{Deleted: gone}})
}

func (s *fakeStore) commit(sig Signals[item]) {
	s.Publish(CategoryCommit, Event[item]{Entity: "item", Signals: sig})
}

// recorder logs every observer callback as one line.
type recorder struct {
	calls []string

	// onDidChange runs at the end of DidChangeContent, once per cycle.
	onDidChange func()
}

func (r *recorder) WillChangeContent() { r.calls = append(r.calls, "will") }

func (r *recorder) DidChangeObject(obj item, oldPath *IndexPath, t ChangeType, newPath *IndexPath) {
	r.calls = append(r.calls, fmt.Sprintf("object %s %s %s->%s", t, obj.id, fmtPath(oldPath), fmtPath(newPath)))
}

func (r *recorder) DidChangeSection(s *Section[item], index int, t ChangeType) {
	r.calls = append(r.calls, fmt.Sprintf("section %s %s %d", t, s.Name(), index))
}

func (r *recorder) DidChangeSectionsAndObjects(cs ChangeSet[item]) {
	r.calls = append(r.calls, fmt.Sprintf("batch %d/%d", len(cs.Sections), len(cs.Objects)))
}

func (r *recorder) DidChangeContent() {
	r.calls = append(r.calls, "did")

	if r.onDidChange != nil {
		fn := r.onDidChange
		r.onDidChange = nil
		fn()
	}
}

func (r *recorder) reset() { r.calls = nil }

func fmtPath(p *IndexPath) string {
	if p == nil {
		return "-"
	}

	return p.String()
}

// describe renders a change set in delivery order.
func describe(cs ChangeSet[item]) []string {
	var out []string

	for _, sc := range cs.Sections {
		out = append(out, fmt.Sprintf("section %s %s %d", sc.Type, sc.Section.Name(), sc.Index))
	}

	for _, oc := range cs.Objects {
		out = append(out, fmt.Sprintf("object %s %s %s->%s", oc.Type, oc.Object.id, fmtPath(oc.OldPath), fmtPath(oc.NewPath)))
	}

	return out
}

// layoutOf renders sections as "A:[x y]" strings.
func layoutOf(sections []*Section[item]) []string {
	out := make([]string, 0, len(sections))

	for _, s := range sections {
		ids := make([]string, 0, s.NumberOfObjects())
		for _, o := range s.Objects() {
			ids = append(ids, o.id)
		}

		out = append(out, fmt.Sprintf("%s:[%s]", s.Name(), strings.Join(ids, " ")))
	}

	return out
}

func mustFetch(t *testing.T, store *fakeStore, spec FetchSpec[item], opts Options) *Controller[item] {
	t.Helper()

	c, err := New[item](store, spec, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.PerformFetch(t.Context())
	if err != nil {
		t.Fatalf("PerformFetch: %v", err)
	}

	return c
}

// mapCache is an in-memory SectionCache with failure injection.
type mapCache struct {
	entries  map[string]Layout
	readErr  error
	writeErr error
	writes   int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]Layout{}} }

func (m *mapCache) key(name string, fp Fingerprint) string { return name + "/" + string(fp) }

func (m *mapCache) Read(name string, fp Fingerprint) (Layout, bool, error) {
	if m.readErr != nil {
		return Layout{}, false, m.readErr
	}

	l, ok := m.entries[m.key(name, fp)]

	return l, ok, nil
}

func (m *mapCache) Write(name string, fp Fingerprint, layout Layout) error {
	if m.writeErr != nil {
		return m.writeErr
	}

	m.writes++
	m.entries[m.key(name, fp)] = layout

	return nil
}

func (m *mapCache) Delete(name string) error {
	for k := range m.entries {
		if name == "" || strings.HasPrefix(k, name+"/") {
			delete(m.entries, k)
		}
	}

	return nil
}
