package livequery

import (
	"fmt"
	"slices"
	"sort"
)

// IndexPath addresses a record inside a sectioned result.
type IndexPath struct {
	Section int
	Item    int
}

// String formats as "section/item".
func (p IndexPath) String() string {
	return fmt.Sprintf("%d/%d", p.Section, p.Item)
}

// compareIndexPaths orders paths section first, then item.
func compareIndexPaths(a, b IndexPath) int {
	if a.Section != b.Section {
		return a.Section - b.Section
	}

	return a.Item - b.Item
}

// Section is an ordered, named group of records sharing a section key.
// Sections are immutable snapshots.
type Section[R Record] struct {
	name       string
	indexTitle string
	objects    []R
}

// Name is the raw section key.
func (s *Section[R]) Name() string { return s.name }

// IndexTitle is the display key for section indexes.
func (s *Section[R]) IndexTitle() string { return s.indexTitle }

// NumberOfObjects returns the record count.
func (s *Section[R]) NumberOfObjects() int { return len(s.objects) }

// Objects returns a copy of the section's records in order.
func (s *Section[R]) Objects() []R { return slices.Clone(s.objects) }

// Object returns the record at item, or false when out of range.
func (s *Section[R]) Object(item int) (R, bool) {
	if item < 0 || item >= len(s.objects) {
		var zero R

		return zero, false
	}

	return s.objects[item], true
}

// State is one immutable snapshot of a sectioned result plus its indexes.
//
// Invariant: paths and byName always agree with sections.
type State[R Record] struct {
	sections []*Section[R]
	paths    map[string]IndexPath // record id -> index path
	byName   map[string]int       // section name -> index (first occurrence)
	count    int

	// titles lists distinct index titles in section order; titleStarts[i] is
	// the first section using titles[i]. titleStarts is strictly ascending.
	titles      []string
	titleStarts []int
}

func emptyState[R Record]() *State[R] {
	return &State[R]{
		paths:  map[string]IndexPath{},
		byName: map[string]int{},
	}
}

// Sections returns the sections in order. The slice is a copy; sections
// themselves are immutable.
func (st *State[R]) Sections() []*Section[R] {
	return slices.Clone(st.sections)
}

// NumberOfSections returns the section count.
func (st *State[R]) NumberOfSections() int { return len(st.sections) }

// NumberOfObjects returns the total record count.
func (st *State[R]) NumberOfObjects() int { return st.count }

// Objects flattens all sections in order.
func (st *State[R]) Objects() []R {
	out := make([]R, 0, st.count)
	for _, sec := range st.sections {
		out = append(out, sec.objects...)
	}

	return out
}

// Object returns the record at path.
func (st *State[R]) Object(path IndexPath) (R, bool) {
	if path.Section < 0 || path.Section >= len(st.sections) {
		var zero R

		return zero, false
	}

	return st.sections[path.Section].Object(path.Item)
}

// IndexPathOf returns the path of the record with id.
func (st *State[R]) IndexPathOf(id string) (IndexPath, bool) {
	p, ok := st.paths[id]

	return p, ok
}

// Contains reports whether a record with id is part of the result.
func (st *State[R]) Contains(id string) bool {
	_, ok := st.paths[id]

	return ok
}

// SectionIndex returns the index of the section named name.
func (st *State[R]) SectionIndex(name string) (int, bool) {
	i, ok := st.byName[name]

	return i, ok
}

// IndexTitles returns distinct index titles in section order.
func (st *State[R]) IndexTitles() []string {
	return slices.Clone(st.titles)
}

// sectionForTitleIndex maps an index into IndexTitles to a section number.
func (st *State[R]) sectionForTitleIndex(title string, index int) (int, error) {
	if index < 0 || index >= len(st.titles) {
		return 0, fmt.Errorf("%w: %q at index %d (have %d titles)", ErrUnknownSectionIndexTitle, title, index, len(st.titles))
	}

	if st.titles[index] != title {
		return 0, fmt.Errorf("%w: %q at index %d (title there is %q)", ErrUnknownSectionIndexTitle, title, index, st.titles[index])
	}

	return st.titleStarts[index], nil
}

// sectionForTitle finds the first section using title.
func (st *State[R]) sectionForTitle(title string) (int, error) {
	idx := slices.Index(st.titles, title)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSectionIndexTitle, title)
	}

	return st.titleStarts[idx], nil
}

// titleIndexForSection returns the index into IndexTitles covering section,
// by binary search over the title boundaries.
func (st *State[R]) titleIndexForSection(section int) (int, bool) {
	if section < 0 || section >= len(st.sections) || len(st.titleStarts) == 0 {
		return 0, false
	}

	// First boundary strictly greater than section, minus one.
	i := sort.SearchInts(st.titleStarts, section+1) - 1
	if i < 0 {
		return 0, false
	}

	return i, true
}

// layout renders the state as a cache layout (names, titles, ids).
func (st *State[R]) layout() Layout {
	out := Layout{Sections: make([]LayoutSection, 0, len(st.sections))}

	for _, sec := range st.sections {
		ids := make([]string, len(sec.objects))
		for i, obj := range sec.objects {
			ids[i] = obj.ID()
		}

		out.Sections = append(out.Sections, LayoutSection{
			Name:       sec.name,
			IndexTitle: sec.indexTitle,
			IDs:        ids,
		})
	}

	return out
}
