package livequery

import (
	"fmt"
	"slices"

	"github.com/golang/glog"
)

// Layout is the cached shape of a result: section names, index titles and
// ordered record identities. It never carries record attributes, which may be
// stale by the time the layout is read back.
type Layout struct {
	Sections []LayoutSection
}

// LayoutSection is one section of a [Layout].
type LayoutSection struct {
	Name       string
	IndexTitle string
	IDs        []string
}

// NumberOfObjects returns the total identity count.
func (l Layout) NumberOfObjects() int {
	n := 0
	for _, sec := range l.Sections {
		n += len(sec.IDs)
	}

	return n
}

// SectionCache persists layouts keyed by (cache name, fingerprint).
//
// Read returns (layout, true, nil) on hit and (zero, false, nil) on miss.
// Implementations report unreadable or structurally invalid entries as errors;
// the controller treats every error as a miss.
//
// Delete removes all entries stored under name. An empty name removes every
// entry of every name.
type SectionCache interface {
	Read(name string, fp Fingerprint) (Layout, bool, error)
	Write(name string, fp Fingerprint, layout Layout) error
	Delete(name string) error
}

// DeleteCache removes the cached layouts stored under name, or every cached
// layout when name is empty.
func DeleteCache(cache SectionCache, name string) error {
	if cache == nil {
		return nil
	}

	err := cache.Delete(name)
	if err != nil {
		return fmt.Errorf("delete cache %q: %w", name, err)
	}

	return nil
}

// seedFromLayout arranges fetched records by a cached layout.
//
// The layout is accepted only when it accounts for exactly the fetched
// records; section keys are not recomputed. Returns false when the layout
// cannot seed the result.
func seedFromLayout[R Record](layout Layout, records []R) (*State[R], bool) {
	if layout.NumberOfObjects() != len(records) {
		return nil, false
	}

	byID := make(map[string]R, len(records))
	for _, rec := range records {
		byID[rec.ID()] = rec
	}

	if len(byID) != len(records) {
		return nil, false
	}

	st := emptyState[R]()
	st.sections = make([]*Section[R], 0, len(layout.Sections))

	for _, ls := range layout.Sections {
		if len(ls.IDs) == 0 {
			return nil, false
		}

		if _, dup := st.byName[ls.Name]; dup {
			return nil, false
		}

		sec := &Section[R]{name: ls.Name, indexTitle: ls.IndexTitle, objects: make([]R, 0, len(ls.IDs))}
		secIdx := len(st.sections)

		for _, id := range ls.IDs {
			rec, ok := byID[id]
			if !ok {
				return nil, false
			}

			if _, dup := st.paths[id]; dup {
				return nil, false
			}

			st.paths[id] = IndexPath{Section: secIdx, Item: len(sec.objects)}
			sec.objects = append(sec.objects, rec)
		}

		st.byName[ls.Name] = secIdx
		st.sections = append(st.sections, sec)
	}

	st.count = len(records)
	indexTitles(st)

	return st, true
}

// equalLayouts reports whether a and b describe the same sectioned result.
func equalLayouts(a, b Layout) bool {
	return slices.EqualFunc(a.Sections, b.Sections, func(x, y LayoutSection) bool {
		return x.Name == y.Name && x.IndexTitle == y.IndexTitle && slices.Equal(x.IDs, y.IDs)
	})
}

// readCache wraps SectionCache.Read; errors are logged and become misses.
func readCache(cache SectionCache, name string, fp Fingerprint) (Layout, bool) {
	if cache == nil || name == "" {
		return Layout{}, false
	}

	layout, ok, err := cache.Read(name, fp)
	if err != nil {
		glog.Warningf("livequery: cache %q read %s: %v (treating as miss)", name, fp, err)

		return Layout{}, false
	}

	return layout, ok
}

func writeCache(cache SectionCache, name string, fp Fingerprint, layout Layout) {
	if cache == nil || name == "" {
		return
	}

	err := cache.Write(name, fp, layout)
	if err != nil {
		glog.Warningf("livequery: cache %q write %s: %v", name, fp, err)
	}
}

func report(onError func(error), err error) {
	if onError != nil && err != nil {
		onError(err)
	}
}
