package sectioncache

import (
	"slices"
	"sync"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

// Memory is an in-process section cache. It is safe for concurrent use and
// stores deep copies, so callers may reuse layouts after Write.
type Memory struct {
	mu      sync.Mutex
	entries map[string]map[livequery.Fingerprint]livequery.Layout
}

// NewMemory returns an empty cache.
func NewMemory() *Memory {
	return &Memory{entries: map[string]map[livequery.Fingerprint]livequery.Layout{}}
}

// Read implements [livequery.SectionCache].
func (m *Memory) Read(name string, fp livequery.Fingerprint) (livequery.Layout, bool, error) {
	err := validateName(name)
	if err != nil {
		return livequery.Layout{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	layout, ok := m.entries[name][fp]
	if !ok {
		return livequery.Layout{}, false, nil
	}

	return cloneLayout(layout), true, nil
}

// Write implements [livequery.SectionCache].
func (m *Memory) Write(name string, fp livequery.Fingerprint, layout livequery.Layout) error {
	err := validateName(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byFP := m.entries[name]
	if byFP == nil {
		byFP = map[livequery.Fingerprint]livequery.Layout{}
		m.entries[name] = byFP
	}

	byFP[fp] = cloneLayout(layout)

	return nil
}

// Delete implements [livequery.SectionCache].
func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		clear(m.entries)

		return nil
	}

	delete(m.entries, name)

	return nil
}

// Len returns the number of stored layouts across all names.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, byFP := range m.entries {
		n += len(byFP)
	}

	return n
}

func cloneLayout(l livequery.Layout) livequery.Layout {
	out := livequery.Layout{Sections: make([]livequery.LayoutSection, len(l.Sections))}
	for i, sec := range l.Sections {
		sec.IDs = slices.Clone(sec.IDs)
		out.Sections[i] = sec
	}

	return out
}

var _ livequery.SectionCache = (*Memory)(nil)
