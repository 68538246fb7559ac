package livequery

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// DefaultIndexTitle derives a section index title from a section name: the
// first rune, upper-cased with [unicode.ToUpper]. An empty name yields an
// empty title. The rule is locale-agnostic; supply [Options.IndexTitle] or an
// [IndexTitler] observer for anything else.
func DefaultIndexTitle(sectionName string) string {
	r, size := utf8.DecodeRuneInString(sectionName)
	if size == 0 {
		return ""
	}

	if r == utf8.RuneError && size == 1 {
		return sectionName[:1]
	}

	return string(unicode.ToUpper(r))
}

// sectioner groups comparator-ordered records into sections.
type sectioner[R Record] struct {
	key   func(R) string
	title func(name string) string
}

// build groups records, which must already be in comparator order.
//
// A new section starts whenever the key differs from the previous record's.
// A key that reappears after a different key breaks the contiguity
// precondition: build still returns a best-effort state (the repeated run
// becomes its own section; byName keeps the first) together with an error
// wrapping [ErrSectionConsistency].
func (s sectioner[R]) build(records []R) (*State[R], error) {
	st := emptyState[R]()
	st.count = len(records)

	var (
		cur       *Section[R]
		violation error
	)

	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			return nil, fmt.Errorf("build sections: %w", errEmptyID)
		}

		if _, dup := st.paths[id]; dup {
			return nil, withContext(fmt.Errorf("build sections: duplicate record id"), id, "")
		}

		name := s.key(rec)

		if cur == nil || cur.name != name {
			if _, seen := st.byName[name]; seen && violation == nil {
				violation = withContext(
					fmt.Errorf("%w: section reappears after other sections", ErrSectionConsistency),
					id, name)
			}

			cur = &Section[R]{name: name, indexTitle: s.title(name)}

			if _, seen := st.byName[name]; !seen {
				st.byName[name] = len(st.sections)
			}

			st.sections = append(st.sections, cur)
		}

		st.paths[id] = IndexPath{Section: len(st.sections) - 1, Item: len(cur.objects)}
		cur.objects = append(cur.objects, rec)
	}

	indexTitles(st)

	return st, violation
}

// indexTitles fills the title table. Adjacent sections sharing a title
// collapse into one entry so titleStarts stays strictly ascending.
func indexTitles[R Record](st *State[R]) {
	st.titles = st.titles[:0]
	st.titleStarts = st.titleStarts[:0]

	for i, sec := range st.sections {
		n := len(st.titles)
		if n > 0 && st.titles[n-1] == sec.indexTitle {
			continue
		}

		st.titles = append(st.titles, sec.indexTitle)
		st.titleStarts = append(st.titleStarts, i)
	}
}
