package livequery

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
)

// Record is the minimal contract for values managed by a [Controller].
//
// ID must be non-empty and stable across updates: the same stored object
// always reports the same ID. Record values are treated as attribute
// snapshots; stores hand out copies so a value never changes under the
// controller.
type Record interface {
	ID() string
}

// FetchSpec describes a query: which records, in which order, grouped how.
//
// A FetchSpec is immutable once handed to [New]. Records that share a section
// key must be contiguous under Compare (usually: Compare sorts by the section
// key first). Violations are reported as [ErrSectionConsistency].
type FetchSpec[R Record] struct {
	// Entity selects the record kind. Store events for other entities are
	// ignored. Empty matches every entity.
	Entity string

	// Where reports whether a record belongs to the result. Nil matches all.
	// An error excludes the record and is reported as [ErrPredicate].
	Where func(R) (bool, error)

	// Compare is the total order of the result. Required.
	Compare func(a, b R) int

	// SectionKey returns the section name for a record. Nil puts every
	// record into a single section with an empty name.
	SectionKey func(R) string

	// WhereDesc, SortDesc and SectionDesc describe Where, Compare and
	// SectionKey textually. They feed [FetchSpec.Fingerprint]; two specs with
	// equal entity and descriptions are considered structurally equal.
	// Required when a section cache is used.
	WhereDesc   string
	SortDesc    string
	SectionDesc string
}

// Fingerprint identifies a FetchSpec structurally, for cache keys.
type Fingerprint string

// Fingerprint returns a deterministic FNV-64a digest of the entity and the
// three descriptions, rendered as 16 lowercase hex digits.
func (s FetchSpec[R]) Fingerprint() Fingerprint {
	h := fnv.New64a()

	// Length-prefix every field so ("ab","c") and ("a","bc") differ.
	for _, part := range []string{s.Entity, s.WhereDesc, s.SortDesc, s.SectionDesc} {
		_, _ = h.Write([]byte(strconv.Itoa(len(part))))
		_, _ = h.Write([]byte{':'})
		_, _ = h.Write([]byte(part))
	}

	// Presence of the section key changes the layout even if SectionDesc is empty.
	if s.SectionKey != nil {
		_, _ = h.Write([]byte{1})
	} else {
		_, _ = h.Write([]byte{0})
	}

	return Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

// Match evaluates Where for rec. A nil Where matches. Panics in Where are
// returned as errors.
func (s FetchSpec[R]) Match(rec R) (ok bool, err error) {
	if s.Where == nil {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return s.Where(rec)
}

func (s FetchSpec[R]) sectionKey(rec R) string {
	if s.SectionKey == nil {
		return ""
	}

	return s.SectionKey(rec)
}

func (s FetchSpec[R]) validate(requireDescriptions bool) error {
	if s.Compare == nil {
		return fmt.Errorf("%w: Compare is required", ErrInvalidFetchSpec)
	}

	if requireDescriptions {
		if s.WhereDesc == "" && s.Where != nil {
			return fmt.Errorf("%w: WhereDesc is required when caching", ErrInvalidFetchSpec)
		}

		if s.SortDesc == "" {
			return fmt.Errorf("%w: SortDesc is required when caching", ErrInvalidFetchSpec)
		}

		if s.SectionDesc == "" && s.SectionKey != nil {
			return fmt.Errorf("%w: SectionDesc is required when caching", ErrInvalidFetchSpec)
		}
	}

	return nil
}

var errEmptyID = errors.New("record has empty id")
