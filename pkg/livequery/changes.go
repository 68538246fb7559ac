package livequery

import "fmt"

// ChangeType classifies a section or object change.
type ChangeType int

// Change type values. The numbering is stable and part of the API.
const (
	ChangeInsert ChangeType = 1
	ChangeDelete ChangeType = 2
	ChangeMove   ChangeType = 3
	ChangeUpdate ChangeType = 4
)

func (t ChangeType) String() string {
	switch t {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeMove:
		return "move"
	case ChangeUpdate:
		return "update"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(t))
	}
}

// SectionChange reports a section appearing or disappearing.
//
// Index is the old index for deletes and the new index for inserts.
type SectionChange[R Record] struct {
	Type    ChangeType
	Section *Section[R]
	Index   int
}

// ObjectChange reports one record change.
//
// OldPath is nil for inserts, NewPath is nil for deletes. Updates carry equal
// paths.
type ObjectChange[R Record] struct {
	Type    ChangeType
	Object  R
	OldPath *IndexPath
	NewPath *IndexPath
}

// ChangeSet is the ordered outcome of one resync cycle.
//
// Sections lists deletes by strictly descending old index, then inserts by
// strictly ascending new index. Objects lists deletes by descending old path,
// inserts by ascending new path, moves by ascending new path, then updates by
// ascending path.
//
// Old paths refer to the old state and new paths to the new state. A replica
// of the old state reaches the new one by removing deleted and moved records at
// their old paths (descending), applying section deletes then section inserts,
// and placing inserted and moved records at their new paths (ascending).
type ChangeSet[R Record] struct {
	Sections []SectionChange[R]
	Objects  []ObjectChange[R]
}

// Empty reports whether the cycle changed nothing.
func (cs ChangeSet[R]) Empty() bool {
	return len(cs.Sections) == 0 && len(cs.Objects) == 0
}

func pathPtr(p IndexPath) *IndexPath {
	return &p
}
