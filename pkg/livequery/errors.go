package livequery

import (
	"errors"
	"strings"
)

var (
	// ErrQueryExecution indicates the store failed to execute the fetch spec.
	// Fatal to [Controller.PerformFetch]; the controller stays unfetched.
	ErrQueryExecution = errors.New("query execution failed")

	// ErrPredicate indicates the predicate failed for a single record during a
	// resync cycle. The record is treated as non-matching and the cycle continues.
	ErrPredicate = errors.New("predicate evaluation failed")

	// ErrSectionConsistency indicates records sharing a section key are not
	// contiguous under the comparator. Correct sectioning cannot be inferred.
	ErrSectionConsistency = errors.New("section key inconsistent with sort order")

	// ErrUnknownSectionIndexTitle is returned by index-title lookups that miss.
	ErrUnknownSectionIndexTitle = errors.New("unknown section index title")

	// ErrNotFetched is returned by operations that need a fetched controller.
	ErrNotFetched = errors.New("controller not fetched")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")

	// ErrInvalidFetchSpec is returned when a fetch spec cannot be used.
	ErrInvalidFetchSpec = errors.New("invalid fetch spec")
)

// Error carries the record a failure is about. It formats as the cause
// followed by the context:
//
//	predicate evaluation failed: boom (record_id=abc section=A)
//
// Use [errors.As] to read the fields and [errors.Is] to match sentinels.
type Error struct {
	RecordID string
	Section  string
	Err      error
}

func (e *Error) Error() string {
	var ctx []string

	if e.RecordID != "" {
		ctx = append(ctx, "record_id="+e.RecordID)
	}

	if e.Section != "" {
		ctx = append(ctx, "section="+e.Section)
	}

	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}

	if len(ctx) == 0 {
		return msg
	}

	return msg + " (" + strings.Join(ctx, " ") + ")"
}

func (e *Error) Unwrap() error { return e.Err }

// withContext wraps err with record context. An err that already carries
// context is returned unchanged: the innermost record is the one that failed.
func withContext(err error, recordID, section string) error {
	if err == nil {
		return nil
	}

	var lqErr *Error
	if errors.As(err, &lqErr) {
		return err
	}

	return &Error{RecordID: recordID, Section: section, Err: err}
}
