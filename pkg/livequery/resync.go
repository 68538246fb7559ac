package livequery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/golang/glog"
)

// resyncResult is the outcome of one accepted cycle.
type resyncResult[R Record] struct {
	state   *State[R]
	changes ChangeSet[R]

	// recordErrs are per-record predicate failures. They never reject the
	// cycle; the affected records are treated as non-matching.
	recordErrs []error
}

// touch is the last signal seen for one id within a cycle.
type touch[R Record] struct {
	rec     R
	deleted bool
}

// resync applies signals to old and returns the new state plus the ordered
// change set. An error rejects the cycle: old stays current.
//
// Only signaled records are classified and diffed. Untouched records keep
// their relative order; touched ones are sorted and merged in.
func resync[R Record](spec FetchSpec[R], sec sectioner[R], old *State[R], sig Signals[R]) (resyncResult[R], error) {
	res := resyncResult[R]{state: old}

	touched := collectTouches(sig)
	if len(touched) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	var (
		gone     = map[string]IndexPath{} // id -> old path
		still    = map[string]IndexPath{} // id -> old path
		fresh    []R                      // still (new snapshots) and new, id order
		inserted = map[string]struct{}{}
	)

	for _, id := range ids {
		t := touched[id]
		oldPath, inOld := old.paths[id]

		if t.deleted {
			if inOld {
				gone[id] = oldPath
			}

			continue
		}

		ok, err := spec.Match(t.rec)
		if err != nil {
			section := ""
			if inOld {
				section = old.sections[oldPath.Section].name
			}

			res.recordErrs = append(res.recordErrs,
				withContext(fmt.Errorf("%w: %w", ErrPredicate, err), id, section))
			ok = false
		}

		switch {
		case ok && inOld:
			still[id] = oldPath
			fresh = append(fresh, t.rec)
		case ok:
			inserted[id] = struct{}{}
			fresh = append(fresh, t.rec)
		case inOld:
			gone[id] = oldPath
		}
	}

	if len(gone) == 0 && len(fresh) == 0 {
		return res, nil
	}

	untouched := make([]R, 0, old.count)

	for _, s := range old.sections {
		for _, rec := range s.objects {
			id := rec.ID()
			if _, ok := gone[id]; ok {
				continue
			}

			if _, ok := still[id]; ok {
				continue
			}

			untouched = append(untouched, rec)
		}
	}

	slices.SortStableFunc(fresh, spec.Compare)

	next, err := sec.build(mergeSorted(untouched, fresh, spec.Compare))
	if err != nil {
		return resyncResult[R]{state: old, recordErrs: res.recordErrs}, fmt.Errorf("resync: %w", err)
	}

	res.state = next
	res.changes = diff(old, next, gone, still, inserted)

	if glog.V(2) {
		glog.Infof("livequery: resync signals=%d gone=%d still=%d new=%d sections=%d->%d",
			sig.Len(), len(gone), len(still), len(inserted), len(old.sections), len(next.sections))
	}

	return res, nil
}

// collectTouches keeps one entry per id; deletes win over inserts and updates
// carried by the same signals.
func collectTouches[R Record](sig Signals[R]) map[string]touch[R] {
	out := make(map[string]touch[R], sig.Len())

	for _, rec := range sig.Inserted {
		out[rec.ID()] = touch[R]{rec: rec}
	}

	for _, rec := range sig.Updated {
		out[rec.ID()] = touch[R]{rec: rec}
	}

	for _, rec := range sig.Deleted {
		out[rec.ID()] = touch[R]{rec: rec, deleted: true}
	}

	delete(out, "")

	return out
}

// mergeSorted merges two comparator-ordered slices. On ties the element of a
// (untouched records) comes first.
func mergeSorted[R Record](a, b []R, cmp func(x, y R) int) []R {
	out := make([]R, 0, len(a)+len(b))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if cmp(a[i], b[j]) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}

	out = append(out, a[i:]...)
	out = append(out, b[j:]...)

	return out
}

func diff[R Record](old, next *State[R], gone, still map[string]IndexPath, inserted map[string]struct{}) ChangeSet[R] {
	var cs ChangeSet[R]

	for i := len(old.sections) - 1; i >= 0; i-- {
		s := old.sections[i]
		if _, ok := next.byName[s.name]; !ok {
			cs.Sections = append(cs.Sections, SectionChange[R]{Type: ChangeDelete, Section: s, Index: i})
		}
	}

	for i, s := range next.sections {
		if _, ok := old.byName[s.name]; !ok {
			cs.Sections = append(cs.Sections, SectionChange[R]{Type: ChangeInsert, Section: s, Index: i})
		}
	}

	var deletes, inserts, moves, updates []ObjectChange[R]

	for _, p := range gone {
		rec, _ := old.Object(p)
		deletes = append(deletes, ObjectChange[R]{Type: ChangeDelete, Object: rec, OldPath: pathPtr(p)})
	}

	for id := range inserted {
		p := next.paths[id]
		rec, _ := next.Object(p)
		inserts = append(inserts, ObjectChange[R]{Type: ChangeInsert, Object: rec, NewPath: pathPtr(p)})
	}

	for id, op := range still {
		np := next.paths[id]
		rec, _ := next.Object(np)

		// Same coordinates in a different section (the old one vanished) is
		// still a move.
		if op == np && old.sections[op.Section].name == next.sections[np.Section].name {
			updates = append(updates, ObjectChange[R]{Type: ChangeUpdate, Object: rec, OldPath: pathPtr(op), NewPath: pathPtr(np)})
		} else {
			moves = append(moves, ObjectChange[R]{Type: ChangeMove, Object: rec, OldPath: pathPtr(op), NewPath: pathPtr(np)})
		}
	}

	slices.SortFunc(deletes, func(a, b ObjectChange[R]) int { return compareIndexPaths(*b.OldPath, *a.OldPath) })
	slices.SortFunc(inserts, byNewPath[R])
	slices.SortFunc(moves, byNewPath[R])
	slices.SortFunc(updates, byNewPath[R])

	cs.Objects = slices.Concat(deletes, inserts, moves, updates)

	return cs
}

func byNewPath[R Record](a, b ObjectChange[R]) int {
	if c := compareIndexPaths(*a.NewPath, *b.NewPath); c != 0 {
		return c
	}

	return strings.Compare(a.Object.ID(), b.Object.ID())
}
