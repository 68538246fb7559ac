// Package livequery keeps a sectioned, sorted query result synchronized with a
// mutable store.
//
// A [Controller] executes a [FetchSpec] once, groups the result into ordered
// [Section] values and then applies store mutation events incrementally,
// reporting every cycle as a [ChangeSet] of section and object changes that a
// consumer (a list view, a replica) can apply in order without desyncing.
//
// # Basic Usage
//
//	spec := livequery.FetchSpec[Contact]{
//	    Entity:      "contact",
//	    Where:       func(c Contact) (bool, error) { return !c.Archived, nil },
//	    WhereDesc:   "archived == false",
//	    Compare:     func(a, b Contact) int { return strings.Compare(a.Name, b.Name) },
//	    SortDesc:    "name asc",
//	    SectionKey:  func(c Contact) string { return c.Name[:1] },
//	    SectionDesc: "name[0]",
//	}
//
//	ctrl, err := livequery.New(store, spec, livequery.Options{})
//	ctrl.SetObserver(view)
//	err = ctrl.PerformFetch(ctx)
//	defer ctrl.Close()
//
// # Modes
//
// [ModeImmediate] resyncs on every mutation event, [ModeOnCommit] on every
// commit event, [ModeBuffered] accumulates mutations until
// [Controller.ApplyPendingChanges] is called.
//
// # Concurrency
//
// A Controller is not safe for concurrent use. All calls, and all store event
// deliveries, must happen on the same logical execution context. Events
// delivered re-entrantly (from inside an observer callback) are queued behind
// the running cycle.
//
// # Error Handling
//
// Fetch-time failures are returned from [Controller.PerformFetch]. Per-record
// failures during a resync cycle wrap [ErrPredicate], are logged and passed to
// [Options.OnError], and never abort the cycle. Cache failures are treated as
// cache misses.
package livequery
