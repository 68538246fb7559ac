package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/livequery/pkg/livequery"
	"github.com/calvinalkan/livequery/pkg/sqlstore"
)

type task struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Priority int    `json:"priority"`
	Closed   bool   `json:"closed"`
}

func (t task) ID() string { return t.Key }

func openStore(t *testing.T) *sqlstore.Store[task] {
	t.Helper()

	s, err := sqlstore.Open[task](t.Context(), filepath.Join(t.TempDir(), "tasks.db"), "task", sqlstore.Options[task]{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func openTasks() livequery.FetchSpec[task] {
	return livequery.FetchSpec[task]{
		Entity:    "task",
		Where:     func(t task) (bool, error) { return !t.Closed, nil },
		WhereDesc: "closed == false",
		Compare: func(a, b task) int {
			if a.Priority != b.Priority {
				return a.Priority - b.Priority
			}

			return strings.Compare(a.Key, b.Key)
		},
		SortDesc:    "priority asc, key asc",
		SectionKey:  func(t task) string { return map[bool]string{true: "urgent", false: "later"}[t.Priority <= 1] },
		SectionDesc: "priority <= 1",
	}
}

func Test_Update_Persists_And_Publishes_When_Committed(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	var log []string

	unsubM, err := s.Subscribe(livequery.CategoryMutation, func(ev livequery.Event[task]) {
		switch {
		case len(ev.Inserted) > 0:
			log = append(log, "insert "+ev.Inserted[0].Key)
		case len(ev.Updated) > 0:
			log = append(log, "update "+ev.Updated[0].Key)
		case len(ev.Deleted) > 0:
			log = append(log, "delete "+ev.Deleted[0].Key)
		}
	})
	require.NoError(t, err)

	defer unsubM()

	var commits []livequery.Signals[task]

	unsubC, err := s.Subscribe(livequery.CategoryCommit, func(ev livequery.Event[task]) {
		commits = append(commits, ev.Signals)
	})
	require.NoError(t, err)

	defer unsubC()

	err = s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		require.NoError(t, tx.Insert(task{Key: "a", Title: "write docs", Priority: 2}))
		require.NoError(t, tx.Put(task{Key: "b", Title: "fix bug", Priority: 1}))
		require.NoError(t, tx.Update(task{Key: "a", Title: "write more docs", Priority: 2}))

		got, ok, err := tx.Get("a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "write more docs", got.Title)

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"insert a", "insert b", "update a"}, log)
	require.Len(t, commits, 1)

	want := livequery.Signals[task]{Inserted: []task{
		{Key: "a", Title: "write more docs", Priority: 2},
		{Key: "b", Title: "fix bug", Priority: 1},
	}}
	if diff := cmp.Diff(want, commits[0]); diff != "" {
		t.Fatalf("commit signals mismatch (-want +got):\n%s", diff)
	}

	n, err := s.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok, err := s.Get(t.Context(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "write more docs", got.Title)
}

func Test_Update_Writes_Nothing_When_Callback_Fails(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	var events int

	unsub, err := s.Subscribe(livequery.CategoryMutation, func(livequery.Event[task]) { events++ })
	require.NoError(t, err)

	defer unsub()

	boom := errors.New("boom")

	err = s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		require.NoError(t, tx.Insert(task{Key: "a"}))

		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, events)
}

func Test_Tx_Returns_Errors_When_Ids_Conflict(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	require.NoError(t, s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		return tx.Insert(task{Key: "a"})
	}))

	tx, err := s.Begin(t.Context())
	require.NoError(t, err)

	require.ErrorIs(t, tx.Insert(task{Key: "a"}), sqlstore.ErrExists)
	require.ErrorIs(t, tx.Update(task{Key: "zz"}), sqlstore.ErrNotFound)
	require.ErrorIs(t, tx.Delete("zz"), sqlstore.ErrNotFound)
	require.Error(t, tx.Put(task{}))

	require.NoError(t, tx.Delete("a"))
	require.ErrorIs(t, tx.Delete("a"), sqlstore.ErrNotFound, "second delete must see the first")

	tx.Rollback()
	require.Error(t, tx.Commit(t.Context()))

	_, ok, err := s.Get(t.Context(), "a")
	require.NoError(t, err)
	assert.True(t, ok, "rolled back delete applied")
}

func Test_Store_Drives_Controller_When_Committed_In_OnCommit_Mode(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	require.NoError(t, s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		return errors.Join(
			tx.Insert(task{Key: "a", Priority: 3}),
			tx.Insert(task{Key: "b", Priority: 1}),
		)
	}))

	c, err := livequery.New[task](s, openTasks(), livequery.Options{Mode: livequery.ModeOnCommit})
	require.NoError(t, err)
	require.NoError(t, c.PerformFetch(t.Context()))

	sectionNames := func() []string {
		var out []string
		for _, sec := range c.Sections() {
			out = append(out, sec.Name())
		}

		return out
	}

	assert.Equal(t, []string{"urgent", "later"}, sectionNames())

	// Three operations, one cycle.
	var cycles int

	c.SetObserver(didChange(func() { cycles++ }))

	require.NoError(t, s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		return errors.Join(
			tx.Update(task{Key: "b", Priority: 1, Closed: true}),
			tx.Insert(task{Key: "c", Priority: 0}),
			tx.Update(task{Key: "a", Priority: 0}),
		)
	}))

	assert.Equal(t, 1, cycles)
	assert.Equal(t, []string{"urgent"}, sectionNames())

	var keys []string
	for _, tk := range c.FetchedObjects() {
		keys = append(keys, tk.Key)
	}

	assert.Equal(t, []string{"a", "c"}, keys)
}

type didChange func()

func (f didChange) DidChangeContent() { f() }

func Test_Open_Reuses_Data_When_Reopened(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tasks.db")

	s, err := sqlstore.Open[task](t.Context(), path, "task", sqlstore.Options[task]{})
	require.NoError(t, err)
	require.NoError(t, s.Update(t.Context(), func(tx *sqlstore.Tx[task]) error {
		return tx.Insert(task{Key: "a", Title: "persisted"})
	}))
	require.NoError(t, s.Close())

	_, err = s.Execute(t.Context(), openTasks())
	require.ErrorIs(t, err, sqlstore.ErrClosed)

	again, err := sqlstore.Open[task](t.Context(), path, "task", sqlstore.Options[task]{})
	require.NoError(t, err)

	defer func() { _ = again.Close() }()

	got, err := again.Execute(t.Context(), openTasks())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Title)

	// Other entities share the file but not the rows.
	other, err := sqlstore.Open[task](t.Context(), path, "archive", sqlstore.Options[task]{})
	require.NoError(t, err)

	defer func() { _ = other.Close() }()

	n, err := other.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func Test_Execute_Rejects_Spec_When_Entity_Differs(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	spec := openTasks()
	spec.Entity = "note"

	_, err := s.Execute(t.Context(), spec)
	require.ErrorIs(t, err, sqlstore.ErrWrongEntity)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = s.Execute(ctx, openTasks())
	require.Error(t, err)
}
