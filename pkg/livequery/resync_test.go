package livequery

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// replicaSection mirrors a section the way a list view would hold it.
type replicaSection struct {
	name string
	ids  []string
}

func replicaOf(st *State[item]) []replicaSection {
	out := make([]replicaSection, 0, len(st.sections))

	for _, s := range st.sections {
		ids := make([]string, 0, len(s.objects))
		for _, o := range s.objects {
			ids = append(ids, o.id)
		}

		out = append(out, replicaSection{name: s.name, ids: ids})
	}

	return out
}

// applyToReplica applies cs using batch-update semantics: removals at old
// paths, section deletes, section inserts, placements at new paths.
func applyToReplica(t *testing.T, replica []replicaSection, cs ChangeSet[item]) []replicaSection {
	t.Helper()

	var removals, placements []ObjectChange[item]

	for _, oc := range cs.Objects {
		switch oc.Type {
		case ChangeDelete:
			removals = append(removals, oc)
		case ChangeInsert:
			placements = append(placements, oc)
		case ChangeMove:
			removals = append(removals, oc)
			placements = append(placements, oc)
		case ChangeUpdate:
			require.Equal(t, *oc.OldPath, *oc.NewPath, "update must keep its path")
		}
	}

	slices.SortFunc(removals, func(a, b ObjectChange[item]) int { return compareIndexPaths(*b.OldPath, *a.OldPath) })

	for _, oc := range removals {
		p := *oc.OldPath
		require.Less(t, p.Section, len(replica), "removal section out of range: %v", p)
		sec := &replica[p.Section]
		require.Less(t, p.Item, len(sec.ids), "removal item out of range: %v", p)
		require.Equal(t, oc.Object.id, sec.ids[p.Item], "removal at %v hits wrong record", p)
		sec.ids = slices.Delete(sec.ids, p.Item, p.Item+1)
	}

	for _, sc := range cs.Sections {
		switch sc.Type {
		case ChangeDelete:
			require.Empty(t, replica[sc.Index].ids, "deleted section %q not empty", sc.Section.Name())
			replica = slices.Delete(replica, sc.Index, sc.Index+1)
		case ChangeInsert:
			replica = slices.Insert(replica, sc.Index, replicaSection{name: sc.Section.Name()})
		default:
			t.Fatalf("unexpected section change type %v", sc.Type)
		}
	}

	slices.SortFunc(placements, func(a, b ObjectChange[item]) int { return compareIndexPaths(*a.NewPath, *b.NewPath) })

	for _, oc := range placements {
		p := *oc.NewPath
		require.Less(t, p.Section, len(replica), "placement section out of range: %v", p)
		sec := &replica[p.Section]
		require.LessOrEqual(t, p.Item, len(sec.ids), "placement item out of range: %v", p)
		sec.ids = slices.Insert(sec.ids, p.Item, oc.Object.id)
	}

	return replica
}

func Test_Resync_Matches_Full_Refetch_When_Random_Mutations_Applied(t *testing.T) {
	t.Parallel()

	for _, seed := range []uint64{1, 7, 42, 1234} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewPCG(seed, seed))
			store := newFakeStore()
			c := mustFetch(t, store, nameSpec(), Options{})

			randomName := func() string {
				return fmt.Sprintf("%c%d", 'A'+rng.IntN(5), rng.IntN(4))
			}

			for step := range 200 {
				replica := replicaOf(c.Snapshot())

				var sig Signals[item]

				for _, n := range rng.Perm(30)[:1+rng.IntN(4)] {
					id := fmt.Sprintf("r%02d", n)
					cur, exists := store.records[id]

					switch {
					case !exists:
						it := item{id: id, name: randomName(), archived: rng.IntN(5) == 0}
						store.records[id] = it
						sig.Inserted = append(sig.Inserted, it)
					case rng.IntN(4) == 0:
						delete(store.records, id)
						sig.Deleted = append(sig.Deleted, cur)
					case rng.IntN(3) == 0:
						cur.archived = !cur.archived
						store.records[id] = cur
						sig.Updated = append(sig.Updated, cur)
					default:
						cur.name = randomName()
						store.records[id] = cur
						sig.Updated = append(sig.Updated, cur)
					}
				}

				var got ChangeSet[item]

				rec := &batchCapture{out: &got}
				c.SetObserver(rec)
				store.Publish(CategoryMutation, Event[item]{Entity: "item", Signals: sig})

				replica = applyToReplica(t, replica, got)
				require.Equal(t, replicaOf(c.Snapshot()), replica, "step %d: replica diverged", step)

				fresh := mustFetch(t, store, nameSpec(), Options{})
				require.Equal(t, replicaOf(fresh.Snapshot()), replicaOf(c.Snapshot()), "step %d: incremental result differs from refetch", step)
				require.NoError(t, fresh.Close())
			}
		})
	}
}

type batchCapture struct{ out *ChangeSet[item] }

func (b *batchCapture) DidChangeSectionsAndObjects(cs ChangeSet[item]) { *b.out = cs }

func Test_Resync_Returns_Old_State_When_Signals_Empty(t *testing.T) {
	t.Parallel()

	spec := nameSpec()
	sec := sectioner[item]{key: spec.sectionKey, title: DefaultIndexTitle}

	old, err := sec.build([]item{{id: "a", name: "Aa"}})
	require.NoError(t, err)

	res, err := resync(spec, sec, old, Signals[item]{})
	require.NoError(t, err)
	require.Same(t, old, res.state)
	require.True(t, res.changes.Empty())
}

func Test_MergeSorted_Puts_Untouched_First_When_Compare_Ties(t *testing.T) {
	t.Parallel()

	byName := func(a, b item) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		default:
			return 0
		}
	}

	untouched := []item{{id: "u1", name: "A"}, {id: "u2", name: "B"}}
	touched := []item{{id: "t1", name: "A"}, {id: "t2", name: "C"}}

	got := mergeSorted(untouched, touched, byName)

	ids := make([]string, 0, len(got))
	for _, it := range got {
		ids = append(ids, it.id)
	}

	require.Equal(t, []string{"u1", "t1", "u2", "t2"}, ids)
}
