package livequery

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_DefaultIndexTitle_Uppercases_First_Rune_When_Name_Given(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"", ""},
		{"apple", "A"},
		{"Apple", "A"},
		{"élan", "É"},
		{"9lives", "9"},
		{"日本", "日"},
		{"\xffbad", "\xff"},
	}

	for _, tt := range tests {
		if got := DefaultIndexTitle(tt.name); got != tt.want {
			t.Fatalf("DefaultIndexTitle(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func Test_Sectioner_Build_Round_Trips_When_Layout_Reapplied(t *testing.T) {
	t.Parallel()

	spec := nameSpec()
	sec := sectioner[item]{key: spec.sectionKey, title: DefaultIndexTitle}

	records := []item{
		{id: "1", name: "Aa"},
		{id: "2", name: "Ab"},
		{id: "3", name: "Ba"},
		{id: "4", name: "Ca"},
		{id: "5", name: "Cb"},
	}

	st, err := sec.build(records)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if diff := cmp.Diff([]string{"A:[1 2]", "B:[3]", "C:[4 5]"}, layoutOf(st.Sections())); diff != "" {
		t.Fatalf("sections mismatch (-want +got):\n%s", diff)
	}

	for i, r := range records {
		p, ok := st.IndexPathOf(r.id)
		if !ok {
			t.Fatalf("IndexPathOf(%q) missing", r.id)
		}

		got, _ := st.Object(p)
		if got.id != r.id {
			t.Fatalf("Object(%v) = %q, want %q (record %d)", p, got.id, r.id, i)
		}
	}

	// Rebuilding from the flattened objects reproduces the same layout.
	again, err := sec.build(st.Objects())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if !equalLayouts(st.layout(), again.layout()) {
		t.Fatalf("rebuild layout = %+v, want %+v", again.layout(), st.layout())
	}

	seeded, ok := seedFromLayout(st.layout(), []item{records[4], records[0], records[2], records[1], records[3]})
	if !ok {
		t.Fatal("seedFromLayout rejected its own layout")
	}

	if diff := cmp.Diff(layoutOf(st.Sections()), layoutOf(seeded.Sections())); diff != "" {
		t.Fatalf("seeded sections mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(st.IndexTitles(), seeded.IndexTitles()); diff != "" {
		t.Fatalf("seeded titles mismatch (-want +got):\n%s", diff)
	}
}

func Test_Sectioner_Build_Reports_Violation_When_Key_Reappears(t *testing.T) {
	t.Parallel()

	sec := sectioner[item]{key: func(i item) string { return i.group }, title: DefaultIndexTitle}

	_, err := sec.build([]item{
		{id: "1", group: "x"},
		{id: "2", group: "y"},
		{id: "3", group: "x"},
	})
	if !errors.Is(err, ErrSectionConsistency) {
		t.Fatalf("build error = %v, want ErrSectionConsistency", err)
	}

	var lqErr *Error
	if !errors.As(err, &lqErr) || lqErr.RecordID != "3" || lqErr.Section != "x" {
		t.Fatalf("error context = %+v, want record 3 in section x", lqErr)
	}
}

func Test_Sectioner_Build_Rejects_Records_When_IDs_Invalid(t *testing.T) {
	t.Parallel()

	sec := sectioner[item]{key: func(item) string { return "" }, title: DefaultIndexTitle}

	if _, err := sec.build([]item{{id: ""}}); !errors.Is(err, errEmptyID) {
		t.Fatalf("build error = %v, want errEmptyID", err)
	}

	if _, err := sec.build([]item{{id: "a"}, {id: "a"}}); err == nil {
		t.Fatal("build accepted duplicate ids")
	}
}

func Test_SeedFromLayout_Rejects_Layout_When_Records_Differ(t *testing.T) {
	t.Parallel()

	layout := Layout{Sections: []LayoutSection{
		{Name: "A", IndexTitle: "A", IDs: []string{"a", "b"}},
	}}

	tests := []struct {
		name    string
		layout  Layout
		records []item
	}{
		{name: "missing record", layout: layout, records: []item{{id: "a"}}},
		{name: "unknown id", layout: layout, records: []item{{id: "a"}, {id: "c"}}},
		{name: "empty section", layout: Layout{Sections: []LayoutSection{{Name: "A"}, {Name: "B", IDs: []string{"a"}}}}, records: []item{{id: "a"}}},
		{name: "duplicate section", layout: Layout{Sections: []LayoutSection{{Name: "A", IDs: []string{"a"}}, {Name: "A", IDs: []string{"b"}}}}, records: []item{{id: "a"}, {id: "b"}}},
		{name: "duplicate id", layout: Layout{Sections: []LayoutSection{{Name: "A", IDs: []string{"a", "a"}}}}, records: []item{{id: "a"}, {id: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, ok := seedFromLayout(tt.layout, tt.records); ok {
				t.Fatal("seedFromLayout accepted a mismatching layout")
			}
		})
	}
}
