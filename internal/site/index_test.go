package site

import (
	"testing"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

func refs(ids ...string) Index {
	var idx Index
	for _, id := range ids {
		idx.Pages = append(idx.Pages, PageRef{ID: id, Slug: "s-" + id, Title: "T " + id})
	}
	return idx
}

func ids(idx Index) []string {
	out := make([]string, len(idx.Pages))
	for i, r := range idx.Pages {
		out[i] = r.ID
	}
	return out
}

func sameIDs(t *testing.T, got Index, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range g {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestUpsertPageRef_Positions(t *testing.T) {
	base := refs("a", "b", "c")
	tests := []struct {
		name string
		pos  Position
		want []string
	}{
		{"zero value appends", Position{}, []string{"a", "b", "c", "x"}},
		{"append", Append, []string{"a", "b", "c", "x"}},
		{"prepend", Prepend, []string{"x", "a", "b", "c"}},
		{"before", Before("b"), []string{"a", "x", "b", "c"}},
		{"after", After("b"), []string{"a", "b", "x", "c"}},
		{"after last", After("c"), []string{"a", "b", "c", "x"}},
		{"missing anchor appends", Before("zz"), []string{"a", "b", "c", "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, changed := UpsertPageRef(base, PageRef{ID: "x", Slug: "x", Title: "X"}, tc.pos)
			if !changed {
				t.Fatal("insert must report changed")
			}
			sameIDs(t, next, tc.want...)
			sameIDs(t, base, "a", "b", "c")
		})
	}
}

func TestUpsertPageRef_UnchangedReturnsSameIndex(t *testing.T) {
	base := refs("a", "b")
	next, changed := UpsertPageRef(base, base.Pages[1], Prepend)
	if changed {
		t.Fatal("identical ref must not report changed")
	}
	if &next.Pages[0] != &base.Pages[0] {
		t.Fatal("no-op must return the input index without copying")
	}
}

func TestUpsertPageRef_UpdatesInPlace(t *testing.T) {
	base := refs("a", "b", "c")
	next, changed := UpsertPageRef(base, PageRef{ID: "b", Slug: "new", Title: "New"}, Prepend)
	if !changed {
		t.Fatal("expected changed")
	}
	sameIDs(t, next, "a", "b", "c")
	if next.Pages[1].Slug != "new" || next.Pages[1].Title != "New" {
		t.Fatalf("ref = %+v", next.Pages[1])
	}
	if base.Pages[1].Slug != "s-b" {
		t.Fatal("input index was mutated")
	}
}

func TestRemovePage(t *testing.T) {
	base := refs("a", "b", "c")

	next, removed := RemovePageBySlug(base, "s-b")
	if !removed {
		t.Fatal("expected removed")
	}
	sameIDs(t, next, "a", "c")
	sameIDs(t, base, "a", "b", "c")

	again, removed := RemovePageBySlug(next, "s-b")
	if removed {
		t.Fatal("second removal must be a no-op")
	}
	sameIDs(t, again, "a", "c")

	byID, removed := RemovePageByID(base, "c")
	if !removed {
		t.Fatal("expected removed by id")
	}
	sameIDs(t, byID, "a", "b")

	if _, removed := RemovePageByID(Index{}, "c"); removed {
		t.Fatal("empty index must not report removal")
	}
}

func TestMovePageRef(t *testing.T) {
	base := refs("a", "b", "c")

	next, moved := MovePageRef(base, "c", Prepend)
	if !moved {
		t.Fatal("expected moved")
	}
	sameIDs(t, next, "c", "a", "b")

	next, moved = MovePageRef(base, "a", After("c"))
	if !moved {
		t.Fatal("expected moved")
	}
	sameIDs(t, next, "b", "c", "a")

	if _, moved := MovePageRef(base, "a", Prepend); moved {
		t.Fatal("moving to the current position must be a no-op")
	}
	if _, moved := MovePageRef(base, "zz", Prepend); moved {
		t.Fatal("unknown id must be a no-op")
	}
	if _, moved := MovePageRef(base, "b", Before("b")); moved {
		t.Fatal("self anchor must be a no-op")
	}
	sameIDs(t, base, "a", "b", "c")
}

func TestParsePlaceKind(t *testing.T) {
	for raw, want := range map[string]PlaceKind{"": PlaceAppend, " After ": PlaceAfter, "prepend": PlacePrepend} {
		got, err := ParsePlaceKind(raw)
		if err != nil || got != want {
			t.Fatalf("ParsePlaceKind(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParsePlaceKind("sideways"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestInspectIndex(t *testing.T) {
	if w := InspectIndex(Index{}); len(w) != 1 || w[0].Code != WarnIndexEmpty {
		t.Fatalf("empty index warnings = %+v", w)
	}
	if w := InspectIndex(refs("a", "b")); len(w) != 0 {
		t.Fatalf("clean index warnings = %+v", w)
	}

	idx := Index{Pages: []PageRef{
		{ID: "a", Slug: "one", Title: "One"},
		{ID: "a", Slug: "two", Title: "Two"},
		{ID: "b", Slug: "one", Title: " "},
	}}
	got := map[siteerr.Code]string{}
	for _, w := range InspectIndex(idx) {
		got[w.Code] = w.Path
	}
	want := map[siteerr.Code]string{
		WarnIndexDuplicateID:   "index.pages[1].id",
		WarnIndexDuplicateSlug: "index.pages[2].slug",
		WarnIndexRefIncomplete: "index.pages[2]",
	}
	for code, path := range want {
		if got[code] != path {
			t.Errorf("%s path = %q, want %q", code, got[code], path)
		}
	}
}
