package site

import (
	"fmt"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// Index is the ordered listing of page references for one content state.
// No two entries share an id or a slug; the use-cases keep it that way.
type Index struct {
	Pages     []PageRef `json:"pages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy with its own Pages slice.
func (idx Index) Clone() Index {
	cp := idx
	cp.Pages = append([]PageRef(nil), idx.Pages...)
	return cp
}

// FindByID returns the position of id, or -1.
func (idx Index) FindByID(id string) int {
	for i, r := range idx.Pages {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// FindBySlug returns the position of slug, or -1.
func (idx Index) FindBySlug(slug string) int {
	for i, r := range idx.Pages {
		if r.Slug == slug {
			return i
		}
	}
	return -1
}

// PlaceKind selects where a new ref goes.
type PlaceKind string

const (
	PlaceAppend  PlaceKind = "append"
	PlacePrepend PlaceKind = "prepend"
	PlaceBefore  PlaceKind = "before"
	PlaceAfter   PlaceKind = "after"
)

// Position is an insertion point. The zero value appends.
type Position struct {
	Kind   PlaceKind `json:"kind,omitempty"`
	Anchor string    `json:"anchor,omitempty"` // page id for before/after
}

var (
	Append  = Position{Kind: PlaceAppend}
	Prepend = Position{Kind: PlacePrepend}
)

func Before(id string) Position { return Position{Kind: PlaceBefore, Anchor: id} }
func After(id string) Position  { return Position{Kind: PlaceAfter, Anchor: id} }

// ParsePlaceKind maps raw input to a PlaceKind; empty is append.
func ParsePlaceKind(raw string) (PlaceKind, error) {
	switch k := PlaceKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return PlaceAppend, nil
	case PlaceAppend, PlacePrepend, PlaceBefore, PlaceAfter:
		return k, nil
	default:
		return "", fmt.Errorf("unknown position %q (valid: append|prepend|before|after)", raw)
	}
}

// UpsertPageRef inserts ref, or updates slug/title of the entry with the same
// id in place. The input is never mutated; when nothing changes the input is
// returned as-is and changed is false.
func UpsertPageRef(idx Index, ref PageRef, pos Position) (next Index, changed bool) {
	if i := idx.FindByID(ref.ID); i >= 0 {
		cur := idx.Pages[i]
		if cur.Slug == ref.Slug && cur.Title == ref.Title {
			return idx, false
		}
		next = idx.Clone()
		next.Pages[i].Slug = ref.Slug
		next.Pages[i].Title = ref.Title
		return next, true
	}
	next = idx
	next.Pages = insertAt(idx.Pages, ref, pos)
	return next, true
}

// insertAt returns a new slice with ref placed per pos. Missing anchors append.
func insertAt(refs []PageRef, ref PageRef, pos Position) []PageRef {
	at := len(refs)
	switch pos.Kind {
	case PlacePrepend:
		at = 0
	case PlaceBefore, PlaceAfter:
		for i, r := range refs {
			if r.ID == pos.Anchor {
				at = i
				if pos.Kind == PlaceAfter {
					at = i + 1
				}
				break
			}
		}
	}
	out := make([]PageRef, 0, len(refs)+1)
	out = append(out, refs[:at]...)
	out = append(out, ref)
	out = append(out, refs[at:]...)
	return out
}

// RemovePageBySlug drops the entry with slug. No match returns idx unchanged.
func RemovePageBySlug(idx Index, slug string) (next Index, removed bool) {
	return removeWhere(idx, func(r PageRef) bool { return r.Slug == slug })
}

// RemovePageByID drops the entry with id. No match returns idx unchanged.
func RemovePageByID(idx Index, id string) (next Index, removed bool) {
	return removeWhere(idx, func(r PageRef) bool { return r.ID == id })
}

func removeWhere(idx Index, match func(PageRef) bool) (Index, bool) {
	hit := false
	for _, r := range idx.Pages {
		if match(r) {
			hit = true
			break
		}
	}
	if !hit {
		return idx, false
	}
	next := idx
	next.Pages = make([]PageRef, 0, len(idx.Pages))
	for _, r := range idx.Pages {
		if !match(r) {
			next.Pages = append(next.Pages, r)
		}
	}
	return next, true
}

// MovePageRef repositions the entry with id. Moving an unknown id, or to the
// position it already holds, returns idx unchanged.
func MovePageRef(idx Index, id string, pos Position) (Index, bool) {
	i := idx.FindByID(id)
	if i < 0 {
		return idx, false
	}
	if (pos.Kind == PlaceBefore || pos.Kind == PlaceAfter) && pos.Anchor == id {
		return idx, false
	}
	ref := idx.Pages[i]
	rest, _ := RemovePageByID(idx, id)
	moved := rest
	moved.Pages = insertAt(rest.Pages, ref, pos)
	if refsEqual(moved.Pages, idx.Pages) {
		return idx, false
	}
	return moved, true
}

func refsEqual(a, b []PageRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Index warning codes produced by InspectIndex.
const (
	WarnIndexEmpty         siteerr.Code = "INDEX_EMPTY"
	WarnIndexDuplicateID   siteerr.Code = "INDEX_DUPLICATE_ID"
	WarnIndexDuplicateSlug siteerr.Code = "INDEX_DUPLICATE_SLUG"
	WarnIndexRefIncomplete siteerr.Code = "INDEX_REF_INCOMPLETE"
)

// InspectIndex reports structural problems without failing. Pure.
func InspectIndex(idx Index) []siteerr.Warning {
	var out []siteerr.Warning
	if len(idx.Pages) == 0 {
		return append(out, siteerr.Warning{Code: WarnIndexEmpty, Path: "index.pages"})
	}
	seenID := make(map[string]int, len(idx.Pages))
	seenSlug := make(map[string]int, len(idx.Pages))
	for i, r := range idx.Pages {
		path := fmt.Sprintf("index.pages[%d]", i)
		if r.ID == "" || r.Slug == "" || strings.TrimSpace(r.Title) == "" {
			out = append(out, siteerr.Warning{
				Code: WarnIndexRefIncomplete,
				Path: path,
				Meta: map[string]any{"id": r.ID, "slug": r.Slug},
			})
		}
		if r.ID != "" {
			if first, dup := seenID[r.ID]; dup {
				out = append(out, siteerr.Warning{
					Code: WarnIndexDuplicateID,
					Path: path + ".id",
					Meta: map[string]any{"id": r.ID, "first": first},
				})
			} else {
				seenID[r.ID] = i
			}
		}
		if r.Slug != "" {
			if first, dup := seenSlug[r.Slug]; dup {
				out = append(out, siteerr.Warning{
					Code: WarnIndexDuplicateSlug,
					Path: path + ".slug",
					Meta: map[string]any{"slug": r.Slug, "first": first},
				})
			} else {
				seenSlug[r.Slug] = i
			}
		}
	}
	return out
}
