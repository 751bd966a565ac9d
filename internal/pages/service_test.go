package pages

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ident"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
)

// countingBackend counts mutating calls on top of a memory backend.
type countingBackend struct {
	*store.MemoryBackend
	mu     sync.Mutex
	writes int
}

func (c *countingBackend) Put(ctx context.Context, key string, data []byte) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryBackend.Put(ctx, key, data)
}

func (c *countingBackend) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.MemoryBackend.Delete(ctx, key)
}

func (c *countingBackend) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	b     *countingBackend
	pages *store.PageStore
	site  *store.SiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := &countingBackend{MemoryBackend: store.NewMemoryBackend()}
	ps := store.NewPageStore(b, log.Nop())
	ss := store.NewSiteStore(b)
	svc, err := New(Options{
		Pages: ps,
		Site:  ss,
		IDs:   ident.NewGenerator(ident.Options{}),
		Now:   func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{svc: svc, b: b, pages: ps, site: ss}
}

func strp(s string) *string { return &s }

// assertConsistent checks the index lists exactly one ref per stored page.
func (f *fixture) assertConsistent(t *testing.T, state site.State) {
	t.Helper()
	ctx := context.Background()
	records, err := f.pages.List(ctx, state)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	idx, err := f.site.ReadIndex(ctx, state)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(records) != len(idx.Pages) {
		t.Fatalf("records = %+v, index = %+v", records, idx.Pages)
	}
	if w := site.InspectIndex(idx); len(idx.Pages) > 0 && len(w) != 0 {
		t.Fatalf("index warnings: %+v", w)
	}
	byID := map[string]site.PageRef{}
	for _, r := range records {
		byID[r.ID] = r
	}
	for _, ref := range idx.Pages {
		if byID[ref.ID] != ref {
			t.Fatalf("index ref %+v does not match record %+v", ref, byID[ref.ID])
		}
	}
}

func TestCreate_EndToEndRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, CreateInput{Title: "Contact Us"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Page.Slug != "contact-us" || len(res.Index.Pages) != 1 {
		t.Fatalf("create result = %+v", res)
	}
	if !ident.Page.Is(res.Page.ID) {
		t.Fatalf("page id %q not in page family", res.Page.ID)
	}
	if !res.Page.Meta.CreatedAt.Equal(fixedNow) || res.Page.Blocks == nil {
		t.Fatalf("page = %+v", res.Page)
	}

	up, err := f.svc.Update(ctx, "contact-us", Patch{Slug: strp("contact")}, site.Draft)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Page.Slug != "contact" {
		t.Fatalf("slug = %q", up.Page.Slug)
	}
	if ok, _ := f.pages.Exists(ctx, site.Draft, "contact-us"); ok {
		t.Fatal("old record still exists")
	}
	if len(up.Index.Pages) != 1 || up.Index.Pages[0].Slug != "contact" || up.Index.Pages[0].ID != res.Page.ID {
		t.Fatalf("index = %+v", up.Index.Pages)
	}
	f.assertConsistent(t, site.Draft)
}

func TestCreate_SlugCollisionSuffixes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, want := range []string{"about", "about-2", "about-3"} {
		res, err := f.svc.Create(ctx, CreateInput{Title: "About", Slug: "about"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if res.Page.Slug != want {
			t.Fatalf("slug = %q, want %q", res.Page.Slug, want)
		}
	}
	f.assertConsistent(t, site.Draft)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
		code siteerr.Code
	}{
		{"blank title", CreateInput{Title: "   "}, siteerr.CodePageTitleRequired},
		{"slug empty after normalize", CreateInput{Title: "日本語"}, siteerr.CodePageSlugRequired},
		{"explicit symbols only", CreateInput{Title: "Fine", Slug: "!!!"}, siteerr.CodePageSlugRequired},
		{"reserved", CreateInput{Title: "Admin"}, siteerr.CodePageSlugReserved},
		{"bad state", CreateInput{Title: "x", State: "archived"}, siteerr.CodeContentStateInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.in)
			if !siteerr.Is(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
	if f.b.Writes() != 0 {
		t.Fatalf("rejected creates wrote %d records", f.b.Writes())
	}
}

func TestCreate_Position(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _ := f.svc.Create(ctx, CreateInput{Title: "A"})
	_, _ = f.svc.Create(ctx, CreateInput{Title: "B"})
	res, err := f.svc.Create(ctx, CreateInput{Title: "C", Position: site.After(a.Page.ID)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var slugs []string
	for _, r := range res.Index.Pages {
		slugs = append(slugs, r.Slug)
	}
	if strings.Join(slugs, ",") != "a,c,b" {
		t.Fatalf("order = %v", slugs)
	}
}

func TestCreate_StatesAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, CreateInput{Title: "About", State: site.Published}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := f.svc.Create(ctx, CreateInput{Title: "About"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Page.Slug != "about" {
		t.Fatalf("draft slug = %q, published record must not collide", res.Page.Slug)
	}
}

func TestUpdate_NoOpPerformsZeroWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, _ := f.svc.Create(ctx, CreateInput{Title: "About"})
	before := f.b.Writes()

	include := true
	res, err := f.svc.Update(ctx, "about", Patch{
		Title:   strp("About"),
		Slug:    strp("About"),
		Sitemap: &SitemapPatch{Include: &include},
	}, site.Draft)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.b.Writes() != before {
		t.Fatalf("no-op update wrote %d records", f.b.Writes()-before)
	}
	if len(res.Changed) != 0 || !res.Page.Meta.UpdatedAt.Equal(created.Page.Meta.UpdatedAt) {
		t.Fatalf("result = %+v", res)
	}
}

func TestUpdate_NoOpRepairsMissingIndexEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.Create(ctx, CreateInput{Title: "About"})
	_ = f.site.WriteIndex(ctx, site.Draft, site.Index{})

	res, err := f.svc.Update(ctx, "about", Patch{}, site.Draft)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(res.Index.Pages) != 1 {
		t.Fatalf("index not repaired: %+v", res.Index)
	}
	f.assertConsistent(t, site.Draft)
}

func TestUpdate_TitleAndSitemap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, CreateInput{Title: "About"})

	later := fixedNow.Add(time.Hour)
	f.svc.now = func() time.Time { return later }

	prio := 0.8
	res, err := f.svc.Update(ctx, "about", Patch{
		Title:   strp("  About us  "),
		Sitemap: &SitemapPatch{ChangeFreq: strp("weekly"), Priority: &prio},
	}, site.Draft)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Page.Title != "About us" || res.Page.Slug != "about" {
		t.Fatalf("page = %+v", res.Page)
	}
	if !res.Page.Sitemap.IncludeOrDefault() || res.Page.Sitemap.Include == nil {
		t.Fatal("include should default to true once the sitemap is touched")
	}
	if res.Page.Sitemap.ChangeFreq != "weekly" || *res.Page.Sitemap.Priority != 0.8 {
		t.Fatalf("sitemap = %+v", res.Page.Sitemap)
	}
	if !res.Page.Meta.UpdatedAt.Equal(later) || !res.Page.Meta.CreatedAt.Equal(fixedNow) {
		t.Fatalf("meta = %+v", res.Page.Meta)
	}
	if strings.Join(res.Changed, ",") != "title,sitemap" {
		t.Fatalf("changed = %v", res.Changed)
	}
	if res.Index.Pages[0].Title != "About us" {
		t.Fatalf("index title = %q", res.Index.Pages[0].Title)
	}

	// empty title is ignored rather than rejected
	res, err = f.svc.Update(ctx, "about", Patch{Title: strp("  ")}, site.Draft)
	if err != nil || res.Page.Title != "About us" {
		t.Fatalf("blank title update = %+v, %v", res.Page, err)
	}
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, CreateInput{Title: "About"})
	_, _ = f.svc.Create(ctx, CreateInput{Title: "Team"})

	tests := []struct {
		name    string
		current string
		patch   Patch
		code    siteerr.Code
	}{
		{"current required", "  ", Patch{}, siteerr.CodePageCurrentSlugRequired},
		{"not found", "missing", Patch{}, siteerr.CodePageNotFound},
		{"conflict", "about", Patch{Slug: strp("team")}, siteerr.CodeConflict},
		{"reserved", "about", Patch{Slug: strp("settings")}, siteerr.CodePageSlugReserved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, tc.current, tc.patch, site.Draft)
			if !siteerr.Is(err, tc.code) {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
	f.assertConsistent(t, site.Draft)
}

func TestUpdate_RetryAfterPartialRenameConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, CreateInput{Title: "Contact Us"})

	// simulate a crash after writing the new record but before deleting the old one
	moved := created.Page.Clone()
	moved.Slug = "contact"
	_ = f.pages.Put(ctx, site.Draft, moved)

	res, err := f.svc.Update(ctx, "contact-us", Patch{Slug: strp("contact")}, site.Draft)
	if err != nil {
		t.Fatalf("retry Update: %v", err)
	}
	if res.Page.Slug != "contact" {
		t.Fatalf("slug = %q", res.Page.Slug)
	}
	f.assertConsistent(t, site.Draft)
}

func TestDelete_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, CreateInput{Title: "About"})
	_, _ = f.svc.Create(ctx, CreateInput{Title: "Team"})

	first, err := f.svc.Delete(ctx, "about", site.Draft)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !first.Removed || len(first.Index.Pages) != 1 {
		t.Fatalf("first delete = %+v", first)
	}

	second, err := f.svc.Delete(ctx, "About", site.Draft)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if second.Removed || len(second.Index.Pages) != 1 || second.Index.Pages[0].Slug != "team" {
		t.Fatalf("second delete = %+v", second)
	}
	f.assertConsistent(t, site.Draft)

	if _, err := f.svc.Delete(ctx, "", site.Draft); !siteerr.Is(err, siteerr.CodePageSlugRequired) {
		t.Fatalf("empty slug err = %v", err)
	}
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.Create(ctx, CreateInput{Title: "About"})

	p, err := f.svc.Get(ctx, "About", site.Draft)
	if err != nil || p.ID != created.Page.ID {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	if _, err := f.svc.Get(ctx, "nope", site.Draft); !siteerr.Is(err, siteerr.CodePageNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, CreateInput{Title: "A"})
	_, _ = f.svc.Create(ctx, CreateInput{Title: "B"})
	c, _ := f.svc.Create(ctx, CreateInput{Title: "C"})

	idx, err := f.svc.Move(ctx, c.Page.ID, site.Prepend, site.Draft)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if idx.Pages[0].ID != c.Page.ID || len(idx.Pages) != 3 {
		t.Fatalf("index = %+v", idx.Pages)
	}
	if _, err := f.svc.Move(ctx, "pg_unknown", site.Prepend, site.Draft); !siteerr.Is(err, siteerr.CodePageNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, CreateInput{Title: "A"})
	b, _ := f.svc.Create(ctx, CreateInput{Title: "B"})
	_, _ = f.svc.Create(ctx, CreateInput{Title: "C"})

	// out-of-band drift: a record vanished, another was retitled, one was never indexed
	_ = f.pages.Delete(ctx, site.Draft, "c")
	retitled := b.Page
	retitled.Title = "Bee"
	_ = f.pages.Put(ctx, site.Draft, retitled)
	_ = f.pages.Put(ctx, site.Draft, site.Page{ID: "pg_orphan00000", Slug: "orphan", Title: "Orphan"})

	res, err := f.svc.Reconcile(ctx, site.Draft)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Added != 1 || res.Removed != 1 || res.Refreshed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Index.Pages[0].ID != a.Page.ID || res.Index.Pages[1].Title != "Bee" || res.Index.Pages[2].Slug != "orphan" {
		t.Fatalf("index = %+v", res.Index.Pages)
	}
	f.assertConsistent(t, site.Draft)

	before := f.b.Writes()
	again, err := f.svc.Reconcile(ctx, site.Draft)
	if err != nil || again.Added+again.Removed+again.Refreshed != 0 {
		t.Fatalf("second reconcile = %+v, %v", again, err)
	}
	if f.b.Writes() != before {
		t.Fatal("consistent index must not be rewritten")
	}
}

func TestIndexConsistency_Sequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := f.svc.Create(ctx, CreateInput{Title: "Home"}); return err },
		func() error { _, err := f.svc.Create(ctx, CreateInput{Title: "About"}); return err },
		func() error { _, err := f.svc.Create(ctx, CreateInput{Title: "About"}); return err },
		func() error { _, err := f.svc.Update(ctx, "about-2", Patch{Slug: strp("team")}, site.Draft); return err },
		func() error { _, err := f.svc.Update(ctx, "home", Patch{Title: strp("Welcome")}, site.Draft); return err },
		func() error { _, err := f.svc.Delete(ctx, "about", site.Draft); return err },
		func() error { _, err := f.svc.Create(ctx, CreateInput{Title: "About"}); return err },
		func() error { _, err := f.svc.Delete(ctx, "missing", site.Draft); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		f.assertConsistent(t, site.Draft)
	}
}

func TestWithSuffix_RespectsMaxLen(t *testing.T) {
	base := strings.Repeat("a", 95) + "b"
	got := withSuffix(base, 12)
	if len(got) > 96 || !strings.HasSuffix(got, "-12") {
		t.Fatalf("withSuffix = %q (%d)", got, len(got))
	}
}
