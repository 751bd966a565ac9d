package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ident"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/pages"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/settings"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// failingBackend fails every Put to one key.
type failingBackend struct {
	*store.MemoryBackend
	failKey string
}

func (f *failingBackend) Put(ctx context.Context, key string, data []byte) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Put(ctx, key, data)
}

type observed struct {
	warnings map[string]int
	copied   int
	at       time.Time
}

func (o *observed) IncPublishWarning(code string) {
	if o.warnings == nil {
		o.warnings = map[string]int{}
	}
	o.warnings[code]++
}

func (o *observed) SetPublishSuccess(n int, at time.Time) { o.copied, o.at = n, at }

type stubReleaser struct {
	err  error
	seen Result
}

func (s *stubReleaser) Release(_ context.Context, res Result) (ReleaseInfo, error) {
	s.seen = res
	if s.err != nil {
		return ReleaseInfo{}, s.err
	}
	return ReleaseInfo{Key: "published/site/release.json", SHA256: "abc"}, nil
}

type fixture struct {
	b     *failingBackend
	ps    *store.PageStore
	ss    *store.SiteStore
	pages *pages.Service
	obs   *observed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := &failingBackend{MemoryBackend: store.NewMemoryBackend()}
	ps := store.NewPageStore(b, log.Nop())
	ss := store.NewSiteStore(b)
	psvc, err := pages.New(pages.Options{
		Pages: ps,
		Site:  ss,
		IDs:   ident.NewGenerator(ident.Options{}),
		Now:   func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("pages.New: %v", err)
	}
	return &fixture{b: b, ps: ps, ss: ss, pages: psvc, obs: &observed{}}
}

func (f *fixture) service(t *testing.T, mutate func(*Options)) *Service {
	t.Helper()
	opts := Options{
		Pages:    f.ps,
		Site:     f.ss,
		Observer: f.obs,
		Now:      func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func (f *fixture) createPages(t *testing.T, titles ...string) []site.Page {
	t.Helper()
	out := make([]site.Page, 0, len(titles))
	for _, title := range titles {
		res, err := f.pages.Create(context.Background(), pages.CreateInput{Title: title})
		if err != nil {
			t.Fatalf("Create %q: %v", title, err)
		}
		out = append(out, res.Page)
	}
	return out
}

func (f *fixture) validSettings(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	id, _ := settings.PatchFrom(map[string]any{"title": "Acme"})
	if _, err := settings.Update(ctx, f.ss, settings.IdentitySection, id, site.Draft); err != nil {
		t.Fatalf("identity: %v", err)
	}
	seo, _ := settings.PatchFrom(map[string]any{"defaultTitle": "Acme", "baseUrl": "https://acme.example"})
	if _, err := settings.Update(ctx, f.ss, settings.SEOSection, seo, site.Draft); err != nil {
		t.Fatalf("seo: %v", err)
	}
}

func codes(ws []siteerr.Warning) []siteerr.Code {
	out := make([]siteerr.Code, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestPublish_IdenticalStates(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, nil)

	_, err := svc.Publish(context.Background(), site.Draft, site.Draft)
	if !siteerr.Is(err, siteerr.CodePublishIdenticalStates) {
		t.Fatalf("err = %v, want %s", err, siteerr.CodePublishIdenticalStates)
	}
	_, err = svc.Publish(context.Background(), site.Draft, site.State("live"))
	if !siteerr.Is(err, siteerr.CodeContentStateInvalid) {
		t.Fatalf("err = %v, want %s", err, siteerr.CodeContentStateInvalid)
	}
}

func TestPublish_CopiesEverything(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	created := f.createPages(t, "Home", "About", "Contact Us")
	svc := f.service(t, nil)

	res, err := svc.Publish(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.From != site.Draft || res.To != site.Published {
		t.Fatalf("states = %s -> %s", res.From, res.To)
	}
	if res.PagesCopied != 3 || !res.SettingsCopied || len(res.Warnings) != 0 {
		t.Fatalf("result = %+v", res)
	}

	ctx := context.Background()
	idx, err := f.ss.ReadIndex(ctx, site.Published)
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(idx.Pages) != 3 || !idx.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("published index = %+v", idx)
	}
	for _, p := range created {
		got, found, err := f.ps.Read(ctx, site.Published, p.Slug)
		if err != nil || !found || got.ID != p.ID {
			t.Fatalf("published %s = %+v found=%v err=%v", p.Slug, got, found, err)
		}
	}
	st, _ := f.ss.ReadSettings(ctx, site.Published)
	if st.Identity.Title != "Acme" || !st.Has(site.SectionSEO) {
		t.Fatalf("published settings = %+v", st)
	}
	if f.obs.copied != 3 || !f.obs.at.Equal(fixedNow) {
		t.Fatalf("observer = %+v", f.obs)
	}
}

func TestPublish_SettingsGateAborts(t *testing.T) {
	f := newFixture(t)
	f.createPages(t, "Home")
	svc := f.service(t, nil)

	_, err := svc.Publish(context.Background(), site.Draft, site.Published)
	if !siteerr.Is(err, siteerr.CodePublishSettingsInvalid) || !siteerr.IsValidation(err) {
		t.Fatalf("err = %v, want %s validation error", err, siteerr.CodePublishSettingsInvalid)
	}
	se, _ := siteerr.As(err)
	paths := map[string]bool{}
	for _, is := range se.Issues {
		paths[is.Path] = true
	}
	if !paths["identity.title"] || !paths["seo.defaultTitle"] {
		t.Fatalf("issues = %+v", se.Issues)
	}

	ctx := context.Background()
	if ok, _ := f.ps.Exists(ctx, site.Published, "home"); ok {
		t.Fatal("page copied despite failed settings gate")
	}
	if idx, _ := f.ss.ReadIndex(ctx, site.Published); len(idx.Pages) != 0 {
		t.Fatalf("published index written despite failed gate: %+v", idx.Pages)
	}
	st, _ := f.ss.ReadSettings(ctx, site.Published)
	if len(st.Present()) != 0 {
		t.Fatalf("settings copied despite failed gate: %v", st.Present())
	}
	if f.obs.copied != 0 || len(f.obs.warnings) != 0 {
		t.Fatalf("observer touched on abort: %+v", f.obs)
	}
}

func TestPublish_MissingPageIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	f.createPages(t, "Home", "About", "Pricing")
	if err := f.ps.Delete(context.Background(), site.Draft, "about"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	svc := f.service(t, nil)

	res, err := svc.Publish(context.Background(), site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.PagesCopied != 2 {
		t.Fatalf("pages copied = %d, want 2", res.PagesCopied)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code != WarnPageMissing {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	if res.Warnings[0].Meta["slug"] != "about" {
		t.Fatalf("warning does not name the slug: %+v", res.Warnings[0])
	}
	if f.obs.warnings[string(WarnPageMissing)] != 1 {
		t.Fatalf("observer warnings = %v", f.obs.warnings)
	}
}

func TestPublish_SettingsCopyFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	f.createPages(t, "Home")
	f.b.failKey = store.SettingsKey(site.Published)
	svc := f.service(t, nil)

	res, err := svc.Publish(context.Background(), site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.SettingsCopied {
		t.Fatal("settings reported copied")
	}
	if res.PagesCopied != 1 {
		t.Fatalf("pages copied = %d, want 1", res.PagesCopied)
	}
	got := codes(res.Warnings)
	if len(got) != 1 || got[0] != WarnSettingsCopyFailed {
		t.Fatalf("warnings = %v", got)
	}
}

func TestPublish_EmptyIndexWarns(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	svc := f.service(t, nil)

	res, err := svc.Publish(context.Background(), site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got := codes(res.Warnings)
	if len(got) != 1 || got[0] != site.WarnIndexEmpty {
		t.Fatalf("warnings = %v", got)
	}
}

func TestPublish_PruneStale(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	f.createPages(t, "Home")
	ctx := context.Background()
	if err := f.ps.Put(ctx, site.Published, site.Page{ID: "pg_stalestale00", Slug: "old", Title: "Old"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	res, err := f.service(t, nil).Publish(ctx, site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.PagesPruned != 0 {
		t.Fatalf("pruned without PruneStale")
	}
	if ok, _ := f.ps.Exists(ctx, site.Published, "old"); !ok {
		t.Fatal("stale page removed without PruneStale")
	}

	res, err = f.service(t, func(o *Options) { o.PruneStale = true }).Publish(ctx, site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.PagesPruned != 1 {
		t.Fatalf("pruned = %d, want 1", res.PagesPruned)
	}
	if ok, _ := f.ps.Exists(ctx, site.Published, "old"); ok {
		t.Fatal("stale page survived prune")
	}
	if ok, _ := f.ps.Exists(ctx, site.Published, "home"); !ok {
		t.Fatal("indexed page pruned")
	}
}

func TestPublish_Releaser(t *testing.T) {
	f := newFixture(t)
	f.validSettings(t)
	f.createPages(t, "Home")
	ctx := context.Background()

	ok := &stubReleaser{}
	res, err := f.service(t, func(o *Options) { o.Releaser = ok }).Publish(ctx, site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.Release == nil || res.Release.SHA256 != "abc" {
		t.Fatalf("release = %+v", res.Release)
	}
	if ok.seen.PagesCopied != 1 || ok.seen.Settings == nil {
		t.Fatalf("releaser saw %+v", ok.seen)
	}

	bad := &stubReleaser{err: errors.New("kms unavailable")}
	res, err = f.service(t, func(o *Options) { o.Releaser = bad }).Publish(ctx, site.Draft, site.Published)
	if err != nil {
		t.Fatalf("Publish with failing releaser: %v", err)
	}
	got := codes(res.Warnings)
	if res.Release != nil || len(got) != 1 || got[0] != WarnReleaseFailed {
		t.Fatalf("release = %+v warnings = %v", res.Release, got)
	}
}

func TestCheckSettings(t *testing.T) {
	valid := func() *site.Settings {
		st := site.DefaultSettings()
		st.Identity.Title = "Acme"
		st.SEO.DefaultTitle = "Acme"
		return st
	}
	tests := []struct {
		name   string
		mutate func(*site.Settings)
		want   []string
	}{
		{"valid", func(*site.Settings) {}, nil},
		{"blank title", func(s *site.Settings) { s.Identity.Title = "  " }, []string{"identity.title"}},
		{"logo without src", func(s *site.Settings) { s.Identity.Logo = &site.Media{Alt: "logo"} }, []string{"identity.logo.src"}},
		{"logo with src", func(s *site.Settings) { s.Identity.Logo = &site.Media{Src: "/logo.svg"} }, nil},
		{"no default title", func(s *site.Settings) { s.SEO.DefaultTitle = "" }, []string{"seo.defaultTitle"}},
		{"base url required", func(s *site.Settings) { s.SEO.RequireBaseURL = true }, []string{"seo.baseUrl"}},
		{"base url http", func(s *site.Settings) { s.SEO.BaseURL = "http://acme.example" }, []string{"seo.baseUrl"}},
		{"base url relative", func(s *site.Settings) { s.SEO.BaseURL = "/acme" }, []string{"seo.baseUrl"}},
		{"base url https", func(s *site.Settings) {
			s.SEO.BaseURL = "https://acme.example"
			s.SEO.RequireBaseURL = true
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := valid()
			tt.mutate(st)
			got := CheckSettings(st)
			if len(got) != len(tt.want) {
				t.Fatalf("issues = %+v, want paths %v", got, tt.want)
			}
			for i, p := range tt.want {
				if got[i].Path != p {
					t.Fatalf("issue[%d].Path = %q, want %q", i, got[i].Path, p)
				}
			}
		})
	}
}
