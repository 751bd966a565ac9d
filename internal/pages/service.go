// Package pages implements the page lifecycle: create, update and delete a
// page while keeping the content state's index in sync with page records.
//
// None of the operations lock. Each is a short sequence of independent
// per-key writes; re-running an operation after a partial failure converges
// to the intended state, and Reconcile rebuilds the index from records.
package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ident"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/slug"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// maxSuffix bounds the collision search.
const maxSuffix = 1000

type Options struct {
	Pages    *store.PageStore
	Site     *store.SiteStore
	IDs      *ident.Generator
	Logger   log.Logger
	Recorder otelx.Recorder

	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	pages   *store.PageStore
	site    *store.SiteStore
	ids     *ident.Generator
	logger  log.Logger
	rec     otelx.Recorder
	now     func() time.Time
	ensured atomic.Bool
}

func New(opts Options) (*Service, error) {
	if opts.Pages == nil || opts.Site == nil {
		return nil, xerrors.New("pages: page and site stores are required")
	}
	if opts.IDs == nil {
		return nil, xerrors.New("pages: identifier generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = otelx.NopRecorder()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		pages:  opts.Pages,
		site:   opts.Site,
		ids:    opts.IDs,
		logger: opts.Logger.With("component", "pages"),
		rec:    opts.Recorder,
		now:    opts.Now,
	}, nil
}

// Result is returned by Create and Update.
type Result struct {
	Page  site.Page  `json:"page"`
	Index site.Index `json:"index"`

	// Changed lists the top-level page fields an update modified.
	Changed []string `json:"changed,omitempty"`
}

type CreateInput struct {
	Title string
	// Slug is derived from Title when empty.
	Slug     string
	State    site.State
	Position site.Position
}

// Patch carries the optional fields of an update; nil means "leave as is".
type Patch struct {
	Title   *string       `json:"title,omitempty"`
	Slug    *string       `json:"slug,omitempty"`
	Sitemap *SitemapPatch `json:"sitemap,omitempty"`
}

type SitemapPatch struct {
	Include    *bool    `json:"include,omitempty"`
	ChangeFreq *string  `json:"changefreq,omitempty"`
	Priority   *float64 `json:"priority,omitempty"`
}

func (s *Service) ensureBase(ctx context.Context) error {
	if s.ensured.Load() {
		return nil
	}
	if err := s.pages.EnsureBase(ctx); err != nil {
		return err
	}
	if err := s.site.EnsureBase(ctx); err != nil {
		return err
	}
	s.ensured.Store(true)
	return nil
}

func checkState(state site.State) (site.State, error) {
	return site.ParseState(string(state))
}

// Create adds a page under a free slug and appends it to the index.
func (s *Service) Create(ctx context.Context, in CreateInput) (res Result, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.create")
	defer func() { done(err) }()

	state, err := checkState(in.State)
	if err != nil {
		return Result{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Result{}, siteerr.New(siteerr.CodePageTitleRequired, "page title is required").WithPath("title")
	}

	raw := in.Slug
	if strings.TrimSpace(raw) == "" {
		raw = title
	}
	base, err := slug.AssertPage(raw)
	if err != nil {
		return Result{}, err
	}

	if err := s.ensureBase(ctx); err != nil {
		return Result{}, err
	}
	free, err := s.freeSlug(ctx, state, base)
	if err != nil {
		return Result{}, err
	}

	id, err := s.ids.New(ident.Page)
	if err != nil {
		return Result{}, err
	}
	now := s.now().UTC()
	page := site.Page{
		ID:     id,
		Slug:   free,
		Title:  title,
		Blocks: []json.RawMessage{},
		Meta:   site.PageMeta{CreatedAt: now, UpdatedAt: now},
	}
	if err := s.pages.Put(ctx, state, page); err != nil {
		return Result{}, err
	}

	idx, err := s.syncRef(ctx, state, page.Ref(), in.Position, now)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info(ctx, "page created", "state", state, "id", page.ID, "slug", page.Slug)
	return Result{Page: page, Index: idx}, nil
}

// freeSlug returns base, or base-2, base-3, ... whichever is unused first.
func (s *Service) freeSlug(ctx context.Context, state site.State, base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		taken, err := s.pages.Exists(ctx, state, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if n > maxSuffix {
			return "", siteerr.Newf(siteerr.CodeConflict, "no free slug derived from %q", base).
				WithPath("slug").
				WithMeta("slug", base)
		}
		candidate = withSuffix(base, n)
	}
}

func withSuffix(base string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if over := len(base) + len(suffix) - slug.MaxLen; over > 0 {
		base = strings.TrimRight(base[:len(base)-over], "-")
	}
	return base + suffix
}

// syncRef upserts ref into the state's index and persists it when changed.
func (s *Service) syncRef(ctx context.Context, state site.State, ref site.PageRef, pos site.Position, now time.Time) (site.Index, error) {
	idx, err := s.site.ReadIndex(ctx, state)
	if err != nil {
		return site.Index{}, err
	}
	next, changed := site.UpsertPageRef(idx, ref, pos)
	if !changed {
		return idx, nil
	}
	next.UpdatedAt = now
	if err := s.site.WriteIndex(ctx, state, next); err != nil {
		return site.Index{}, err
	}
	return next, nil
}

// Update applies patch to the page at currentSlug. A patch that changes
// nothing performs no page write and returns the stored page.
func (s *Service) Update(ctx context.Context, currentSlug string, patch Patch, state site.State) (res Result, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.update", attribute.String("page.slug", currentSlug))
	defer func() { done(err) }()

	state, err = checkState(state)
	if err != nil {
		return Result{}, err
	}
	cur := slug.Normalize(currentSlug)
	if cur == "" {
		return Result{}, siteerr.New(siteerr.CodePageCurrentSlugRequired, "current page slug is required").
			WithPath("currentSlug")
	}

	existing, found, err := s.pages.Read(ctx, state, cur)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, siteerr.Newf(siteerr.CodePageNotFound, "page %q not found", cur).
			WithPath("currentSlug").
			WithMeta("slug", cur)
	}

	next := existing.Clone()
	var changed []string

	if patch.Title != nil {
		if t := strings.TrimSpace(*patch.Title); t != "" && t != existing.Title {
			next.Title = t
			changed = append(changed, "title")
		}
	}

	if patch.Slug != nil && strings.TrimSpace(*patch.Slug) != "" {
		ns, err := slug.AssertPage(*patch.Slug)
		if err != nil {
			return Result{}, err
		}
		if ns != existing.Slug {
			other, taken, err := s.pages.Read(ctx, state, ns)
			if err != nil {
				return Result{}, err
			}
			if taken && other.ID != existing.ID {
				return Result{}, siteerr.Newf(siteerr.CodeConflict, "slug %q is already used by another page", ns).
					WithPath("slug").
					WithMeta("slug", ns).
					WithMeta("id", other.ID)
			}
			next.Slug = ns
			changed = append(changed, "slug")
		}
	}

	if patch.Sitemap != nil {
		merged := mergeSitemap(existing.Sitemap, *patch.Sitemap)
		if !merged.Equal(existing.Sitemap) {
			next.Sitemap = merged
			changed = append(changed, "sitemap")
		}
	}

	now := s.now().UTC()
	if len(changed) == 0 {
		idx, err := s.syncRef(ctx, state, existing.Ref(), site.Append, now)
		if err != nil {
			return Result{}, err
		}
		s.logger.Debug(ctx, "page update is a no-op", "state", state, "slug", existing.Slug)
		return Result{Page: existing, Index: idx}, nil
	}

	next.Meta.UpdatedAt = now
	if err := s.pages.Put(ctx, state, next); err != nil {
		return Result{}, err
	}
	if next.Slug != existing.Slug {
		if err := s.pages.Delete(ctx, state, existing.Slug); err != nil {
			return Result{}, err
		}
	}
	idx, err := s.syncRef(ctx, state, next.Ref(), site.Append, now)
	if err != nil {
		return Result{}, err
	}

	s.logger.Info(ctx, "page updated",
		"state", state,
		"id", next.ID,
		"slug", next.Slug,
		"previous_slug", existing.Slug,
		"changed", changed,
	)
	return Result{Page: next, Index: idx, Changed: changed}, nil
}

// mergeSitemap overlays the provided fields; include defaults to true.
func mergeSitemap(cur site.Sitemap, p SitemapPatch) site.Sitemap {
	out := cur.Clone()
	if p.Include != nil {
		v := *p.Include
		out.Include = &v
	}
	if p.ChangeFreq != nil {
		out.ChangeFreq = *p.ChangeFreq
	}
	if p.Priority != nil {
		v := *p.Priority
		out.Priority = &v
	}
	if out.Include == nil {
		v := true
		out.Include = &v
	}
	return out
}

// DeleteResult is returned by Delete.
type DeleteResult struct {
	Index site.Index `json:"index"`
	// Removed reports whether the index listed the page.
	Removed bool `json:"removed"`
}

// Delete removes the page record and its index entry. Deleting an absent
// page succeeds and changes nothing.
func (s *Service) Delete(ctx context.Context, rawSlug string, state site.State) (res DeleteResult, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.delete", attribute.String("page.slug", rawSlug))
	defer func() { done(err) }()

	state, err = checkState(state)
	if err != nil {
		return DeleteResult{}, err
	}
	sl, err := slug.AssertPage(rawSlug)
	if err != nil {
		return DeleteResult{}, err
	}

	if err := s.pages.Delete(ctx, state, sl); err != nil {
		return DeleteResult{}, err
	}

	idx, err := s.site.ReadIndex(ctx, state)
	if err != nil {
		return DeleteResult{}, err
	}
	next, removed := site.RemovePageBySlug(idx, sl)
	if !removed {
		s.logger.Debug(ctx, "page delete: not indexed", "state", state, "slug", sl)
		return DeleteResult{Index: idx}, nil
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.site.WriteIndex(ctx, state, next); err != nil {
		return DeleteResult{}, err
	}

	s.logger.Info(ctx, "page deleted", "state", state, "slug", sl)
	return DeleteResult{Index: next, Removed: true}, nil
}

// Get returns the page stored at rawSlug.
func (s *Service) Get(ctx context.Context, rawSlug string, state site.State) (p site.Page, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.get")
	defer func() { done(err) }()

	state, err = checkState(state)
	if err != nil {
		return site.Page{}, err
	}
	sl := slug.Normalize(rawSlug)
	if sl == "" {
		return site.Page{}, siteerr.New(siteerr.CodePageSlugRequired, "page slug is required").WithPath("slug")
	}
	p, found, err := s.pages.Read(ctx, state, sl)
	if err != nil {
		return site.Page{}, err
	}
	if !found {
		return site.Page{}, siteerr.Newf(siteerr.CodePageNotFound, "page %q not found", sl).
			WithPath("slug").
			WithMeta("slug", sl)
	}
	return p, nil
}

// Index returns the state's index.
func (s *Service) Index(ctx context.Context, state site.State) (site.Index, error) {
	state, err := checkState(state)
	if err != nil {
		return site.Index{}, err
	}
	return s.site.ReadIndex(ctx, state)
}

// Move repositions the page with id inside the index.
func (s *Service) Move(ctx context.Context, id string, pos site.Position, state site.State) (idx site.Index, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.move", attribute.String("page.id", id))
	defer func() { done(err) }()

	state, err = checkState(state)
	if err != nil {
		return site.Index{}, err
	}
	idx, err = s.site.ReadIndex(ctx, state)
	if err != nil {
		return site.Index{}, err
	}
	if idx.FindByID(id) < 0 {
		return site.Index{}, siteerr.Newf(siteerr.CodePageNotFound, "page %q is not indexed", id).
			WithPath("id").
			WithMeta("id", id)
	}
	next, moved := site.MovePageRef(idx, id, pos)
	if !moved {
		return idx, nil
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.site.WriteIndex(ctx, state, next); err != nil {
		return site.Index{}, err
	}
	s.logger.Info(ctx, "page moved", "state", state, "id", id, "position", pos.Kind, "anchor", pos.Anchor)
	return next, nil
}

// ReconcileResult reports what Reconcile changed.
type ReconcileResult struct {
	Index     site.Index `json:"index"`
	Added     int        `json:"added"`
	Removed   int        `json:"removed"`
	Refreshed int        `json:"refreshed"`
}

// Reconcile rebuilds the index from the stored page records: entries without
// a record are dropped, entries whose record moved or was retitled are
// refreshed in place, and records missing from the index are appended.
// Ordering of surviving entries is kept.
func (s *Service) Reconcile(ctx context.Context, state site.State) (res ReconcileResult, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "page.reconcile")
	defer func() { done(err) }()

	state, err = checkState(state)
	if err != nil {
		return ReconcileResult{}, err
	}
	records, err := s.pages.List(ctx, state)
	if err != nil {
		return ReconcileResult{}, err
	}
	idx, err := s.site.ReadIndex(ctx, state)
	if err != nil {
		return ReconcileResult{}, err
	}

	byID := make(map[string]site.PageRef, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	next := site.Index{Pages: make([]site.PageRef, 0, len(records)), UpdatedAt: idx.UpdatedAt}
	seen := make(map[string]bool, len(records))
	for _, ref := range idx.Pages {
		rec, ok := byID[ref.ID]
		if !ok || seen[ref.ID] {
			res.Removed++
			continue
		}
		seen[ref.ID] = true
		if rec != ref {
			res.Refreshed++
		}
		next.Pages = append(next.Pages, rec)
	}
	for _, r := range records {
		if !seen[r.ID] {
			seen[r.ID] = true
			next.Pages = append(next.Pages, r)
			res.Added++
		}
	}

	if res.Added+res.Removed+res.Refreshed == 0 {
		s.logger.Debug(ctx, "index already consistent", "state", state, "pages", len(next.Pages))
		return ReconcileResult{Index: idx}, nil
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.site.WriteIndex(ctx, state, next); err != nil {
		return ReconcileResult{}, err
	}
	res.Index = next
	s.logger.Info(ctx, "index reconciled",
		"state", state,
		"added", res.Added,
		"removed", res.Removed,
		"refreshed", res.Refreshed,
	)
	return res, nil
}
