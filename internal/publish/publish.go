// Package publish copies one content state into another.
//
// Settings invariants are a hard gate: a failing check aborts the publish
// with a validation error before anything is written to the target.
// Everything else (a technical settings write failure, a missing or
// unwritable page, pruning, the release hook) is soft: it is recorded as a
// warning and the publish carries on.
package publish

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

const (
	WarnSettingsCopyFailed siteerr.Code = "SETTINGS_COPY_FAILED"
	WarnPageMissing        siteerr.Code = "PAGE_MISSING"
	WarnPageCopyFailed     siteerr.Code = "PAGE_COPY_FAILED"
	WarnPagePruneFailed    siteerr.Code = "PAGE_PRUNE_FAILED"
	WarnReleaseFailed      siteerr.Code = "RELEASE_FAILED"
)

// Releaser runs after the content has been copied.
type Releaser interface {
	Release(ctx context.Context, res Result) (ReleaseInfo, error)
}

// ReleaseInfo describes the release record written for a publish.
type ReleaseInfo struct {
	Key    string `json:"key"`
	SHA256 string `json:"sha256"`
	Signed bool   `json:"signed"`
}

// Observer receives publish outcomes; *metrics.ServerMetrics satisfies it.
type Observer interface {
	IncPublishWarning(code string)
	SetPublishSuccess(pagesCopied int, at time.Time)
}

type nopObserver struct{}

func (nopObserver) IncPublishWarning(string) {}
func (nopObserver) SetPublishSuccess(int, time.Time) {}

type Options struct {
	Pages    *store.PageStore
	Site     *store.SiteStore
	Logger   log.Logger
	Recorder otelx.Recorder
	Observer Observer

	// Releaser is optional.
	Releaser Releaser
	// PruneStale deletes target page records the source index no longer
	// lists.
	PruneStale bool

	Now func() time.Time
}

type Service struct {
	pages    *store.PageStore
	site     *store.SiteStore
	logger   log.Logger
	rec      otelx.Recorder
	obs      Observer
	releaser Releaser
	prune    bool
	now      func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Pages == nil || opts.Site == nil {
		return nil, xerrors.New("publish: page and site stores are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = otelx.NopRecorder()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		pages:    opts.Pages,
		site:     opts.Site,
		logger:   opts.Logger.With("component", "publish"),
		rec:      opts.Recorder,
		obs:      opts.Observer,
		releaser: opts.Releaser,
		prune:    opts.PruneStale,
		now:      opts.Now,
	}, nil
}

type Result struct {
	From           site.State        `json:"from"`
	To             site.State        `json:"to"`
	PagesCopied    int               `json:"pagesCopied"`
	SettingsCopied bool              `json:"settingsCopied"`
	PagesPruned    int               `json:"pagesPruned,omitempty"`
	Warnings       []siteerr.Warning `json:"warnings"`
	Release        *ReleaseInfo      `json:"release,omitempty"`
	PublishedAt    time.Time         `json:"publishedAt"`

	// Index is the index written to To.
	Index site.Index `json:"-"`
	// Settings is the aggregate written to To.
	Settings *site.Settings `json:"-"`
}

func (r *Result) warn(w siteerr.Warning) { r.Warnings = append(r.Warnings, w) }

// Publish copies from into to. Empty states select draft and published.
func (s *Service) Publish(ctx context.Context, from, to site.State) (res Result, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "publish",
		attribute.String("publish.from", string(from)),
		attribute.String("publish.to", string(to)))
	defer func() { done(err) }()

	if from, err = site.ParseState(string(from)); err != nil {
		return Result{}, err
	}
	if to == "" {
		to = site.Published
	}
	if to, err = site.ParseState(string(to)); err != nil {
		return Result{}, err
	}
	if from == to {
		return Result{}, siteerr.Newf(siteerr.CodePublishIdenticalStates, "cannot publish %s onto itself", from).
			WithMeta("from", from).
			WithMeta("to", to)
	}

	if err := s.pages.EnsureBase(ctx); err != nil {
		return Result{}, err
	}
	if err := s.site.EnsureBase(ctx); err != nil {
		return Result{}, err
	}

	now := s.now().UTC()
	res = Result{From: from, To: to, Warnings: []siteerr.Warning{}, PublishedAt: now}

	idx, err := s.site.ReadIndex(ctx, from)
	if err != nil {
		return Result{}, err
	}
	for _, w := range site.InspectIndex(idx) {
		res.warn(w)
	}

	// the settings gate runs before anything lands in to
	stored, err := s.site.ReadSettings(ctx, from)
	if err != nil {
		return Result{}, err
	}
	if issues := CheckSettings(stored.WithDefaults()); len(issues) > 0 {
		s.logger.Info(ctx, "publish blocked by settings", "from", from, "to", to, "issues", len(issues))
		return Result{}, siteerr.Validation(siteerr.CodePublishSettingsInvalid,
			"settings are not publishable", issues...)
	}

	idx.UpdatedAt = now
	if err := s.site.WriteIndex(ctx, to, idx); err != nil {
		return Result{}, xerrors.Wrapf(err, "write %s index", to)
	}
	res.Index = idx

	if err := s.site.WriteSettings(ctx, to, stored); err != nil {
		res.warn(siteerr.Warning{
			Code: WarnSettingsCopyFailed,
			Path: "settings",
			Meta: map[string]any{"error": err.Error()},
		})
	} else {
		res.SettingsCopied = true
		res.Settings = stored
	}

	s.copyPages(ctx, &res, idx)
	if s.prune {
		s.pruneStale(ctx, &res, idx)
	}

	if s.releaser != nil {
		info, err := s.releaser.Release(ctx, res)
		if err != nil {
			res.warn(siteerr.Warning{
				Code: WarnReleaseFailed,
				Path: "release",
				Meta: map[string]any{"error": err.Error()},
			})
		} else {
			res.Release = &info
		}
	}

	for _, w := range res.Warnings {
		s.obs.IncPublishWarning(string(w.Code))
		s.logger.Warn(ctx, "publish warning", "code", w.Code, "path", w.Path, "meta", w.Meta)
	}
	s.obs.SetPublishSuccess(res.PagesCopied, now)
	s.logger.Info(ctx, "published",
		"from", from,
		"to", to,
		"pages_copied", res.PagesCopied,
		"pages_total", len(idx.Pages),
		"settings_copied", res.SettingsCopied,
		"pages_pruned", res.PagesPruned,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (s *Service) copyPages(ctx context.Context, res *Result, idx site.Index) {
	for _, ref := range idx.Pages {
		meta := map[string]any{"slug": ref.Slug, "id": ref.ID}
		if ref.Slug == "" {
			res.warn(siteerr.Warning{Code: WarnPageMissing, Path: "pages", Meta: meta})
			continue
		}
		p, found, err := s.pages.Read(ctx, res.From, ref.Slug)
		if err != nil {
			meta["error"] = err.Error()
			res.warn(siteerr.Warning{Code: WarnPageCopyFailed, Path: "pages." + ref.Slug, Meta: meta})
			continue
		}
		if !found {
			res.warn(siteerr.Warning{Code: WarnPageMissing, Path: "pages." + ref.Slug, Meta: meta})
			continue
		}
		if err := s.pages.Put(ctx, res.To, p); err != nil {
			meta["error"] = err.Error()
			res.warn(siteerr.Warning{Code: WarnPageCopyFailed, Path: "pages." + ref.Slug, Meta: meta})
			continue
		}
		res.PagesCopied++
	}
}

func (s *Service) pruneStale(ctx context.Context, res *Result, idx site.Index) {
	keep := make(map[string]bool, len(idx.Pages))
	for _, ref := range idx.Pages {
		keep[ref.Slug] = true
	}
	existing, err := s.pages.List(ctx, res.To)
	if err != nil {
		res.warn(siteerr.Warning{
			Code: WarnPagePruneFailed,
			Path: "pages",
			Meta: map[string]any{"error": err.Error()},
		})
		return
	}
	for _, ref := range existing {
		if keep[ref.Slug] {
			continue
		}
		if err := s.pages.Delete(ctx, res.To, ref.Slug); err != nil {
			res.warn(siteerr.Warning{
				Code: WarnPagePruneFailed,
				Path: "pages." + ref.Slug,
				Meta: map[string]any{"slug": ref.Slug, "error": err.Error()},
			})
			continue
		}
		res.PagesPruned++
	}
}
