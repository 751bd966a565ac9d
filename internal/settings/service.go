package settings

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ident"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// binding erases the type parameter of a Section so sections can be
// dispatched by name.
type binding interface {
	name() site.Section
	ensure(ctx context.Context, ss *store.SiteStore, seeds *site.Settings, state site.State) (bool, error)
	update(ctx context.Context, ss *store.SiteStore, patch Patch, state site.State) (SectionResult, error)
}

type typed[T any] struct{ sec Section[T] }

func (b typed[T]) name() site.Section { return b.sec.Name }

func (b typed[T]) ensure(ctx context.Context, ss *store.SiteStore, seeds *site.Settings, state site.State) (bool, error) {
	_, seeded, err := Ensure(ctx, NewRepo(ss, b.sec), b.sec.Get(seeds), state)
	return seeded, err
}

func (b typed[T]) update(ctx context.Context, ss *store.SiteStore, patch Patch, state site.State) (SectionResult, error) {
	res, err := Update(ctx, ss, b.sec, patch, state)
	if err != nil {
		return SectionResult{}, err
	}
	return SectionResult{
		Section:     b.sec.Name,
		Value:       res.Value,
		ChangedKeys: res.ChangedKeys,
		Ignored:     res.Ignored,
		Settings:    res.Settings,
	}, nil
}

var bindings = []binding{
	typed[site.Identity]{IdentitySection},
	typed[site.Header]{HeaderSection},
	typed[site.Footer]{FooterSection},
	typed[site.Menu]{PrimaryMenuSection},
	typed[site.Menu]{LegalMenuSection},
	typed[site.Social]{SocialSection},
	typed[site.SEO]{SEOSection},
	typed[site.Theme]{ThemeSection},
	typed[site.Admin]{AdminSection},
}

func lookup(sec site.Section) (binding, bool) {
	for _, b := range bindings {
		if b.name() == sec {
			return b, true
		}
	}
	return nil, false
}

// SectionResult is the type-erased form of UpdateResult.
type SectionResult struct {
	Section     site.Section   `json:"section"`
	Value       any            `json:"value"`
	ChangedKeys []string       `json:"changedKeys"`
	Ignored     []string       `json:"ignored,omitempty"`
	Settings    *site.Settings `json:"settings"`
}

type Options struct {
	Site     *store.SiteStore
	IDs      *ident.Generator
	Logger   log.Logger
	Recorder otelx.Recorder
}

type Service struct {
	site   *store.SiteStore
	ids    *ident.Generator
	logger log.Logger
	rec    otelx.Recorder
}

func New(opts Options) (*Service, error) {
	if opts.Site == nil {
		return nil, xerrors.New("settings: site store is required")
	}
	if opts.IDs == nil {
		return nil, xerrors.New("settings: identifier generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Recorder == nil {
		opts.Recorder = otelx.NopRecorder()
	}
	return &Service{
		site:   opts.Site,
		ids:    opts.IDs,
		logger: opts.Logger.With("component", "settings"),
		rec:    opts.Recorder,
	}, nil
}

// Read returns the stored aggregate with every missing section
// default-constructed.
func (s *Service) Read(ctx context.Context, state site.State) (st *site.Settings, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "settings.read")
	defer func() { done(err) }()

	state, err = site.ParseState(string(state))
	if err != nil {
		return nil, err
	}
	stored, err := s.site.ReadSettings(ctx, state)
	if err != nil {
		return nil, err
	}
	return stored.WithDefaults(), nil
}

// EnsureAll seeds every section that is not stored yet and returns the
// names of the sections it wrote.
func (s *Service) EnsureAll(ctx context.Context, state site.State) (seeded []site.Section, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "settings.ensure")
	defer func() { done(err) }()

	state, err = site.ParseState(string(state))
	if err != nil {
		return nil, err
	}
	if err := s.site.EnsureBase(ctx); err != nil {
		return nil, err
	}
	seeds, err := DefaultSeeds(s.ids)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		ok, err := b.ensure(ctx, s.site, seeds, state)
		if err != nil {
			return seeded, xerrors.Wrapf(err, "ensure %s settings", b.name())
		}
		if ok {
			seeded = append(seeded, b.name())
		}
	}
	if len(seeded) > 0 {
		s.logger.Info(ctx, "settings seeded", "state", state, "sections", seeded)
	}
	return seeded, nil
}

// UpdateSection applies patch to the section called name.
func (s *Service) UpdateSection(ctx context.Context, name string, patch Patch, state site.State) (res SectionResult, err error) {
	ctx, done := otelx.Track(ctx, s.rec, "settings.update", attribute.String("settings.section", name))
	defer func() { done(err) }()

	state, err = site.ParseState(string(state))
	if err != nil {
		return SectionResult{}, err
	}
	sec, ok := site.ParseSection(name)
	if !ok {
		return SectionResult{}, siteerr.Newf(siteerr.CodeSettingsSectionUnknown, "unknown settings section %q", name).
			WithPath("section").
			WithMeta("section", name)
	}
	b, _ := lookup(sec)
	res, err = b.update(ctx, s.site, patch, state)
	if err != nil {
		return SectionResult{}, err
	}
	if len(res.ChangedKeys) == 0 {
		s.logger.Debug(ctx, "settings update is a no-op", "state", state, "section", sec, "ignored", res.Ignored)
		return res, nil
	}
	s.logger.Info(ctx, "settings updated", "state", state, "section", sec, "changed", res.ChangedKeys)
	return res, nil
}

// DefaultSeeds builds the first-run value of every section. Menus get
// fresh identifiers.
func DefaultSeeds(ids *ident.Generator) (*site.Settings, error) {
	primary, err := ids.New(ident.Menu)
	if err != nil {
		return nil, err
	}
	legal, err := ids.New(ident.Menu)
	if err != nil {
		return nil, err
	}
	st := site.DefaultSettings()
	st.Identity = site.Identity{Title: "My Site", Locale: "en"}
	st.Header.Sticky = true
	st.Footer = site.Footer{ShowSocial: true, Columns: []site.FooterColumn{}}
	st.PrimaryMenu = site.Menu{ID: primary, Items: []site.MenuItem{}}
	st.LegalMenu = site.Menu{ID: legal, Items: []site.MenuItem{}}
	st.Social = site.Social{Links: []site.SocialLink{}}
	st.SEO.DefaultTitle = "My Site"
	st.SEO.TitleTemplate = "%s | My Site"
	return st, nil
}
