// Package adminhttp exposes the site engine as a JSON API under /api.
//
// Every operation takes an optional ?state= query parameter (draft when
// omitted). Domain errors come back as their JSON form with a status picked
// by StatusFor.
package adminhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/pages"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/publish"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/release"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/settings"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

type Options struct {
	Pages    *pages.Service
	Settings *settings.Service
	Publish  *publish.Service
	// Release is optional; without it /api/release answers 404.
	Release *release.Publisher
	Logger  log.Logger
}

type API struct {
	pages    *pages.Service
	settings *settings.Service
	publish  *publish.Service
	release  *release.Publisher
	logger   log.Logger
}

func New(opts Options) (*API, error) {
	if opts.Pages == nil || opts.Settings == nil || opts.Publish == nil {
		return nil, xerrors.New("adminhttp: pages, settings and publish services are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &API{
		pages:    opts.Pages,
		settings: opts.Settings,
		publish:  opts.Publish,
		release:  opts.Release,
		logger:   opts.Logger.With("component", "adminhttp"),
	}, nil
}

// RegisterRoutes mounts the API on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/pages", func(r chi.Router) {
			r.With(httpmw.Scope("pages.create")).Post("/", a.createPage)
			r.With(httpmw.Scope("pages.get")).Get("/{slug}", a.getPage)
			r.With(httpmw.Scope("pages.update")).Patch("/{slug}", a.updatePage)
			r.With(httpmw.Scope("pages.delete")).Delete("/{slug}", a.deletePage)
		})
		r.Route("/index", func(r chi.Router) {
			r.With(httpmw.Scope("index.get")).Get("/", a.getIndex)
			r.With(httpmw.Scope("index.move")).Post("/move", a.movePage)
			r.With(httpmw.Scope("index.reconcile")).Post("/reconcile", a.reconcile)
		})
		r.Route("/settings", func(r chi.Router) {
			r.With(httpmw.Scope("settings.get")).Get("/", a.getSettings)
			r.With(httpmw.Scope("settings.ensure")).Post("/ensure", a.ensureSettings)
			r.With(httpmw.Scope("settings.update")).Patch("/{section}", a.updateSection)
		})
		r.With(httpmw.Scope("publish")).Post("/publish", a.runPublish)
		r.With(httpmw.Scope("release.current")).Get("/release", a.currentRelease)
	})
}

func stateParam(r *http.Request) site.State {
	return site.State(r.URL.Query().Get("state"))
}

type positionBody struct {
	Kind   string `json:"kind"`
	Anchor string `json:"anchor"`
}

func (p *positionBody) position() (site.Position, error) {
	if p == nil {
		return site.Append, nil
	}
	kind, err := site.ParsePlaceKind(p.Kind)
	if err != nil {
		return site.Position{}, siteerr.Wrap(err, siteerr.CodeRequestInvalid, err.Error()).WithPath("position.kind")
	}
	return site.Position{Kind: kind, Anchor: p.Anchor}, nil
}

type createBody struct {
	Title    string        `json:"title"`
	Slug     string        `json:"slug"`
	Position *positionBody `json:"position"`
}

func (a *API) createPage(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := decode(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	pos, err := body.Position.position()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.pages.Create(r.Context(), pages.CreateInput{
		Title:    body.Title,
		Slug:     body.Slug,
		State:    stateParam(r),
		Position: pos,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/pages/"+res.Page.Slug+"?state="+string(stateParam(r).OrDraft()))
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) getPage(w http.ResponseWriter, r *http.Request) {
	p, err := a.pages.Get(r.Context(), chi.URLParam(r, "slug"), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updatePage(w http.ResponseWriter, r *http.Request) {
	var patch pages.Patch
	if err := decode(r, &patch, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.pages.Update(r.Context(), chi.URLParam(r, "slug"), patch, stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) deletePage(w http.ResponseWriter, r *http.Request) {
	res, err := a.pages.Delete(r.Context(), chi.URLParam(r, "slug"), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := a.pages.Index(r.Context(), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

type moveBody struct {
	ID       string        `json:"id"`
	Position *positionBody `json:"position"`
}

func (a *API) movePage(w http.ResponseWriter, r *http.Request) {
	var body moveBody
	if err := decode(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ID == "" {
		writeError(w, r, siteerr.New(siteerr.CodeRequestInvalid, "id is required").WithPath("id"))
		return
	}
	pos, err := body.Position.position()
	if err != nil {
		writeError(w, r, err)
		return
	}
	idx, err := a.pages.Move(r.Context(), body.ID, pos, stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (a *API) reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := a.pages.Reconcile(r.Context(), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.settings.Read(r.Context(), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) ensureSettings(w http.ResponseWriter, r *http.Request) {
	seeded, err := a.settings.EnsureAll(r.Context(), stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if seeded == nil {
		seeded = []site.Section{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeded": seeded})
}

func (a *API) updateSection(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decode(r, &patch, false); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.settings.UpdateSection(r.Context(), chi.URLParam(r, "section"), patch, stateParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type publishBody struct {
	From site.State `json:"from"`
	To   site.State `json:"to"`
}

func (a *API) runPublish(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	// an empty body publishes draft to published
	if err := decodeOptional(r, &body, true); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := a.publish.Publish(r.Context(), body.From, body.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) currentRelease(w http.ResponseWriter, r *http.Request) {
	if a.release == nil {
		writeError(w, r, siteerr.New(siteerr.CodeNotFound, "release recording is not configured"))
		return
	}
	state := stateParam(r)
	if state == "" {
		state = site.Published
	}
	cur, err := a.release.Current(r.Context(), state)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cur)
}
