package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// PageStore is per-state CRUD over page records, one record per slug.
type PageStore struct {
	b      Backend
	logger log.Logger
}

func NewPageStore(b Backend, logger log.Logger) *PageStore {
	if logger == nil {
		logger = log.Nop()
	}
	return &PageStore{b: b, logger: logger}
}

func (s *PageStore) EnsureBase(ctx context.Context) error {
	return s.b.Ensure(ctx)
}

// Read returns the page at slug. found is false when no record exists.
func (s *PageStore) Read(ctx context.Context, state site.State, slug string) (site.Page, bool, error) {
	raw, err := s.b.Get(ctx, PageKey(state, slug))
	if errors.Is(err, ErrNotFound) {
		return site.Page{}, false, nil
	}
	if err != nil {
		return site.Page{}, false, err
	}
	var p site.Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return site.Page{}, false, xerrors.Wrapf(err, "decode page %s/%s", state, slug)
	}
	return p, true, nil
}

// Put writes p under its own slug.
func (s *PageStore) Put(ctx context.Context, state site.State, p site.Page) error {
	if p.Slug == "" {
		return xerrors.New("page slug is empty")
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return xerrors.Wrapf(err, "encode page %s/%s", state, p.Slug)
	}
	return s.b.Put(ctx, PageKey(state, p.Slug), raw)
}

// Delete removes the record at slug; absent records are not an error.
func (s *PageStore) Delete(ctx context.Context, state site.State, slug string) error {
	return s.b.Delete(ctx, PageKey(state, slug))
}

func (s *PageStore) Exists(ctx context.Context, state site.State, slug string) (bool, error) {
	_, err := s.b.Get(ctx, PageKey(state, slug))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns a ref for every readable record in state, in key order.
// Malformed records are logged and skipped.
func (s *PageStore) List(ctx context.Context, state site.State) ([]site.PageRef, error) {
	keys, err := s.b.List(ctx, pagesDir(state))
	if err != nil {
		return nil, err
	}
	refs := make([]site.PageRef, 0, len(keys))
	for _, key := range keys {
		slug := slugFromKey(key)
		if slug == "" {
			continue
		}
		raw, err := s.b.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// deleted between List and Get
			continue
		}
		if err != nil {
			return nil, err
		}
		var p site.Page
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn(ctx, "skipping malformed page record", "key", key, "backend", s.b.Name(), "err", err)
			continue
		}
		if p.ID == "" || p.Slug != slug {
			s.logger.Warn(ctx, "skipping inconsistent page record",
				"key", key,
				"backend", s.b.Name(),
				"id", p.ID,
				"slug", p.Slug,
			)
			continue
		}
		refs = append(refs, p.Ref())
	}
	return refs, nil
}
