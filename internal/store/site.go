package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// SiteStore holds the per-state index and settings aggregate.
type SiteStore struct {
	b Backend
}

func NewSiteStore(b Backend) *SiteStore {
	return &SiteStore{b: b}
}

func (s *SiteStore) EnsureBase(ctx context.Context) error {
	return s.b.Ensure(ctx)
}

// ReadIndex returns the stored index, or an empty one when none exists.
func (s *SiteStore) ReadIndex(ctx context.Context, state site.State) (site.Index, error) {
	raw, err := s.b.Get(ctx, IndexKey(state))
	if errors.Is(err, ErrNotFound) {
		return site.Index{Pages: []site.PageRef{}}, nil
	}
	if err != nil {
		return site.Index{}, err
	}
	var idx site.Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return site.Index{}, xerrors.Wrapf(err, "decode index %s", state)
	}
	if idx.Pages == nil {
		idx.Pages = []site.PageRef{}
	}
	return idx, nil
}

func (s *SiteStore) WriteIndex(ctx context.Context, state site.State, idx site.Index) error {
	if idx.Pages == nil {
		idx.Pages = []site.PageRef{}
	}
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return xerrors.Wrapf(err, "encode index %s", state)
	}
	return s.b.Put(ctx, IndexKey(state), raw)
}

// ReadSettings returns the stored aggregate with only the stored sections
// marked present. Call WithDefaults on the result to default-construct the
// rest.
func (s *SiteStore) ReadSettings(ctx context.Context, state site.State) (*site.Settings, error) {
	raw, err := s.b.Get(ctx, SettingsKey(state))
	if errors.Is(err, ErrNotFound) {
		return &site.Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st site.Settings
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, xerrors.Wrapf(err, "decode settings %s", state)
	}
	return &st, nil
}

func (s *SiteStore) WriteSettings(ctx context.Context, state site.State, st *site.Settings) error {
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return xerrors.Wrapf(err, "encode settings %s", state)
	}
	return s.b.Put(ctx, SettingsKey(state), raw)
}

// ReadRaw and WriteRaw move opaque records such as release manifests.
func (s *SiteStore) ReadRaw(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *SiteStore) WriteRaw(ctx context.Context, key string, raw []byte) error {
	return s.b.Put(ctx, key, raw)
}
