// Package store persists pages, the site index and site settings per
// content state on top of a pluggable key/value Backend.
//
// Every backend guarantees per-key write atomicity: readers observe either
// the previous or the new value of a key, never partial content. Reading an
// absent key yields ErrNotFound, deleting an absent key is a no-op and
// listing a missing collection returns no keys. Nothing here spans more than
// one key; multi-record consistency is the use-cases' job.
package store

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// ErrNotFound is returned by Backend.Get for an absent key.
var ErrNotFound = errors.New("store: record not found")

// Backend is a flat key/value store with slash separated keys.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Ensure prepares the storage root. Idempotent.
	Ensure(ctx context.Context) error

	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key; absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys stored directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
}

func checkKey(key string) error {
	if !pathutil.ValidKey(key) {
		return xerrors.Newf("store: invalid key %q", key)
	}
	return nil
}

// record layout

const recordExt = ".json"

func pagesDir(state site.State) string { return path.Join(string(state), "pages") }

func PageKey(state site.State, slug string) string {
	return path.Join(pagesDir(state), slug+recordExt)
}

func IndexKey(state site.State) string    { return path.Join(string(state), "site", "index.json") }
func SettingsKey(state site.State) string { return path.Join(string(state), "site", "settings.json") }
func ReleaseKey(state site.State) string  { return path.Join(string(state), "site", "release.json") }

// slugFromKey returns the slug of a page key, or "" for foreign keys.
func slugFromKey(key string) string {
	base := path.Base(key)
	if !strings.HasSuffix(base, recordExt) || strings.HasPrefix(base, ".") {
		return ""
	}
	return strings.TrimSuffix(base, recordExt)
}

// ErrorRecorder counts backend failures.
type ErrorRecorder interface {
	IncStoreError(backend, op string)
}

// Instrument wraps b so every failure other than ErrNotFound is counted.
func Instrument(b Backend, rec ErrorRecorder) Backend {
	if rec == nil {
		return b
	}
	return &instrumented{Backend: b, rec: rec}
}

type instrumented struct {
	Backend
	rec ErrorRecorder
}

func (i *instrumented) count(op string, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled) {
		i.rec.IncStoreError(i.Name(), op)
	}
}

func (i *instrumented) Ensure(ctx context.Context) error {
	err := i.Backend.Ensure(ctx)
	i.count("ensure", err)
	return err
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := i.Backend.Get(ctx, key)
	i.count("get", err)
	return b, err
}

func (i *instrumented) Put(ctx context.Context, key string, data []byte) error {
	err := i.Backend.Put(ctx, key, data)
	i.count("put", err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	err := i.Backend.Delete(ctx, key)
	i.count("delete", err)
	return err
}

func (i *instrumented) List(ctx context.Context, dir string) ([]string, error) {
	keys, err := i.Backend.List(ctx, dir)
	i.count("list", err)
	return keys, err
}
