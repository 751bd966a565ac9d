package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// FSBackend stores each key as a file below Root. Writes go to a temp file
// in the target directory and are renamed into place.
type FSBackend struct {
	Root string
}

func NewFSBackend(root string) *FSBackend {
	return &FSBackend{Root: root}
}

func (f *FSBackend) Name() string { return "fs" }

func (f *FSBackend) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.Root, filepath.FromSlash(key)), nil
}

func (f *FSBackend) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.Root, 0o755); err != nil {
		return xerrors.Wrapf(err, "create store root %s", f.Root)
	}
	return nil
}

func (f *FSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", key)
	}
	return b, nil
}

func (f *FSBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrapf(err, "create dir for %s", key)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp file for %s", key)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return xerrors.Wrapf(err, "write %s", key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return xerrors.Wrapf(err, "sync %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return xerrors.Wrapf(err, "close %s", key)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return xerrors.Wrapf(err, "rename into %s", key)
	}
	return nil
}

func (f *FSBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (f *FSBackend) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "list %s", dir)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		// in-flight temp files start with a dot
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, path.Join(dir, e.Name()))
	}
	sort.Strings(keys)
	return keys, nil
}
