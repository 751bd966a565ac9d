// Package settings implements the settings aggregate lifecycle: seed-once
// initialization and shallow-merge updates, written once generically and
// bound to each sub-aggregate through a Section projection.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// Section projects one sub-aggregate of type T out of the settings aggregate.
type Section[T any] struct {
	Name site.Section
	Get  func(*site.Settings) T
	Set  func(*site.Settings, T)

	// Validate checks cross-field invariants of a merged value. Nil when the
	// section has none.
	Validate func(T) []siteerr.Issue
	// InvalidCode is raised when Validate reports issues.
	InvalidCode siteerr.Code
}

// Repo finds and saves one sub-aggregate per content state.
type Repo[T any] interface {
	// Find reports found=false when the sub-aggregate was never stored.
	Find(ctx context.Context, state site.State) (T, bool, error)
	Save(ctx context.Context, value T, state site.State) error
}

type sectionRepo[T any] struct {
	site *store.SiteStore
	sec  Section[T]
}

// NewRepo binds sec to the aggregate kept in ss.
func NewRepo[T any](ss *store.SiteStore, sec Section[T]) Repo[T] {
	return &sectionRepo[T]{site: ss, sec: sec}
}

func (r *sectionRepo[T]) Find(ctx context.Context, state site.State) (T, bool, error) {
	var zero T
	st, err := r.site.ReadSettings(ctx, state)
	if err != nil {
		return zero, false, err
	}
	if !st.Has(r.sec.Name) {
		return zero, false, nil
	}
	return r.sec.Get(st), true, nil
}

// Save replaces the sub-aggregate and leaves every other section untouched.
func (r *sectionRepo[T]) Save(ctx context.Context, value T, state site.State) error {
	st, err := r.site.ReadSettings(ctx, state)
	if err != nil {
		return err
	}
	r.sec.Set(st, value)
	st.MarkPresent(r.sec.Name)
	return r.site.WriteSettings(ctx, state, st)
}

// Ensure returns the stored value, persisting seed first when nothing is
// stored yet. A stored value is never replaced by a later seed.
func Ensure[T any](ctx context.Context, repo Repo[T], seed T, state site.State) (value T, seeded bool, err error) {
	cur, found, err := repo.Find(ctx, state)
	if err != nil {
		return value, false, err
	}
	if found {
		return cur, false, nil
	}
	if err := repo.Save(ctx, seed, state); err != nil {
		return value, false, err
	}
	return seed, true, nil
}

// Patch is a partial sub-aggregate keyed by top-level field name. Values
// replace the current field wholesale; nested objects are not merged.
type Patch map[string]json.RawMessage

// PatchFrom encodes plain values into a Patch.
func PatchFrom(m map[string]any) (Patch, error) {
	p := make(Patch, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, xerrors.Wrapf(err, "encode patch key %s", k)
		}
		p[k] = raw
	}
	return p, nil
}

// UpdateResult is returned by Update.
type UpdateResult[T any] struct {
	Value    T
	Settings *site.Settings
	// ChangedKeys lists the top-level fields whose value actually changed.
	ChangedKeys []string
	// Ignored lists patch keys the sub-aggregate does not have.
	Ignored []string
}

// Update shallow-merges patch onto the stored sub-aggregate (default
// constructed when absent). Nothing is written when no value changes.
// Merged values carrying invariants are validated before they are saved.
func Update[T any](ctx context.Context, ss *store.SiteStore, sec Section[T], patch Patch, state site.State) (UpdateResult[T], error) {
	var res UpdateResult[T]
	if err := ss.EnsureBase(ctx); err != nil {
		return res, err
	}
	stored, err := ss.ReadSettings(ctx, state)
	if err != nil {
		return res, err
	}
	current := sec.Get(stored.WithDefaults())

	next, changed, ignored, err := merge(sec.Name, current, patch)
	if err != nil {
		return res, err
	}
	res.Ignored = ignored
	if len(changed) == 0 {
		res.Value = current
		res.Settings = stored
		return res, nil
	}

	if sec.Validate != nil {
		if issues := sec.Validate(next); len(issues) > 0 {
			code := sec.InvalidCode
			if code == "" {
				code = siteerr.CodeValidation
			}
			return res, siteerr.Validation(code, "invalid "+string(sec.Name)+" settings", issues...).
				WithPath(string(sec.Name))
		}
	}

	sec.Set(stored, next)
	stored.MarkPresent(sec.Name)
	if err := ss.WriteSettings(ctx, state, stored); err != nil {
		return res, err
	}
	res.Value = next
	res.Settings = stored
	res.ChangedKeys = changed
	return res, nil
}

// merge replaces the top-level fields of current named in patch. Keys are
// compared on their canonical encoding, so equal values never count as
// changes.
func merge[T any](name site.Section, current T, patch Patch) (next T, changed, ignored []string, err error) {
	curRaw, err := json.Marshal(current)
	if err != nil {
		return next, nil, nil, xerrors.Wrapf(err, "encode %s settings", name)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(curRaw, &fields); err != nil {
		return next, nil, nil, xerrors.Wrapf(err, "decode %s settings fields", name)
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	var touched []string
	for _, k := range keys {
		if _, known := fields[k]; !known {
			ignored = append(ignored, k)
			continue
		}
		merged[k] = patch[k]
		touched = append(touched, k)
	}
	if len(touched) == 0 {
		return current, nil, ignored, nil
	}

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return next, nil, nil, invalidPatch(name, "", err)
	}
	if err := json.Unmarshal(mergedRaw, &next); err != nil {
		field := ""
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			field = te.Field
		}
		return next, nil, nil, invalidPatch(name, field, err)
	}

	// re-encode so both sides are canonical
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return next, nil, nil, xerrors.Wrapf(err, "encode merged %s settings", name)
	}
	var nextFields map[string]json.RawMessage
	if err := json.Unmarshal(nextRaw, &nextFields); err != nil {
		return next, nil, nil, xerrors.Wrapf(err, "decode merged %s settings fields", name)
	}
	for _, k := range touched {
		if !bytes.Equal(nextFields[k], fields[k]) {
			changed = append(changed, k)
		}
	}
	return next, changed, ignored, nil
}

func invalidPatch(name site.Section, field string, cause error) error {
	path := string(name)
	if field != "" {
		path += "." + field
	}
	return siteerr.Wrap(cause, siteerr.CodeSettingsPatchInvalid, "patch does not match the "+string(name)+" settings shape").
		WithPath(path)
}
