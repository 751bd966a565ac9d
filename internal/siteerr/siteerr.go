// Package siteerr defines the typed domain errors raised by the site engine.
//
// Every use-case raises at most one *Error for the first rule it finds
// violated. The Code is stable and is what callers switch on; Path and Meta
// carry structured detail for the calling layer to render. Validation errors
// additionally carry a list of Issues.
package siteerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	// input / shape
	CodePageTitleRequired       Code = "PAGE_TITLE_REQUIRED"
	CodePageSlugRequired        Code = "PAGE_SLUG_REQUIRED"
	CodePageSlugInvalid         Code = "PAGE_SLUG_INVALID"
	CodePageSlugReserved        Code = "PAGE_SLUG_RESERVED"
	CodePageCurrentSlugRequired Code = "PAGE_CURRENT_SLUG_REQUIRED"
	CodeSlugRequired            Code = "SLUG_REQUIRED"
	CodeSlugInvalid             Code = "SLUG_INVALID"
	CodeSlugReserved            Code = "SLUG_RESERVED"
	CodeContentStateInvalid     Code = "CONTENT_STATE_INVALID"
	CodeSettingsPatchInvalid    Code = "SETTINGS_PATCH_INVALID"
	CodeSettingsSectionUnknown  Code = "SETTINGS_SECTION_UNKNOWN"
	CodePublishIdenticalStates  Code = "PUBLISH_IDENTICAL_STATES"
	CodeRequestInvalid          Code = "REQUEST_INVALID"

	// not found
	CodePageNotFound Code = "PAGE_NOT_FOUND"
	CodeNotFound     Code = "NOT_FOUND"

	// conflict
	CodeConflict Code = "CONFLICT"

	// cross-field / business invariants
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeSocialLinksInvalid     Code = "SOCIAL_LINKS_INVALID"
	CodePublishSettingsInvalid Code = "PUBLISH_SETTINGS_INVALID"

	// generic / technical
	CodeInternal Code = "INTERNAL"
)

// Kind groups codes into the categories callers map onto transport status.
type Kind string

const (
	KindInput      Kind = "input"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

var kinds = map[Code]Kind{
	CodePageTitleRequired:       KindInput,
	CodePageSlugRequired:        KindInput,
	CodePageSlugInvalid:         KindInput,
	CodePageSlugReserved:        KindInput,
	CodePageCurrentSlugRequired: KindInput,
	CodeSlugRequired:            KindInput,
	CodeSlugInvalid:             KindInput,
	CodeSlugReserved:            KindInput,
	CodeContentStateInvalid:     KindInput,
	CodeSettingsPatchInvalid:    KindInput,
	CodeSettingsSectionUnknown:  KindInput,
	CodePublishIdenticalStates:  KindInput,
	CodeRequestInvalid:          KindInput,
	CodePageNotFound:            KindNotFound,
	CodeNotFound:                KindNotFound,
	CodeConflict:                KindConflict,
	CodeValidation:              KindValidation,
	CodeSocialLinksInvalid:      KindValidation,
	CodePublishSettingsInvalid:  KindValidation,
	CodeInternal:                KindInternal,
}

// Kind returns the category for c; unknown codes are internal.
func (c Code) Kind() Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return KindInternal
}

// Issue is one violated rule inside a validation error.
type Issue struct {
	Code    Code   `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Warning is a non-fatal structured issue returned alongside a result.
type Warning struct {
	Code Code           `json:"code"`
	Path string         `json:"path,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Error is the domain error type.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Path    string         `json:"path,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Issues  []Issue        `json:"issues,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	if len(e.Issues) > 0 {
		fmt.Fprintf(&b, " [%d issue(s)]", len(e.Issues))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code so errors.Is(err, siteerr.New(code, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithPath sets the reporting path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMeta adds a structured detail field.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// New creates a domain error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error around a technical cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Validation creates a cross-field validation error carrying issues.
func Validation(code Code, msg string, issues ...Issue) *Error {
	return &Error{Code: code, Message: msg, Issues: issues}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "" when none.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsValidation reports whether err is a cross-field validation error.
func IsValidation(err error) bool {
	e, ok := As(err)
	return ok && e.Code.Kind() == KindValidation
}
