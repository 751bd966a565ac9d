package site

import (
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// State selects one of the two isolated content universes.
type State string

const (
	Draft     State = "draft"
	Published State = "published"
)

// States lists every content state in a stable order.
var States = []State{Draft, Published}

func (s State) Valid() bool { return s == Draft || s == Published }

func (s State) String() string { return string(s) }

// ParseState maps raw input to a State. Empty input selects Draft.
func ParseState(raw string) (State, error) {
	v := State(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return Draft, nil
	}
	if !v.Valid() {
		return "", siteerr.Newf(siteerr.CodeContentStateInvalid, "unknown content state %q", raw).
			WithPath("state").
			WithMeta("state", raw)
	}
	return v, nil
}

// OrDraft returns s, or Draft when s is empty.
func (s State) OrDraft() State {
	if s == "" {
		return Draft
	}
	return s
}
