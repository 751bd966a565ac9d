// Package slug turns arbitrary strings into canonical URL path segments and
// enforces the format and reserved-word rules for them.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// MaxLen caps a normalized slug, in runes.
const MaxLen = 96

var pattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// reserved collide with admin routes or generated files.
var reserved = map[string]struct{}{
	"admin": {}, "api": {}, "assets": {}, "static": {}, "media": {}, "uploads": {},
	"login": {}, "logout": {}, "new": {}, "edit": {}, "preview": {},
	"draft": {}, "published": {}, "settings": {},
	"sitemap-xml": {}, "robots-txt": {}, "feed": {}, "rss": {}, "search": {},
	"404": {}, "500": {},
}

// letters NFD cannot decompose into base + mark.
var folds = strings.NewReplacer(
	"&", " and ",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"ł", "l",
	"đ", "d",
	"ð", "d",
	"þ", "th",
)

// IsReserved reports whether s is a reserved word.
func IsReserved(s string) bool {
	_, ok := reserved[s]
	return ok
}

// Normalize lowercases raw, strips diacritics, collapses every run of
// characters outside [a-z0-9] into a single hyphen and trims hyphens.
// Deterministic; may return "".
func Normalize(raw string) string {
	s, _ := normalize(raw)
	return s
}

func normalize(raw string) (out string, truncated bool) {
	s := folds.Replace(strings.ToLower(raw))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	out = b.String()
	if len(out) > MaxLen {
		out = strings.TrimRight(out[:MaxLen], "-")
		truncated = true
	}
	return out, truncated
}

// Codes selects the error codes Assert raises; callers map them to their
// own context.
type Codes struct {
	Required siteerr.Code
	Invalid  siteerr.Code
	Reserved siteerr.Code
}

var (
	DefaultCodes = Codes{
		Required: siteerr.CodeSlugRequired,
		Invalid:  siteerr.CodeSlugInvalid,
		Reserved: siteerr.CodeSlugReserved,
	}
	PageCodes = Codes{
		Required: siteerr.CodePageSlugRequired,
		Invalid:  siteerr.CodePageSlugInvalid,
		Reserved: siteerr.CodePageSlugReserved,
	}
)

// Assert normalizes raw and returns it when non-empty, well-formed and not
// reserved. Errors carry the normalized value and path.
func Assert(raw string, codes Codes, path string) (string, error) {
	s := Normalize(raw)
	fail := func(code siteerr.Code, msg string) error {
		return siteerr.New(code, msg).WithPath(path).WithMeta("slug", s).WithMeta("raw", raw)
	}
	switch {
	case s == "":
		return "", fail(codes.Required, "slug is empty after normalization")
	case !pattern.MatchString(s):
		return "", fail(codes.Invalid, "slug has an invalid format")
	case IsReserved(s):
		return "", fail(codes.Reserved, "slug is reserved")
	}
	return s, nil
}

// AssertPage is Assert with page error codes, reported at "slug".
func AssertPage(raw string) (string, error) {
	return Assert(raw, PageCodes, "slug")
}

const (
	WarnSlugNormalized siteerr.Code = "SLUG_NORMALIZED"
	WarnSlugTruncated  siteerr.Code = "SLUG_TRUNCATED"
)

// Warnings returns advisory notes for raw input that does not survive
// normalization unchanged. Never fails.
func Warnings(raw, path string) []siteerr.Warning {
	s, truncated := normalize(raw)
	var out []siteerr.Warning
	if s != raw {
		out = append(out, siteerr.Warning{
			Code: WarnSlugNormalized,
			Path: path,
			Meta: map[string]any{"raw": raw, "slug": s},
		})
	}
	if truncated {
		out = append(out, siteerr.Warning{
			Code: WarnSlugTruncated,
			Path: path,
			Meta: map[string]any{"max": MaxLen},
		})
	}
	return out
}
