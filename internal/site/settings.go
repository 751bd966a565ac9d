package site

import (
	"encoding/json"
	"fmt"
)

// Section names one sub-aggregate of Settings.
type Section string

const (
	SectionIdentity    Section = "identity"
	SectionHeader      Section = "header"
	SectionFooter      Section = "footer"
	SectionPrimaryMenu Section = "primaryMenu"
	SectionLegalMenu   Section = "legalMenu"
	SectionSocial      Section = "social"
	SectionSEO         Section = "seo"
	SectionTheme       Section = "theme"
	SectionAdmin       Section = "admin"
)

// Sections lists every sub-aggregate in storage order.
var Sections = []Section{
	SectionIdentity,
	SectionHeader,
	SectionFooter,
	SectionPrimaryMenu,
	SectionLegalMenu,
	SectionSocial,
	SectionSEO,
	SectionTheme,
	SectionAdmin,
}

// ParseSection maps a raw name to a known Section.
func ParseSection(raw string) (Section, bool) {
	for _, s := range Sections {
		if string(s) == raw {
			return s, true
		}
	}
	return "", false
}

// Settings is the per-state site settings aggregate.
//
// Sub-aggregates are plain values; a section only counts as stored once it
// has been marked present (by decoding or by MarkPresent). Encoding writes
// present sections only, so default-constructed values never leak into
// storage.
type Settings struct {
	Identity    Identity
	Header      Header
	Footer      Footer
	PrimaryMenu Menu
	LegalMenu   Menu
	Social      Social
	SEO         SEO
	Theme       Theme
	Admin       Admin

	present map[Section]bool
}

// Has reports whether sec is stored.
func (s *Settings) Has(sec Section) bool { return s.present[sec] }

// MarkPresent flags sec as stored.
func (s *Settings) MarkPresent(sec Section) {
	if s.present == nil {
		s.present = make(map[Section]bool, len(Sections))
	}
	s.present[sec] = true
}

// Present lists stored sections in storage order.
func (s *Settings) Present() []Section {
	out := make([]Section, 0, len(s.present))
	for _, sec := range Sections {
		if s.present[sec] {
			out = append(out, sec)
		}
	}
	return out
}

// Clone copies the aggregate. Sub-aggregates are treated as immutable values
// and are replaced wholesale by updates, so their nested slices are shared.
func (s *Settings) Clone() *Settings {
	cp := *s
	cp.present = make(map[Section]bool, len(s.present))
	for k, v := range s.present {
		cp.present[k] = v
	}
	return &cp
}

// WithDefaults returns a copy where every missing section is
// default-constructed. Defaults are not marked present.
func (s *Settings) WithDefaults() *Settings {
	cp := s.Clone()
	d := DefaultSettings()
	for _, sec := range Sections {
		if cp.present[sec] {
			continue
		}
		switch sec {
		case SectionIdentity:
			cp.Identity = d.Identity
		case SectionHeader:
			cp.Header = d.Header
		case SectionFooter:
			cp.Footer = d.Footer
		case SectionPrimaryMenu:
			cp.PrimaryMenu = d.PrimaryMenu
		case SectionLegalMenu:
			cp.LegalMenu = d.LegalMenu
		case SectionSocial:
			cp.Social = d.Social
		case SectionSEO:
			cp.SEO = d.SEO
		case SectionTheme:
			cp.Theme = d.Theme
		case SectionAdmin:
			cp.Admin = d.Admin
		}
	}
	return cp
}

// field returns a pointer to the value backing sec.
func (s *Settings) field(sec Section) any {
	switch sec {
	case SectionIdentity:
		return &s.Identity
	case SectionHeader:
		return &s.Header
	case SectionFooter:
		return &s.Footer
	case SectionPrimaryMenu:
		return &s.PrimaryMenu
	case SectionLegalMenu:
		return &s.LegalMenu
	case SectionSocial:
		return &s.Social
	case SectionSEO:
		return &s.SEO
	case SectionTheme:
		return &s.Theme
	case SectionAdmin:
		return &s.Admin
	}
	return nil
}

func (s *Settings) MarshalJSON() ([]byte, error) {
	out := make(map[Section]any, len(s.present))
	for _, sec := range s.Present() {
		out[sec] = s.field(sec)
	}
	return json.Marshal(out)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Settings{}
	for _, sec := range Sections {
		msg, ok := raw[string(sec)]
		if !ok || string(msg) == "null" {
			continue
		}
		if err := json.Unmarshal(msg, s.field(sec)); err != nil {
			return fmt.Errorf("decode settings section %s: %w", sec, err)
		}
		s.MarkPresent(sec)
	}
	return nil
}

// Identity carries the site's name and branding.
type Identity struct {
	Title   string `json:"title"`
	Tagline string `json:"tagline"`
	Logo    *Media `json:"logo"`
	Favicon string `json:"favicon"`
	Locale  string `json:"locale"`
}

type Media struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type Header struct {
	Layout     string `json:"layout"`
	Sticky     bool   `json:"sticky"`
	ShowSearch bool   `json:"showSearch"`
	CTA        *Link  `json:"cta"`
}

type Footer struct {
	Copyright  string         `json:"copyright"`
	ShowSocial bool           `json:"showSocial"`
	Columns    []FooterColumn `json:"columns"`
}

type FooterColumn struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Links []Link `json:"links"`
}

// Menu backs both the primary and the legal navigation.
type Menu struct {
	ID    string     `json:"id"`
	Items []MenuItem `json:"items"`
}

type MenuItem struct {
	ID       string     `json:"id"`
	Label    string     `json:"label"`
	Href     string     `json:"href,omitempty"`
	PageID   string     `json:"pageId,omitempty"`
	Children []MenuItem `json:"children,omitempty"`
}

type Social struct {
	Links []SocialLink `json:"links"`
}

type SocialLink struct {
	Platform string `json:"platform"`
	Href     string `json:"href"`
	Label    string `json:"label,omitempty"`
}

type SEO struct {
	DefaultTitle       string `json:"defaultTitle"`
	TitleTemplate      string `json:"titleTemplate"`
	DefaultDescription string `json:"defaultDescription"`
	BaseURL            string `json:"baseUrl"`
	RequireBaseURL     bool   `json:"requireBaseUrl"`
	OGImage            string `json:"ogImage"`
	Robots             Robots `json:"robots"`
}

type Robots struct {
	Index  bool `json:"index"`
	Follow bool `json:"follow"`
}

type Theme struct {
	Preset   string            `json:"preset"`
	Colors   map[string]string `json:"colors"`
	Fonts    Fonts             `json:"fonts"`
	Radius   string            `json:"radius"`
	DarkMode bool              `json:"darkMode"`
}

type Fonts struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type Admin struct {
	Locale     string `json:"locale"`
	Timezone   string `json:"timezone"`
	DateFormat string `json:"dateFormat"`
	Onboarded  bool   `json:"onboarded"`
}

// DefaultSettings returns the default-constructed value of every section.
// None are marked present.
func DefaultSettings() *Settings {
	return &Settings{
		Header: Header{Layout: "default"},
		SEO: SEO{
			TitleTemplate: "%s",
			Robots:        Robots{Index: true, Follow: true},
		},
		Theme: Theme{Preset: "default", Colors: map[string]string{}},
		Admin: Admin{Locale: "en", Timezone: "UTC", DateFormat: "2006-01-02"},
	}
}
