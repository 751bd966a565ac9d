package site

import (
	"encoding/json"
	"time"
)

// Page is one stored page document. There is exactly one record per
// (state, slug).
type Page struct {
	ID      string            `json:"id"`
	Slug    string            `json:"slug"`
	Title   string            `json:"title"`
	Blocks  []json.RawMessage `json:"blocks"`
	Sitemap Sitemap           `json:"sitemap"`
	Meta    PageMeta          `json:"meta"`
}

type PageMeta struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sitemap controls how the page is listed in the generated sitemap.
// Include is a pointer so "never set" can be told apart from false.
type Sitemap struct {
	Include    *bool    `json:"include,omitempty"`
	ChangeFreq string   `json:"changefreq,omitempty"`
	Priority   *float64 `json:"priority,omitempty"`
}

// IncludeOrDefault reports the effective include flag (true when never set).
func (s Sitemap) IncludeOrDefault() bool {
	if s.Include == nil {
		return true
	}
	return *s.Include
}

// Equal compares effective values, so an unset Include equals true.
func (s Sitemap) Equal(o Sitemap) bool {
	return s.IncludeOrDefault() == o.IncludeOrDefault() &&
		s.ChangeFreq == o.ChangeFreq &&
		floatPtrEqual(s.Priority, o.Priority)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// PageRef is the projection of a Page stored inside the Index.
type PageRef struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Ref projects p into its index entry.
func (p Page) Ref() PageRef {
	return PageRef{ID: p.ID, Slug: p.Slug, Title: p.Title}
}

// Clone returns a copy that shares no mutable state with p.
func (p Page) Clone() Page {
	cp := p
	if p.Blocks != nil {
		cp.Blocks = make([]json.RawMessage, len(p.Blocks))
		for i, b := range p.Blocks {
			cp.Blocks[i] = append(json.RawMessage(nil), b...)
		}
	}
	cp.Sitemap = p.Sitemap.Clone()
	return cp
}

func (s Sitemap) Clone() Sitemap {
	cp := s
	if s.Include != nil {
		v := *s.Include
		cp.Include = &v
	}
	if s.Priority != nil {
		v := *s.Priority
		cp.Priority = &v
	}
	return cp
}
