package site

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSettings_EncodesPresentSectionsOnly(t *testing.T) {
	var s Settings
	s.Identity = Identity{Title: "Acme"}
	s.MarkPresent(SectionIdentity)
	s.Theme = Theme{Preset: "ignored"}

	b, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"identity"`) || !strings.Contains(out, `"Acme"`) {
		t.Fatalf("encoded = %s", out)
	}
	if strings.Contains(out, `"theme"`) {
		t.Fatalf("absent section leaked into storage: %s", out)
	}
}

func TestSettings_DecodeMarksPresence(t *testing.T) {
	raw := `{"seo":{"defaultTitle":"Home"},"social":null,"bogus":{"x":1}}`
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !s.Has(SectionSEO) || s.SEO.DefaultTitle != "Home" {
		t.Fatalf("seo = %+v present=%v", s.SEO, s.Has(SectionSEO))
	}
	if s.Has(SectionSocial) {
		t.Fatal("null section must stay absent")
	}
	if got := s.Present(); len(got) != 1 || got[0] != SectionSEO {
		t.Fatalf("present = %v", got)
	}
}

func TestSettings_DecodeRejectsWrongShape(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"identity":"nope"}`), &s); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSettings_WithDefaults(t *testing.T) {
	var s Settings
	s.Admin = Admin{Locale: "de"}
	s.MarkPresent(SectionAdmin)

	d := s.WithDefaults()
	if d.Admin.Locale != "de" {
		t.Fatalf("present section replaced: %+v", d.Admin)
	}
	if d.Theme.Preset != "default" || d.Header.Layout != "default" {
		t.Fatalf("missing sections not defaulted: theme=%+v header=%+v", d.Theme, d.Header)
	}
	if d.Has(SectionTheme) {
		t.Fatal("defaults must not be marked present")
	}
	if s.Theme.Preset != "" {
		t.Fatal("receiver mutated")
	}
}

func TestSettings_CloneIsolatesPresence(t *testing.T) {
	var s Settings
	cp := s.Clone()
	cp.MarkPresent(SectionFooter)
	if s.Has(SectionFooter) {
		t.Fatal("clone shares presence with original")
	}
}

func TestParseSection(t *testing.T) {
	if sec, ok := ParseSection("primaryMenu"); !ok || sec != SectionPrimaryMenu {
		t.Fatalf("ParseSection = %q, %v", sec, ok)
	}
	if _, ok := ParseSection("PrimaryMenu"); ok {
		t.Fatal("section names are case sensitive")
	}
}

func TestParseState(t *testing.T) {
	if s, err := ParseState(""); err != nil || s != Draft {
		t.Fatalf("empty = %q, %v", s, err)
	}
	if s, err := ParseState(" Published "); err != nil || s != Published {
		t.Fatalf("published = %q, %v", s, err)
	}
	if _, err := ParseState("archived"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestSitemap_EqualUsesEffectiveInclude(t *testing.T) {
	yes := true
	if !(Sitemap{}).Equal(Sitemap{Include: &yes}) {
		t.Fatal("unset include should equal true")
	}
	no := false
	if (Sitemap{}).Equal(Sitemap{Include: &no}) {
		t.Fatal("unset include must differ from false")
	}
}

func TestPage_CloneDeep(t *testing.T) {
	inc := true
	p := Page{Blocks: []json.RawMessage{json.RawMessage(`{"a":1}`)}, Sitemap: Sitemap{Include: &inc}}
	cp := p.Clone()
	cp.Blocks[0][2] = 'z'
	*cp.Sitemap.Include = false
	if string(p.Blocks[0]) != `{"a":1}` || !*p.Sitemap.Include {
		t.Fatal("clone shares state with original")
	}
}
