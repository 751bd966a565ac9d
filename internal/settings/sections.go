package settings

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

var (
	IdentitySection = Section[site.Identity]{
		Name: site.SectionIdentity,
		Get:  func(s *site.Settings) site.Identity { return s.Identity },
		Set:  func(s *site.Settings, v site.Identity) { s.Identity = v },
	}
	HeaderSection = Section[site.Header]{
		Name: site.SectionHeader,
		Get:  func(s *site.Settings) site.Header { return s.Header },
		Set:  func(s *site.Settings, v site.Header) { s.Header = v },
	}
	FooterSection = Section[site.Footer]{
		Name: site.SectionFooter,
		Get:  func(s *site.Settings) site.Footer { return s.Footer },
		Set:  func(s *site.Settings, v site.Footer) { s.Footer = v },
	}
	PrimaryMenuSection = Section[site.Menu]{
		Name: site.SectionPrimaryMenu,
		Get:  func(s *site.Settings) site.Menu { return s.PrimaryMenu },
		Set:  func(s *site.Settings, v site.Menu) { s.PrimaryMenu = v },
	}
	LegalMenuSection = Section[site.Menu]{
		Name: site.SectionLegalMenu,
		Get:  func(s *site.Settings) site.Menu { return s.LegalMenu },
		Set:  func(s *site.Settings, v site.Menu) { s.LegalMenu = v },
	}
	SocialSection = Section[site.Social]{
		Name:        site.SectionSocial,
		Get:         func(s *site.Settings) site.Social { return s.Social },
		Set:         func(s *site.Settings, v site.Social) { s.Social = v },
		Validate:    ValidateSocial,
		InvalidCode: siteerr.CodeSocialLinksInvalid,
	}
	SEOSection = Section[site.SEO]{
		Name: site.SectionSEO,
		Get:  func(s *site.Settings) site.SEO { return s.SEO },
		Set:  func(s *site.Settings, v site.SEO) { s.SEO = v },
	}
	ThemeSection = Section[site.Theme]{
		Name: site.SectionTheme,
		Get:  func(s *site.Settings) site.Theme { return s.Theme },
		Set:  func(s *site.Settings, v site.Theme) { s.Theme = v },
	}
	AdminSection = Section[site.Admin]{
		Name: site.SectionAdmin,
		Get:  func(s *site.Settings) site.Admin { return s.Admin },
		Set:  func(s *site.Settings, v site.Admin) { s.Admin = v },
	}
)

// ValidateSocial requires each platform at most once and an absolute
// http(s) href on every link.
func ValidateSocial(v site.Social) []siteerr.Issue {
	var issues []siteerr.Issue
	seen := make(map[string]int, len(v.Links))
	for i, l := range v.Links {
		base := fmt.Sprintf("links[%d]", i)
		p := strings.ToLower(strings.TrimSpace(l.Platform))
		switch {
		case p == "":
			issues = append(issues, siteerr.Issue{
				Code:    siteerr.CodeSocialLinksInvalid,
				Path:    base + ".platform",
				Message: "platform is required",
			})
		default:
			if first, dup := seen[p]; dup {
				issues = append(issues, siteerr.Issue{
					Code:    siteerr.CodeSocialLinksInvalid,
					Path:    base + ".platform",
					Message: fmt.Sprintf("platform %q already used by links[%d]", p, first),
				})
			} else {
				seen[p] = i
			}
		}
		if !absoluteHTTP(l.Href) {
			issues = append(issues, siteerr.Issue{
				Code:    siteerr.CodeSocialLinksInvalid,
				Path:    base + ".href",
				Message: "href must be an absolute http or https URL",
			})
		}
	}
	return issues
}

func absoluteHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
