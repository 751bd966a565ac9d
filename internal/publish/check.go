package publish

import (
	"net/url"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// CheckSettings returns the settings invariants st violates. A publish only
// proceeds when the list is empty.
func CheckSettings(st *site.Settings) []siteerr.Issue {
	var issues []siteerr.Issue
	add := func(path, msg string) {
		issues = append(issues, siteerr.Issue{Code: siteerr.CodePublishSettingsInvalid, Path: path, Message: msg})
	}

	if strings.TrimSpace(st.Identity.Title) == "" {
		add("identity.title", "site title is required")
	}
	if st.Identity.Logo != nil && strings.TrimSpace(st.Identity.Logo.Src) == "" {
		add("identity.logo.src", "logo needs a source")
	}

	if strings.TrimSpace(st.SEO.DefaultTitle) == "" {
		add("seo.defaultTitle", "default title is required")
	}
	base := strings.TrimSpace(st.SEO.BaseURL)
	switch {
	case base == "" && st.SEO.RequireBaseURL:
		add("seo.baseUrl", "base URL is required")
	case base != "" && !httpsURL(base):
		add("seo.baseUrl", "base URL must be an absolute https URL")
	}
	return issues
}

func httpsURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != "" && u.User == nil
}
