package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/health"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()

	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// MaxBodyBytes caps request bodies; 0 means 1 MiB.
	MaxBodyBytes int64

	Health    health.Probe
	Readiness health.Probe
	// Release feeds the X-Site-Release header.
	Release httpmw.ReleaseInfo

	// Routes mounts the application routes.
	Routes func(chi.Router)
}
