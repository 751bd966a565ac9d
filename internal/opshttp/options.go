package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/health"
)

// Options configures the operations listener. It serves metrics, probes and
// pprof on a port that is never exposed publicly.
type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic runs for every recovered handler panic.
	OnPanic func()
}
