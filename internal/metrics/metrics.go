package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	releaseInfo            *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// engine metrics
	opsTotal             *prometheus.CounterVec
	opDuration           *prometheus.HistogramVec
	publishWarningsTotal *prometheus.CounterVec
	publishPagesCopied   prometheus.Gauge
	publishLastSuccessTs prometheus.Gauge
	storeErrorsTotal     *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		releaseInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "siteadmin_release_info",
			Help: "Most recent published release manifest (label carries identity, value is always 1)",
		}, []string{"sha256"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteadmin_operations_total",
			Help: "Total engine operations by operation and result",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siteadmin_operation_duration_seconds",
			Help:    "Engine operation latency by operation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		publishWarningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteadmin_publish_warnings_total",
			Help: "Total non-fatal publish warnings by code",
		}, []string{"code"}),
		publishPagesCopied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siteadmin_publish_pages_copied",
			Help: "Pages copied by the most recent successful publish",
		}),
		publishLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "siteadmin_publish_last_success_timestamp_seconds",
			Help: "Unix timestamp of the most recent successful publish",
		}),
		storeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "siteadmin_store_errors_total",
			Help: "Total record store backend errors by backend and operation",
		}, []string{"backend", "op"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.releaseInfo,
		m.errorsTotal,
		m.profilingActive,
		m.opsTotal,
		m.opDuration,
		m.publishWarningsTotal,
		m.publishPagesCopied,
		m.publishLastSuccessTs,
		m.storeErrorsTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetRelease(sha256 string) {
	m.releaseInfo.Reset()
	m.releaseInfo.WithLabelValues(sha256).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// ObserveOperation records one engine use-case call, labeled by Result(err).
func (m *ServerMetrics) ObserveOperation(op string, err error, seconds float64) {
	m.opsTotal.WithLabelValues(op, Result(err)).Inc()
	m.opDuration.WithLabelValues(op).Observe(seconds)
}

func (m *ServerMetrics) IncPublishWarning(code string) {
	m.publishWarningsTotal.WithLabelValues(code).Inc()
}

func (m *ServerMetrics) SetPublishSuccess(pagesCopied int, at time.Time) {
	m.publishPagesCopied.Set(float64(pagesCopied))
	m.publishLastSuccessTs.Set(float64(at.Unix()))
}

func (m *ServerMetrics) IncStoreError(backend, op string) {
	m.storeErrorsTotal.WithLabelValues(backend, op).Inc()
}

// Result maps an operation error onto a bounded label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := siteerr.As(err); ok {
		return string(e.Code.Kind())
	}
	return string(siteerr.KindInternal)
}
