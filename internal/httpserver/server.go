package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/health"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

const defaultMaxBody = 1 << 20

// NewHandler builds the admin API handler with routes and middleware.
// main owns the *http.Server so it controls shutdown.
func NewHandler(opts *Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBody))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}
	if opts.Routes != nil {
		opts.Routes(r)
	}
	r.NotFound(jsonStatus(http.StatusNotFound, "NOT_FOUND", "no such route"))
	r.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"))

	traced := func(h http.Handler) http.Handler {
		return otelhttp.NewHandler(h, "http.server",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
			}),
			// AnnotateHTTPRoute renames the span once the route is known
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(r,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		traced,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		releaseHeaders(opts.Release),
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
	)
}

func releaseHeaders(info httpmw.ReleaseInfo) func(http.Handler) http.Handler {
	if info == nil {
		return nil
	}
	return httpmw.ReleaseHeaders(info)
}

func jsonStatus(status int, code, msg string) http.HandlerFunc {
	body := fmt.Sprintf(`{"code":%q,"message":%q}`, code, msg)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	// publish rewrites every page, so give it room
	DefaultWriteTimeout   = 60 * time.Second
	DefaultIdleTimeout    = 60 * time.Second
	DefaultMaxHeaderBytes = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start serves the admin API on opts.Port (8080 when unset) and returns a
// stop func for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 10*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
