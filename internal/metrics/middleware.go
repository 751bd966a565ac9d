package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no chi route claimed, keeping raw paths
// out of label values.
const unmatchedRoute = "unmatched"

type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *recorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *recorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records in-flight count, totals, latency and response size
// labeled by method and chi route pattern. It installs a chi route context
// when none exists so the pattern chi resolves further in is visible here.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			rctx = chi.NewRouteContext()
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		rw := &recorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		route := rctx.RoutePattern()
		if route == "" {
			route = unmatchedRoute
		}
		code := rw.code()
		m.reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		if code >= http.StatusInternalServerError {
			m.errorsTotal.WithLabelValues(r.Method, route).Inc()
		}

		observe(m.reqDur.WithLabelValues(r.Method, route), time.Since(start).Seconds(), traceExemplar(r.Context()))
		m.respBytes.WithLabelValues(r.Method, route).Observe(float64(rw.bytes))
	})
}

func observe(o prometheus.Observer, v float64, ex prometheus.Labels) {
	if eo, ok := o.(prometheus.ExemplarObserver); ok && ex != nil {
		eo.ObserveWithExemplar(v, ex)
		return
	}
	o.Observe(v)
}

// traceExemplar links a latency sample to its trace when the span is sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
