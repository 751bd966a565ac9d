package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReleaseInfo reports the hash of the last recorded release manifest.
type ReleaseInfo interface {
	LastReleaseSHA256() string
}

// ReleaseHeaders stamps X-Site-Release with a short form of the current
// release hash so operators can tell which publish a response saw.
func ReleaseHeaders(info ReleaseInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				if h := info.LastReleaseSHA256(); h != "" {
					short := h
					if len(short) > 12 {
						short = short[:12]
					}
					w.Header().Set("X-Site-Release", short)
					if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
						span.SetAttributes(attribute.String("site.release", h))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
