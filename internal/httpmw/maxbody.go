package httpmw

import "net/http"

// MaxBody caps request bodies at n bytes. A declared Content-Length over the
// cap is refused with 413 up front; an undeclared body fails when the
// handler reads past the cap.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > n {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(`{"code":"REQUEST_TOO_LARGE","message":"request body too large"}`))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
