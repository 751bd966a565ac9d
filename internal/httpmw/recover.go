package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// Recover turns a handler panic into a JSON 500 and an error log entry.
// onPanic, when set, runs once per recovered panic.
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// net/http uses this to abort a response on purpose
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err, ok := v.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", v)
				}
				L.With(
					"request_id", RequestIDFromContext(r.Context()),
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), xerrors.EnsureTrace(err), "httpserver panic recovered")
				if onPanic != nil {
					onPanic()
				}
				writeInternal(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const internalBody = `{"code":"INTERNAL","message":"internal error"}`

func writeInternal(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(internalBody))
}
