package httpmw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
)

// spyLogger records Error calls.
type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	msgs   []string
	errs   []error
	fields []any
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(kv ...any) log.Logger {
	s.mu.Lock()
	s.fields = append(s.fields, kv...)
	s.mu.Unlock()
	return s
}

func (s *spyLogger) Error(_ context.Context, err error, msg string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.errs = append(s.errs, err)
}

func (s *spyLogger) field(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(s.fields); i += 2 {
		if s.fields[i] == key {
			return s.fields[i+1]
		}
	}
	return nil
}

func TestRecover_PassThrough(t *testing.T) {
	spy := newSpyLogger()
	h := Recover(spy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/api/pages/abc")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pages", http.NoBody))

	if rec.Code != http.StatusCreated || rec.Header().Get("Location") != "/api/pages/abc" {
		t.Fatalf("response altered: %d %v", rec.Code, rec.Header())
	}
	if len(spy.msgs) != 0 {
		t.Fatalf("logged without a panic: %v", spy.msgs)
	}
}

func TestRecover_Panics(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "index corrupted"},
		{"error", errors.New("nil map write")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := newSpyLogger()
			calls := 0
			h := Recover(spy, func() { calls++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/publish", http.NoBody))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"code":"INTERNAL"`) {
				t.Fatalf("body = %s", rec.Body.String())
			}
			if calls != 1 {
				t.Fatalf("onPanic called %d times", calls)
			}
			if len(spy.errs) != 1 || spy.errs[0] == nil || spy.msgs[0] != "httpserver panic recovered" {
				t.Fatalf("logged %v / %v", spy.msgs, spy.errs)
			}
			if spy.field("url.path") != "/api/publish" || spy.field("http.request.method") != http.MethodPost {
				t.Fatalf("fields = %v", spy.fields)
			}
		})
	}
}

func TestRecover_AbortHandlerRepanics(t *testing.T) {
	h := Recover(newSpyLogger(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	t.Fatal("ErrAbortHandler was swallowed")
}
