package httpmw

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
)

func accessLogged(t *testing.T, path string, status int) (map[string]any, bool) {
	t.Helper()
	var buf bytes.Buffer
	L, err := log.New(log.Options{App: "test", JsonFormat: true, Writer: &buf})
	if err != nil {
		t.Fatalf("log.New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(AccessLog())
	r.Get("/api/pages/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	})
	r.Get("/-/ready", func(w http.ResponseWriter, _ *http.Request) {})

	h := Chain(r, RequestID(""), ClientIP, WithLogger(L))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "198.51.100.4:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := strings.TrimSpace(buf.String())
	if line == "" {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return m, true
}

func TestAccessLog(t *testing.T) {
	m, ok := accessLogged(t, "/api/pages/abc?draft=1", http.StatusOK)
	if !ok {
		t.Fatal("no access log line")
	}
	if m["msg"] != "http request" || m["level"] != "INFO" {
		t.Fatalf("record = %v", m)
	}
	if m["http.route"] != "/api/pages/{id}" || m["url.path"] != "/api/pages/abc" {
		t.Fatalf("route/path = %v/%v", m["http.route"], m["url.path"])
	}
	if m["client.address"] != "198.51.100.4" {
		t.Fatalf("client.address = %v", m["client.address"])
	}
	if id, _ := m["request_id"].(string); id == "" {
		t.Fatal("request_id missing")
	}
	if m["http.response.body.size"] != float64(len(`{"id":"x"}`)) {
		t.Fatalf("body size = %v", m["http.response.body.size"])
	}
	if _, ok := m["url.query"]; ok {
		t.Fatal("query string must not be logged")
	}
}

func TestAccessLog_ServerErrorsWarn(t *testing.T) {
	m, ok := accessLogged(t, "/api/pages/abc", http.StatusInternalServerError)
	if !ok || m["level"] != "WARN" || m["http.response.status_code"] != float64(500) {
		t.Fatalf("record = %v", m)
	}
}

func TestAccessLog_SkipsProbes(t *testing.T) {
	if m, ok := accessLogged(t, "/-/ready", http.StatusOK); ok {
		t.Fatalf("probe logged: %v", m)
	}
}

func TestScope(t *testing.T) {
	var buf bytes.Buffer
	L, _ := log.New(log.Options{App: "test", JsonFormat: true, Writer: &buf})
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info(r.Context(), "inside")
	}), WithLogger(L), Scope("pages.create"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/pages", nil))
	if !strings.Contains(buf.String(), `"handler":"pages.create"`) {
		t.Fatalf("log = %s", buf.String())
	}
}
