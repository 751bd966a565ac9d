package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet and parses args.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports = %d/%d, want 8080/9000", c.HTTPPort, c.AdminPort)
	}
	if c.StoreBackend != "fs" || c.DataDir != "./data" {
		t.Errorf("store = %q at %q", c.StoreBackend, c.DataDir)
	}
	if c.Environment != EnvProduction || c.InsecureIDFallback != "auto" {
		t.Errorf("environment = %q, fallback = %q", c.Environment, c.InsecureIDFallback)
	}
	if c.PublishPruneStale {
		t.Error("PublishPruneStale: want false")
	}
	if c.ReleaseSSMParam != "" || c.ReleaseSigningKeyARN != "" {
		t.Error("release pointer and signing should be off by default")
	}
	if err := Validate(c); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"STORE_BACKEND", "s3")
	t.Setenv(pfx+"S3_BUCKET", "site-content")
	t.Setenv(pfx+"PUBLISH_PRUNE_STALE", "true")
	t.Setenv(pfx+"RATE_LIMIT_RPS", "5.5")
	t.Setenv(pfx+"HTTP_PORT", "8088")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.StoreBackend != "s3" || c.S3Bucket != "site-content" {
		t.Errorf("store = %q bucket %q", c.StoreBackend, c.S3Bucket)
	}
	if !c.PublishPruneStale || c.RateLimitRPS != 5.5 {
		t.Errorf("prune = %v rps = %v", c.PublishPruneStale, c.RateLimitRPS)
	}
	// cli wins
	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090 from cli", c.HTTPPort)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "overrides env") {
		t.Errorf("messages = %v", msgs)
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"MAX_BODY_BYTES", "lots")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d, want default", c.MaxBodyBytes)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "ignoring invalid env") {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestAllowInsecureIDFallback(t *testing.T) {
	tests := []struct {
		env, setting string
		want         bool
	}{
		{EnvProduction, "auto", false},
		{EnvDevelopment, "auto", true},
		{EnvProduction, "true", true},
		{EnvDevelopment, "false", false},
		{EnvDevelopment, "FALSE", false},
	}
	for _, tt := range tests {
		c := App{Environment: tt.env, InsecureIDFallback: tt.setting}
		if got := c.AllowInsecureIDFallback(); got != tt.want {
			t.Errorf("env=%s fallback=%s: got %v, want %v", tt.env, tt.setting, got, tt.want)
		}
	}
}

func TestValidate_StoreBackends(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-store-backend=s3"}, "S3_BUCKET required"},
		{[]string{"-store-backend=dynamodb"}, "DYNAMODB_TABLE required"},
		{[]string{"-store-backend=fs", "-data-dir="}, "DATA_DIR required"},
		{[]string{"-store-backend=memory"}, "not allowed in production"},
		{[]string{"-store-backend=sqlite"}, "STORE_BACKEND must be"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			wantErrContains(t, Validate(newTestConfig(t, tt.args)), tt.want)
		})
	}

	dev := newTestConfig(t, []string{"-store-backend=memory", "-environment=development"})
	if err := Validate(dev); err != nil {
		t.Fatalf("memory backend in development: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-log-level=nope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-max-error-links=0",
		"-environment=staging",
		"-insecure-id-fallback=maybe",
		"-rate-limit-rps=0",
		"-max-body-bytes=10",
	})

	err := Validate(c)
	for _, sub := range []string{
		"invalid HTTP_PORT",
		"invalid ADMIN_PORT",
		"invalid LOG_LEVEL",
		"invalid TRACE_SAMPLE",
		"PYRO_SERVER must be a URL",
		"PYRO_TENANT required",
		"OTLP_ENDPOINT must be host:port",
		"MAX_ERROR_LINKS",
		"ENVIRONMENT must be",
		"INSECURE_ID_FALLBACK must be",
		"RATE_LIMIT_RPS",
		"MAX_BODY_BYTES",
	} {
		wantErrContains(t, err, sub)
	}
}
