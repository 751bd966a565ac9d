package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
)

// EnvPrefix is prepended to flag names to form environment variables.
const EnvPrefix = "SITEADMIN_"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort    int
	AdminPort   int
	EnablePprof bool

	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	Environment string
	// InsecureIDFallback is auto|true|false.
	InsecureIDFallback string

	StoreBackend  string
	DataDir       string
	S3Bucket      string
	S3Prefix      string
	DynamoDBTable string

	ReleaseSSMParam      string
	ReleaseSigningKeyARN string
	PublishPruneStale    bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxBodyBytes         int64
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "admin API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen TCP port for metrics/health/pprof (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on ops port only)")

	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.Environment, "environment", EnvProduction, "development|production")
	fs.StringVar(&c.InsecureIDFallback, "insecure-id-fallback", "auto", "allow non-crypto id generation when the secure source fails: auto|true|false (auto = only outside production)")

	fs.StringVar(&c.StoreBackend, "store-backend", "fs", "fs|memory|s3|dynamodb")
	fs.StringVar(&c.DataDir, "data-dir", "./data", "root directory for the fs store backend")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "bucket for the s3 store backend")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "siteadmin", "key prefix for the s3 store backend")
	fs.StringVar(&c.DynamoDBTable, "dynamodb-table", "", "table for the dynamodb store backend")

	fs.StringVar(&c.ReleaseSSMParam, "release-ssm-param", "", "ssm parameter updated with the current release manifest hash (empty disables)")
	fs.StringVar(&c.ReleaseSigningKeyARN, "release-signing-key-arn", "", "KMS key ARN used to sign release manifests (empty disables)")
	fs.BoolVar(&c.PublishPruneStale, "publish-prune-stale", false, "delete target pages the source index no longer lists when publishing")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client admin API requests per second")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client admin API burst")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "max admin API request body size")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// AllowInsecureIDFallback resolves the id fallback policy. "auto" allows the
// fallback everywhere except production.
func (c App) AllowInsecureIDFallback() bool {
	switch strings.ToLower(c.InsecureIDFallback) {
	case "true":
		return true
	case "false":
		return false
	default:
		return c.Environment != EnvProduction
	}
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}
	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be development|production (got %q)", c.Environment))
	}
	switch strings.ToLower(c.InsecureIDFallback) {
	case "auto", "true", "false":
	default:
		errs = append(errs, fmt.Errorf("INSECURE_ID_FALLBACK must be auto|true|false (got %q)", c.InsecureIDFallback))
	}

	switch c.StoreBackend {
	case "memory":
		if c.Environment == EnvProduction {
			errs = append(errs, fmt.Errorf("STORE_BACKEND=memory is not allowed in production"))
		}
	case "fs":
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("DATA_DIR required when STORE_BACKEND=fs"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_BUCKET required when STORE_BACKEND=s3"))
		}
	case "dynamodb":
		if c.DynamoDBTable == "" {
			errs = append(errs, fmt.Errorf("DYNAMODB_TABLE required when STORE_BACKEND=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be fs|memory|s3|dynamodb (got %q)", c.StoreBackend))
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1 (got %.2f, %d)", c.RateLimitRPS, c.RateLimitBurst))
	}
	if c.MaxBodyBytes < 1024 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be at least 1024 (got %d)", c.MaxBodyBytes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
