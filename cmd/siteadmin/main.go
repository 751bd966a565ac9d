package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/adminhttp"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/health"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ident"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/pages"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/prof"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/publish"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/release"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/settings"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/site"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/store"
	v "github.com/keithlinneman/linnemanlabs-siteadmin/internal/version"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

const appName = "siteadmin"

// drainPeriod is how long readiness stays failed before listeners close.
const drainPeriod = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s\n", appName, vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Commit:            vi.ShortCommit(),
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"environment", conf.Environment,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"store_backend", conf.StoreBackend,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
		"release_ssm_param", conf.ReleaseSSMParam,
		"release_signing_key_arn", conf.ReleaseSigningKeyARN,
		"publish_prune_stale", conf.PublishPruneStale,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer func() { stopProf() }()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	var awsCfg *aws.Config
	if needsAWS(conf) {
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, xerrors.Wrap(err, "load aws config"), "failed to load AWS config")
			os.Exit(1)
		}
		awsCfg = &c
	}

	backend, err := openBackend(conf, awsCfg)
	if err != nil {
		L.Error(ctx, err, "failed to open store backend", "backend", conf.StoreBackend)
		os.Exit(1)
	}
	backend = store.Instrument(backend, m)
	if err := backend.Ensure(ctx); err != nil {
		L.Error(ctx, err, "store backend not usable", "backend", backend.Name())
		os.Exit(1)
	}

	pageStore := store.NewPageStore(backend, L)
	siteStore := store.NewSiteStore(backend)
	ids := ident.NewGenerator(ident.Options{AllowInsecureFallback: conf.AllowInsecureIDFallback()})

	pageSvc, err := pages.New(pages.Options{Pages: pageStore, Site: siteStore, IDs: ids, Logger: L, Recorder: m})
	if err != nil {
		L.Error(ctx, err, "pages service init failed")
		os.Exit(1)
	}
	settingsSvc, err := settings.New(settings.Options{Site: siteStore, IDs: ids, Logger: L, Recorder: m})
	if err != nil {
		L.Error(ctx, err, "settings service init failed")
		os.Exit(1)
	}

	relOpts := release.Options{Site: siteStore, Logger: L, Observer: m}
	if conf.ReleaseSigningKeyARN != "" {
		kmsClient := kms.NewFromConfig(*awsCfg)
		relOpts.Signer = cryptoutil.NewKMSSigner(kmsClient, conf.ReleaseSigningKeyARN)
		relOpts.Verifier = cryptoutil.NewKMSVerifier(kmsClient, conf.ReleaseSigningKeyARN)
	}
	if conf.ReleaseSSMParam != "" {
		ptr, err := release.NewSSMPointer(ssm.NewFromConfig(*awsCfg), conf.ReleaseSSMParam)
		if err != nil {
			L.Error(ctx, err, "release pointer init failed")
			os.Exit(1)
		}
		relOpts.Pointer = ptr
	}
	releaser, err := release.New(relOpts)
	if err != nil {
		L.Error(ctx, err, "release publisher init failed")
		os.Exit(1)
	}
	// seeds the release header and metric from what is already stored
	if cur, err := releaser.Current(ctx, site.Published); err == nil {
		m.SetRelease(cur.SHA256)
	} else if !siteerr.Is(err, siteerr.CodeNotFound) {
		L.Warn(ctx, "stored release could not be verified", "error", err.Error())
	}

	publishSvc, err := publish.New(publish.Options{
		Pages:      pageStore,
		Site:       siteStore,
		Logger:     L,
		Recorder:   m,
		Observer:   m,
		Releaser:   releaser,
		PruneStale: conf.PublishPruneStale,
	})
	if err != nil {
		L.Error(ctx, err, "publish service init failed")
		os.Exit(1)
	}

	api, err := adminhttp.New(adminhttp.Options{
		Pages:    pageSvc,
		Settings: settingsSvc,
		Publish:  publishSvc,
		Release:  releaser,
		Logger:   L,
	})
	if err != nil {
		L.Error(ctx, err, "admin api init failed")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("store", health.Timeout(health.CheckFunc(backend.Ensure), 2*time.Second)),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// once per client until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
		}),
	)

	apiStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		MaxBodyBytes: conf.MaxBodyBytes,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Release:      releaser,
		Routes:       api.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		os.Exit(1)
	}
	defer func() { _ = apiStop(context.Background()) }()

	// ops listener refuses public peers; the security group is the first line
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "period", drainPeriod.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	if err := apiStop(shutdownCtx); err != nil {
		L.Error(bg, err, "api http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()
	L.Info(bg, "shutdown complete")
}

func needsAWS(c cfg.App) bool {
	return c.StoreBackend == "s3" || c.StoreBackend == "dynamodb" ||
		c.ReleaseSSMParam != "" || c.ReleaseSigningKeyARN != ""
}

func openBackend(c cfg.App, awsCfg *aws.Config) (store.Backend, error) {
	switch c.StoreBackend {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "fs":
		return store.NewFSBackend(c.DataDir), nil
	case "s3":
		return store.NewS3Backend(s3.NewFromConfig(*awsCfg), c.S3Bucket, c.S3Prefix)
	case "dynamodb":
		return store.NewDynamoBackend(dynamodb.NewFromConfig(*awsCfg), c.DynamoDBTable)
	}
	return nil, xerrors.Newf("unknown store backend %q", c.StoreBackend)
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify dial")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "systemd notify write")
	}
	return nil
}
