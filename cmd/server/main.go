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

	"github.com/keithlinneman/filterkit/internal/cfg"
	"github.com/keithlinneman/filterkit/internal/filters"
	"github.com/keithlinneman/filterkit/internal/health"
	"github.com/keithlinneman/filterkit/internal/httpserver"
	"github.com/keithlinneman/filterkit/internal/log"
	"github.com/keithlinneman/filterkit/internal/metrics"
	"github.com/keithlinneman/filterkit/internal/opshttp"
	"github.com/keithlinneman/filterkit/internal/otelx"
	"github.com/keithlinneman/filterkit/internal/prof"
	"github.com/keithlinneman/filterkit/internal/version"
	"github.com/keithlinneman/filterkit/internal/whoamihttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := version.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	stderrf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	// precedence: cli flag > process env > env file > default
	if err := cfg.LoadDotEnv(conf.EnvFile); err != nil {
		stderrf("config error: %v", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, stderrf)
	if err := cfg.LoadSettingsFile(conf.ConfigFile, &conf); err != nil {
		stderrf("config error: %v", err)
		os.Exit(1)
	}
	if err := cfg.Validate(conf); err != nil {
		stderrf("config error: %v", err)
		os.Exit(1)
	}

	// levels were checked by Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               vi.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		stderrf("logger init error: %v", err)
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
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"api_path", conf.APIPath,
		"config_file", conf.ConfigFile,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"drain_timeout", conf.DrainTimeout,
		"trusted_hops", conf.TrustedHops,
		"csrf_protection", conf.Filters.CSRFProtection,
		"cache_busting", conf.Filters.CacheBusting,
		"disable_www_authenticate", conf.Filters.DisableWWWAuthenticate,
		"cross_origin", conf.Filters.CrossOrigin.Enabled,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(vi.AppName, "server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       vi.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       vi.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		// profiling is optional, keep serving
		L.Warn(ctx, "continuing without profiling", "err", err)
	}
	defer stopProf()

	// Insecure because the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:    conf.EnableTracing,
		Endpoint:   conf.OTLPEndpoint,
		Insecure:   true,
		Sample:     conf.TraceSample,
		Service:    vi.AppName,
		Component:  "server",
		Version:    vi.Version,
		Attributes: map[string]string{"filterkit.api_path": conf.APIPath},
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL, _ = otelx.Init(ctx, otelx.Options{})
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	env := filters.NewEnvironment(conf.APIPath, filters.DefaultFactories(filters.FactoryOptions{
		Logger:         L,
		OnCSRFRejected: m.IncCSRFRejected,
	}))
	if err := filters.Register(ctx, conf, env); err != nil {
		L.Error(ctx, err, "failed to register filters")
		os.Exit(1)
	}
	m.SetFiltersRegistered(env)

	api := whoamihttp.NewAPI(whoamihttp.Credentials{
		User:     conf.APIUser,
		Password: conf.APIPassword,
	}, "", L)

	var gate health.ShutdownGate
	readiness := health.All(health.Named("shutdown", gate.Probe()))

	appStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		TrustedHops:  conf.TrustedHops,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Filters:      env,
		APIRoutes:    api.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = appStop(context.Background()) }()

	// the admin listener also rejects public peers in middleware
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Filters:      env,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its start timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "err", err)
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	gate.Set("draining")
	drain(L, conf.DrainTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := appStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// drain keeps readiness failing for d so load balancers stop sending traffic
// before the listeners close. A second signal cuts it short.
func drain(L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(context.Background(), "draining", "timeout", d)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
