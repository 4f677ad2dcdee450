package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/filterkit/internal/filters"
	"github.com/keithlinneman/filterkit/internal/health"
	"github.com/keithlinneman/filterkit/internal/httpmw"
	"github.com/keithlinneman/filterkit/internal/log"
	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// Probe paths served on the public listener.
const (
	HealthyPath = "/-/healthy"
	ReadyPath   = "/-/ready"
)

// NewHandler builds the public handler: the chi router with the API mounted
// at the filter URL pattern, API-level filters inside the API router and
// dispatcher-level filters around everything.
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) (http.Handler, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	env := opts.Filters
	if env == nil {
		env = filters.NewEnvironment("/*", nil)
	}
	prefix, ok := filters.PatternPrefix(env.URLPattern)
	if !ok {
		return nil, xerrors.Newf("api url pattern %q must be \"/*\" or \"/prefix/*\"", env.URLPattern)
	}
	apiMWs, err := env.API.Middlewares()
	if err != nil {
		return nil, err
	}
	dispatchMWs, err := env.Dispatcher.Middlewares()
	if err != nil {
		return nil, err
	}

	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()

	r.Use(middleware.Compress(5,
		"application/json",
		"text/plain",
	))

	// rename the server span to the chi route pattern once routing is done
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog(HealthyPath, ReadyPath))

	if opts.Health != nil {
		r.Get(HealthyPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get(ReadyPath, health.ReadyzHandler(opts.Readiness))
	}

	mountAPI := func(api chi.Router) {
		api.Use(apiMWs...)
		api.Use(httpmw.MaxBody(maxBody))
		if opts.APIRoutes != nil {
			opts.APIRoutes(api)
		}
	}
	if prefix == "" {
		r.Group(mountAPI)
	} else {
		r.Route(prefix, mountAPI)
	}

	// Middleware (outermost first in wrapping order)
	var h http.Handler = r

	// Recovery sits inside the dispatcher filters so the 500 it writes still
	// passes through them
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}

	h = httpmw.Chain(h, dispatchMWs...)

	// Request-scoped logging, with the peer resolved by ClientIP
	h = httpmw.WithLogger(L)(h)
	h = httpmw.ClientIP(httpmw.ClientIPOptions{TrustedHops: opts.TrustedHops})(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = httpmw.TraceResponseHeaders(httpmw.TraceIDHeader, httpmw.SpanIDHeader)(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != HealthyPath && r.URL.Path != ReadyPath
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// Request ID outermost so everything downstream sees it
	h = httpmw.RequestID(httpmw.RequestIDHeader)(h)

	L.Info(context.Background(), "http handler assembled",
		"api_prefix", prefix,
		"api_filters", len(apiMWs),
		"dispatcher_filters", len(dispatchMWs),
	)
	return h, nil
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
