package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/filterkit/internal/filters"
	"github.com/keithlinneman/filterkit/internal/health"
	"github.com/keithlinneman/filterkit/internal/log"
)

// DefaultMaxBodyBytes caps API request bodies when Options.MaxBodyBytes is 0.
const DefaultMaxBodyBytes = 64 << 10

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler

	// TrustedHops is the number of reverse proxies whose X-Forwarded-For
	// entries are trusted for the logged client address.
	TrustedHops int
	Health       health.Probe
	Readiness    health.Probe

	// Filters holds the API and dispatcher registrations; nil installs none.
	// Filters.URLPattern decides where APIRoutes is mounted.
	Filters *filters.Environment

	// APIRoutes registers handlers relative to the API mount point.
	APIRoutes    func(chi.Router)
	MaxBodyBytes int64
}
