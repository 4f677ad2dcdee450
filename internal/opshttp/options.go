package opshttp

import (
	"net/http"

	"github.com/keithlinneman/filterkit/internal/filters"
	"github.com/keithlinneman/filterkit/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Filters, when set, is listed at /-/filters.
	Filters *filters.Environment

	UseRecoverMW bool
	OnPanic      func() // called for every recovered panic, e.g. to bump a counter
}
