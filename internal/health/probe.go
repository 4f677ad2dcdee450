package health

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// Probe reports nil when healthy and the failure reason otherwise. Probes
// run on every request to a probe endpoint.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

func pass(context.Context) error { return nil }

// Fixed always passes, or always fails with reason ("unhealthy" if empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return pass
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// All runs ps in order, skipping nils, and stops at the first failure.
func All(ps ...Probe) CheckFunc {
	live := make([]Probe, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			live = append(live, p)
		}
	}
	return func(ctx context.Context) error {
		for _, p := range live {
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Named prefixes a failure with name, e.g. "shutdown: draining".
func Named(name string, p Probe) CheckFunc {
	if p == nil {
		return pass
	}
	return func(ctx context.Context) error {
		return xerrors.Wrap(p.Check(ctx), name)
	}
}

// ShutdownGate fails readiness while the process drains. The zero value is
// open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate; an empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.reason.Store(&reason)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if r := g.reason.Load(); r != nil {
			return errors.New(*r)
		}
		return nil
	}
}
