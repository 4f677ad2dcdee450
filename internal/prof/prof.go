// Package prof runs the optional Pyroscope push profiler.
package prof

import (
	"context"
	"net/url"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/filterkit/internal/log"
	"github.com/keithlinneman/filterkit/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string // http(s) URL of the Pyroscope server
	TenantID      string
	Tags          map[string]string

	// Sampling rates applied while the profiler runs; zero leaves the
	// runtime default.
	MutexFraction int
	BlockRate     int

	// OnActive, if set, is told whether profiling is running, e.g. to drive
	// the profiling_active gauge.
	OnActive func(bool)
}

// Stop ends profiling. It is safe to call more than once.
type Stop func()

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start begins pushing profiles. The returned Stop is never nil, including
// on error.
func Start(ctx context.Context, opts Options) (Stop, error) {
	L := log.FromContext(ctx).With("component", "pyroscope")
	report := func(active bool) {
		if opts.OnActive != nil {
			opts.OnActive(active)
		}
	}

	if !opts.Enabled {
		report(false)
		L.Info(ctx, "profiling disabled")
		return func() {}, nil
	}
	if err := checkAddress(opts.ServerAddress); err != nil {
		report(false)
		L.Error(ctx, err, "invalid profiling options")
		return func() {}, err
	}

	prevMutex := -1
	if opts.MutexFraction > 0 {
		prevMutex = runtime.SetMutexProfileFraction(opts.MutexFraction)
	}
	if opts.BlockRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockRate)
	}
	restore := func() {
		if prevMutex >= 0 {
			runtime.SetMutexProfileFraction(prevMutex)
		}
		if opts.BlockRate > 0 {
			runtime.SetBlockProfileRate(0)
		}
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		restore()
		report(false)
		err = xerrors.Wrapf(err, "start pyroscope for %s", opts.AppName)
		L.Error(ctx, err, "profiling start failed", "server_address", opts.ServerAddress)
		return func() {}, err
	}
	report(true)
	L.Info(ctx, "profiling started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	var once sync.Once
	return func() {
		once.Do(func() {
			profiler.Stop()
			restore()
			report(false)
			L.Info(context.Background(), "profiling stopped")
		})
	}, nil
}

func checkAddress(addr string) error {
	if addr == "" {
		return xerrors.New("pyroscope server address is required")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return xerrors.Wrapf(err, "parse pyroscope server address %q", addr)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return xerrors.Newf("pyroscope server address %q must be an http(s) URL", addr)
	}
	return nil
}
