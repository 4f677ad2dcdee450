package filters

import (
	"context"
	"strconv"

	"github.com/keithlinneman/filterkit/internal/httpmw"
	"github.com/keithlinneman/filterkit/internal/log"
	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// Filter names.
const (
	NameCacheBusting           = "cache-busting"
	NameCrossOrigin            = "cross-origin"
	NameCSRFProtection         = "csrf-protection"
	NameDisableWWWAuthenticate = "disable-www-authenticate"
)

// Cross-origin init params.
const (
	ParamAllowedOrigins   = "allowedOrigins"
	ParamAllowedMethods   = "allowedMethods"
	ParamAllowedHeaders   = "allowedHeaders"
	ParamExposedHeaders   = "exposedHeaders"
	ParamAllowCredentials = "allowCredentials"
	ParamPreflightMaxAge  = "preflightMaxAge"
)

// FactoryOptions carries the hooks the built-in filters report through.
type FactoryOptions struct {
	Logger log.Logger

	// OnCSRFRejected is called with the request method for every request
	// rejected for a missing marker header.
	OnCSRFRejected func(method string)
}

// DefaultFactories returns the factory table for the four built-in filters.
func DefaultFactories(opts FactoryOptions) map[string]Factory {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	return map[string]Factory{
		NameCacheBusting: func(map[string]string) (Middleware, error) {
			return httpmw.CacheBusting, nil
		},
		NameDisableWWWAuthenticate: func(map[string]string) (Middleware, error) {
			return httpmw.DisableWWWAuthenticate, nil
		},
		NameCSRFProtection: func(map[string]string) (Middleware, error) {
			return httpmw.CSRFProtection(opts.OnCSRFRejected), nil
		},
		NameCrossOrigin: func(params map[string]string) (Middleware, error) {
			return crossOrigin(L, params)
		},
	}
}

func crossOrigin(L log.Logger, params map[string]string) (Middleware, error) {
	o := httpmw.CrossOriginOptions{
		AllowedOrigins: httpmw.SplitList(params[ParamAllowedOrigins]),
		AllowedMethods: httpmw.SplitList(params[ParamAllowedMethods]),
		AllowedHeaders: httpmw.SplitList(params[ParamAllowedHeaders]),
		ExposedHeaders: httpmw.SplitList(params[ParamExposedHeaders]),
	}
	if v, ok := params[ParamAllowCredentials]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, xerrors.Wrapf(err, "param %s", ParamAllowCredentials)
		}
		o.AllowCredentials = b
	}
	if v, ok := params[ParamPreflightMaxAge]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, xerrors.Wrapf(err, "param %s", ParamPreflightMaxAge)
		}
		o.PreflightMaxAge = n
	}

	mw, dropped, err := httpmw.CrossOrigin(o)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		L.Warn(context.Background(), "cross-origin: ignoring request headers browsers never let scripts set",
			"headers", dropped,
		)
	}
	return mw, nil
}
