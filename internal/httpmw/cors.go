package httpmw

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/jub0bs/cors"
	"github.com/jub0bs/cors/cfgerrors"

	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// CrossOriginOptions configures CrossOrigin. List fields hold individual
// tokens, use SplitList for comma-separated config values.
type CrossOriginOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// PreflightMaxAge is in seconds, 0 leaves the browser default and -1
	// disables preflight caching.
	PreflightMaxAge int
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty elements.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CrossOrigin builds CORS middleware. Preflight requests are answered by the
// middleware and never reach next.
//
// Request-header names that browsers never let scripts set (Origin, Cookie,
// Sec-*, ...) cannot be allowed; they are removed and returned in dropped so
// the caller can log them. Any other configuration problem is an error.
func CrossOrigin(opts CrossOriginOptions) (mw func(http.Handler) http.Handler, dropped []string, err error) {
	cfg := cors.Config{
		Origins:         opts.AllowedOrigins,
		Methods:         opts.AllowedMethods,
		RequestHeaders:  opts.AllowedHeaders,
		ResponseHeaders: opts.ExposedHeaders,
		Credentialed:    opts.AllowCredentials,
		MaxAgeInSeconds: opts.PreflightMaxAge,
	}

	m, err := cors.NewMiddleware(cfg)
	if err != nil {
		dropped = forbiddenRequestHeaders(err)
		if len(dropped) == 0 {
			return nil, nil, xerrors.Wrap(err, "invalid cross-origin config")
		}
		cfg.RequestHeaders = slices.DeleteFunc(slices.Clone(opts.AllowedHeaders), func(h string) bool {
			return slices.Contains(dropped, h)
		})
		if m, err = cors.NewMiddleware(cfg); err != nil {
			return nil, nil, xerrors.Wrap(err, "invalid cross-origin config")
		}
	}
	return m.Wrap, dropped, nil
}

func forbiddenRequestHeaders(err error) []string {
	var out []string
	for e := range cfgerrors.All(err) {
		var he *cfgerrors.UnacceptableHeaderNameError
		if errors.As(e, &he) && he.Type == "request" && he.Reason == "forbidden" {
			out = append(out, he.Value)
		}
	}
	return out
}
