package filters

import (
	"context"
	"strconv"

	"github.com/keithlinneman/filterkit/internal/log"
	"github.com/keithlinneman/filterkit/internal/xerrors"
)

// Register installs the filters enabled in c.FilterSettings() into env.
//
// CSRF protection is an API-level filter. Cache busting, WWW-Authenticate
// suppression and CORS are dispatcher-level, mapped to env.URLPattern, and
// are added in that order. Register must run once per environment; a second
// run fails with ErrDuplicateFilter.
func Register(ctx context.Context, c Configuration, env *Environment) error {
	L := log.FromContext(ctx).With("component", "filters")
	s := c.FilterSettings()

	if env == nil || env.API == nil || env.Dispatcher == nil {
		return xerrors.New("filters: environment has no registries")
	}
	if !ValidURLPattern(env.URLPattern) {
		return xerrors.Newf("filters: invalid url pattern %q", env.URLPattern)
	}

	if s.CSRFProtection {
		if _, err := env.API.Add(NameCSRFProtection); err != nil {
			return err
		}
		L.Info(ctx, "filter registered", "filter", NameCSRFProtection, "level", LevelAPI)
	}

	if s.CacheBusting {
		if err := addDispatcher(ctx, L, env, NameCacheBusting, nil); err != nil {
			return err
		}
	}

	if s.DisableWWWAuthenticate {
		if err := addDispatcher(ctx, L, env, NameDisableWWWAuthenticate, nil); err != nil {
			return err
		}
	}

	if s.CrossOrigin.Enabled {
		co := s.CrossOrigin
		params := map[string]string{
			ParamAllowedOrigins:   co.AllowedOrigins,
			ParamAllowedMethods:   co.AllowedMethods,
			ParamAllowedHeaders:   s.CrossOriginAllowedHeaders(),
			ParamExposedHeaders:   co.ExposedHeaders,
			ParamAllowCredentials: strconv.FormatBool(co.AllowCredentials),
			ParamPreflightMaxAge:  strconv.Itoa(co.PreflightMaxAge),
		}
		if err := addDispatcher(ctx, L, env, NameCrossOrigin, params); err != nil {
			return err
		}
	}

	L.Debug(ctx, "filter registration complete",
		"api", env.API.Len(),
		"dispatcher", env.Dispatcher.Len(),
		"url_pattern", env.URLPattern,
	)
	return nil
}

func addDispatcher(ctx context.Context, L log.Logger, env *Environment, name string, params map[string]string) error {
	reg, err := env.Dispatcher.Add(name)
	if err != nil {
		return err
	}
	for k, v := range params {
		reg.SetParam(k, v)
	}
	reg.MapPatterns(env.URLPattern)
	L.Info(ctx, "filter registered", "filter", name, "level", LevelDispatcher, "url_pattern", env.URLPattern)
	return nil
}
