package filters

import (
	"errors"
	"fmt"

	"github.com/keithlinneman/filterkit/internal/httpmw"
)

// Settings selects which filters are installed. Read once at startup.
type Settings struct {
	CacheBusting           bool                `yaml:"cacheBusting"`
	CrossOrigin            CrossOriginSettings `yaml:"crossOrigin"`
	CSRFProtection         bool                `yaml:"csrfProtection"`
	DisableWWWAuthenticate bool                `yaml:"disableWwwAuthenticate"`
}

// CrossOriginSettings holds the CORS filter parameters. List values are
// comma-separated.
type CrossOriginSettings struct {
	Enabled        bool   `yaml:"enabled"`
	AllowedOrigins string `yaml:"allowedOrigins"`
	AllowedHeaders string `yaml:"allowedHeaders"`
	AllowedMethods string `yaml:"allowedMethods"`

	// To make cookies work cross-site the client must also set withCredentials on XMLHttpRequest.
	// In AngularJS: $httpProvider.defaults.withCredentials = true;
	AllowCredentials bool   `yaml:"allowCredentials"`
	ExposedHeaders   string `yaml:"exposedHeaders"`
	PreflightMaxAge  int    `yaml:"preflightMaxAge"`
}

// Configuration is implemented by application configs that carry filter settings.
type Configuration interface {
	FilterSettings() Settings
}

// DefaultSettings returns every filter enabled with permissive CORS.
func DefaultSettings() Settings {
	return Settings{
		CacheBusting:           true,
		CrossOrigin:            DefaultCrossOriginSettings(),
		CSRFProtection:         true,
		DisableWWWAuthenticate: true,
	}
}

// DefaultCrossOriginSettings allows any origin. Credentials stay off because
// the CORS middleware refuses to combine them with the "*" origin.
func DefaultCrossOriginSettings() CrossOriginSettings {
	return CrossOriginSettings{
		Enabled:         true,
		AllowedOrigins:  "*",
		AllowedHeaders:  "Content-Type,Accept,Origin",
		AllowedMethods:  "OPTIONS,GET,PUT,POST,DELETE,HEAD",
		PreflightMaxAge: 1800,
	}
}

// FilterSettings lets a bare Settings value be passed where a Configuration is expected.
func (s Settings) FilterSettings() Settings { return s }

// CrossOriginAllowedHeaders is the allowed-headers value handed to the CORS
// filter. With CSRF protection on, clients must be able to send the marker
// header cross-origin, so it is appended.
func (s Settings) CrossOriginAllowedHeaders() string {
	if s.CSRFProtection {
		return s.CrossOrigin.AllowedHeaders + "," + httpmw.CSRFHeaderName
	}
	return s.CrossOrigin.AllowedHeaders
}

// Validate checks the values the CORS filter would otherwise only reject at
// init time. Origins, methods and headers are left to the CORS library.
func (s Settings) Validate() error {
	var errs []error
	co := s.CrossOrigin
	if co.Enabled {
		if co.PreflightMaxAge < -1 || co.PreflightMaxAge > 86400 {
			errs = append(errs, fmt.Errorf("crossOrigin.preflightMaxAge must be -1..86400 (got %d)", co.PreflightMaxAge))
		}
		if len(httpmw.SplitList(co.AllowedOrigins)) == 0 {
			errs = append(errs, fmt.Errorf("crossOrigin.allowedOrigins is required when crossOrigin.enabled=true"))
		}
	}
	return errors.Join(errs...)
}
