package filters

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if !s.CacheBusting || !s.CSRFProtection || !s.DisableWWWAuthenticate || !s.CrossOrigin.Enabled {
		t.Fatalf("defaults not all enabled: %+v", s)
	}
	co := s.CrossOrigin
	if co.AllowedOrigins != "*" ||
		co.AllowedHeaders != "Content-Type,Accept,Origin" ||
		co.AllowedMethods != "OPTIONS,GET,PUT,POST,DELETE,HEAD" {
		t.Fatalf("cross origin defaults = %+v", co)
	}
	if co.AllowCredentials || co.ExposedHeaders != "" || co.PreflightMaxAge != 1800 {
		t.Fatalf("cross origin extras = %+v", co)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestSettings_YAMLOverlay(t *testing.T) {
	doc := `
cacheBusting: false
crossOrigin:
  allowedOrigins: "https://app.example.com"
  allowCredentials: true
`
	s := DefaultSettings()
	if err := yaml.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.CacheBusting {
		t.Fatal("cacheBusting not overridden")
	}
	if !s.CSRFProtection || !s.CrossOrigin.Enabled {
		t.Fatal("absent keys lost their defaults")
	}
	if s.CrossOrigin.AllowedOrigins != "https://app.example.com" || !s.CrossOrigin.AllowCredentials {
		t.Fatalf("crossOrigin = %+v", s.CrossOrigin)
	}
	if s.CrossOrigin.AllowedMethods != "OPTIONS,GET,PUT,POST,DELETE,HEAD" {
		t.Fatalf("nested default lost: %q", s.CrossOrigin.AllowedMethods)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"max age -1", func(s *Settings) { s.CrossOrigin.PreflightMaxAge = -1 }, false},
		{"max age 86400", func(s *Settings) { s.CrossOrigin.PreflightMaxAge = 86400 }, false},
		{"max age too big", func(s *Settings) { s.CrossOrigin.PreflightMaxAge = 86401 }, true},
		{"max age too small", func(s *Settings) { s.CrossOrigin.PreflightMaxAge = -2 }, true},
		{"no origins", func(s *Settings) { s.CrossOrigin.AllowedOrigins = " , " }, true},
		{"disabled cors ignores values", func(s *Settings) {
			s.CrossOrigin.Enabled = false
			s.CrossOrigin.AllowedOrigins = ""
			s.CrossOrigin.PreflightMaxAge = 99999
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrossOriginAllowedHeaders(t *testing.T) {
	s := DefaultSettings()
	if got := s.CrossOriginAllowedHeaders(); got != "Content-Type,Accept,Origin,X-Requested-By" {
		t.Fatalf("with csrf = %q", got)
	}
	s.CSRFProtection = false
	if got := s.CrossOriginAllowedHeaders(); got != "Content-Type,Accept,Origin" {
		t.Fatalf("without csrf = %q", got)
	}
}
