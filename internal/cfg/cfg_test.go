package cfg

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/filterkit/internal/filters"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080, got %d", c.HTTPPort)
	}
	if c.AdminPort != 9000 {
		t.Errorf("AdminPort: want 9000, got %d", c.AdminPort)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true")
	}
	if c.EnablePyroscope || c.EnableTracing {
		t.Error("EnablePyroscope/EnableTracing: want false")
	}
	if c.APIPath != "/api/*" {
		t.Errorf("APIPath: want %q, got %q", "/api/*", c.APIPath)
	}
	if c.EnvFile != ".env" {
		t.Errorf("EnvFile: want %q, got %q", ".env", c.EnvFile)
	}
	if c.DrainTimeout != 15*time.Second {
		t.Errorf("DrainTimeout: want 15s, got %s", c.DrainTimeout)
	}
	if c.FilterSettings() != filters.DefaultSettings() {
		t.Errorf("FilterSettings: want defaults, got %+v", c.FilterSettings())
	}
	if err := Validate(c); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-log-json=false",
		"-log-level=debug",
		"-http-port=9090",
		"-admin-port=9100",
		"-enable-pprof=false",
		"-trace-sample=0.5",
		"-stacktrace-level=warn",
		"-max-error-links=16",
		"-otlp-endpoint=otel:4317",
		"-config-file=/etc/filterkit.yaml",
		"-env-file=",
		"-api-path=/v1/*",
		"-api-user=alice",
		"-api-password=s3cret",
		"-drain-timeout=2s",
	})

	if c.LogJSON {
		t.Error("LogJSON: want false")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 9090 || c.AdminPort != 9100 {
		t.Errorf("ports: got %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.EnablePprof {
		t.Error("EnablePprof: want false")
	}
	if c.TraceSample != 0.5 {
		t.Errorf("TraceSample: want 0.5, got %f", c.TraceSample)
	}
	if c.StacktraceLevel != "warn" || c.MaxErrorLinks != 16 {
		t.Errorf("stacktrace/max links: %q %d", c.StacktraceLevel, c.MaxErrorLinks)
	}
	if c.ConfigFile != "/etc/filterkit.yaml" || c.EnvFile != "" {
		t.Errorf("files: %q %q", c.ConfigFile, c.EnvFile)
	}
	if c.APIPath != "/v1/*" || c.APIUser != "alice" || c.APIPassword != "s3cret" {
		t.Errorf("api: %q %q %q", c.APIPath, c.APIUser, c.APIPassword)
	}
	if c.DrainTimeout != 2*time.Second {
		t.Errorf("DrainTimeout: want 2s, got %s", c.DrainTimeout)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_JSON", "false")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"ENABLE_TRACING", "true")
	t.Setenv(pfx+"TRACE_SAMPLE", "0.25")
	t.Setenv(pfx+"API_PATH", "/rest/*")
	t.Setenv(pfx+"API_USER", "bob")
	t.Setenv(pfx+"DRAIN_TIMEOUT", "1m")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.LogJSON {
		t.Error("LogJSON: want false from env")
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if !c.EnableTracing {
		t.Error("EnableTracing: want true from env")
	}
	if c.TraceSample != 0.25 {
		t.Errorf("TraceSample: want 0.25, got %f", c.TraceSample)
	}
	if c.APIPath != "/rest/*" || c.APIUser != "bob" {
		t.Errorf("api: %q %q", c.APIPath, c.APIUser)
	}
	if c.DrainTimeout != time.Minute {
		t.Errorf("DrainTimeout: want 1m, got %s", c.DrainTimeout)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")
	t.Setenv(pfx+"ENABLE_PPROF", "false")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090", "-log-level=debug", "-enable-pprof=true"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var overrideMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		overrideMessages = append(overrideMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090 (cli), got %d", c.HTTPPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q (cli), got %q", "debug", c.LogLevel)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true (cli)")
	}

	if len(overrideMessages) != 3 {
		t.Errorf("expected 3 override messages, got %d: %v", len(overrideMessages), overrideMessages)
	}
	for _, msg := range overrideMessages {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var logMessages []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		logMessages = append(logMessages, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080 (default), got %d", c.HTTPPort)
	}
	if len(logMessages) != 1 {
		t.Fatalf("expected 1 log message, got %d: %v", len(logMessages), logMessages)
	}
	if !strings.Contains(logMessages[0], "ignoring invalid env") {
		t.Errorf("unexpected log message: %s", logMessages[0])
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "TESTCFG4_API_USER"
	const preset = "TESTCFG4_LOG_LEVEL"
	t.Setenv(preset, "warn")
	// t.Setenv restores on cleanup, so register the key before Load sets it
	t.Setenv(key, "")
	os.Unsetenv(key)

	p := writeFile(t, ".env", key+"=carol\n"+preset+"=debug\n")
	if err := LoadDotEnv(p); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(key); got != "carol" {
		t.Errorf("%s = %q, want carol", key, got)
	}
	if got := os.Getenv(preset); got != "warn" {
		t.Errorf("%s = %q, existing env must win", preset, got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file: %v", err)
	}
	if err := LoadDotEnv(""); err != nil {
		t.Errorf("empty path: %v", err)
	}
}

func TestLoadSettingsFile(t *testing.T) {
	p := writeFile(t, "filterkit.yaml", `
filterSettings:
  cacheBusting: false
  crossOrigin:
    allowedOrigins: "https://app.example.com"
    allowCredentials: true
    preflightMaxAge: 600
`)
	c := newTestConfig(t, nil)
	if err := LoadSettingsFile(p, &c); err != nil {
		t.Fatalf("LoadSettingsFile: %v", err)
	}

	s := c.FilterSettings()
	if s.CacheBusting {
		t.Error("CacheBusting: want false from file")
	}
	if !s.CSRFProtection || !s.DisableWWWAuthenticate {
		t.Error("absent keys must keep defaults")
	}
	co := s.CrossOrigin
	if !co.Enabled || co.AllowedOrigins != "https://app.example.com" || !co.AllowCredentials || co.PreflightMaxAge != 600 {
		t.Errorf("crossOrigin = %+v", co)
	}
	if co.AllowedMethods != filters.DefaultCrossOriginSettings().AllowedMethods {
		t.Errorf("allowedMethods = %q, want default", co.AllowedMethods)
	}
}

func TestLoadSettingsFile_Errors(t *testing.T) {
	c := newTestConfig(t, nil)
	if err := LoadSettingsFile("", &c); err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if err := LoadSettingsFile(writeFile(t, "empty.yaml", ""), &c); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if c.FilterSettings() != filters.DefaultSettings() {
		t.Fatal("empty file changed settings")
	}

	if err := LoadSettingsFile(filepath.Join(t.TempDir(), "nope.yaml"), &c); err == nil {
		t.Error("missing file: expected error")
	}
	wantErrContains(t, LoadSettingsFile(writeFile(t, "typo.yaml", "filterSettings:\n  cacheBustin: true\n"), &c), "parse settings file")
	wantErrContains(t, LoadSettingsFile(writeFile(t, "bad.yaml", "filterSettings: [\n"), &c), "parse settings file")
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
		"-api-path=/*",
		"-api-user=alice",
		"-api-password=s3cret",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-include-error-links=true",
		"-max-error-links=0",
		"-api-path=*.json",
		"-api-user=alice",
		"-drain-timeout=-1s",
		"-trusted-hops=9",
	})
	c.Filters.CrossOrigin.PreflightMaxAge = 90000

	err := Validate(c)
	if err == nil {
		t.Fatal("Validate() expected errors, got <nil>")
	}

	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid ADMIN_PORT")
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid STACKTRACE_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "PYRO_TENANT required")
	wantErrContains(t, err, "OTLP_ENDPOINT must be host:port")
	wantErrContains(t, err, "MAX_ERROR_LINKS")
	wantErrContains(t, err, "API_PATH")
	wantErrContains(t, err, "API_PASSWORD required")
	wantErrContains(t, err, "DRAIN_TIMEOUT")
	wantErrContains(t, err, "TRUSTED_HOPS")
	wantErrContains(t, err, "preflightMaxAge")
}

func TestValidate_PortsMustDiffer(t *testing.T) {
	c := newTestConfig(t, []string{"-http-port=9000", "-admin-port=9000"})
	wantErrContains(t, Validate(c), "must differ")
}
