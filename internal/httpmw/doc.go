// Package httpmw provides the HTTP middleware the server is assembled from.
//
// The filter middleware (CacheBusting, CrossOrigin, CSRFProtection and
// DisableWWWAuthenticate) is installed through package filters according to
// the configured settings. The rest (RequestID, WithLogger, AccessLog,
// Recover, MaxBody, TraceResponseHeaders, AnnotateHTTPRoute) is always on and
// composed by httpserver.NewHandler.
//
// Request-scoped log fields are limited to server-derived values. Headers,
// query strings and bodies are never logged.
package httpmw
