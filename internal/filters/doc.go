// Package filters decides which cross-cutting HTTP filters a server installs
// and where.
//
// Register reads the Settings exposed by a Configuration and adds named
// registrations to an Environment: CSRF protection on the API registry,
// cache busting, WWW-Authenticate suppression and CORS on the dispatcher
// registry mapped to the API URL pattern. Registries are backed by an
// explicit name -> Factory table; httpserver turns them into middleware
// chains with Registry.Middlewares.
package filters
