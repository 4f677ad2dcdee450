package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// CacheBusting marks every response as non-cacheable (Cache-Control no-cache,
// no-store, must-revalidate, plus Expires/Pragma for old intermediaries) and
// strips conditional request headers so handlers never answer 304.
func CacheBusting(next http.Handler) http.Handler {
	return middleware.NoCache(next)
}
