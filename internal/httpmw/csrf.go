package httpmw

import "net/http"

// CSRFHeaderName is the marker header XHR-style clients send to prove the
// request was not a plain cross-site form post or navigation.
// In AngularJS: $httpProvider.defaults.headers.common['X-Requested-By'] = 'XHR';
const CSRFHeaderName = "X-Requested-By"

// HasCSRFMarker reports whether r carries the marker header, with any value
// (empty included).
func HasCSRFMarker(r *http.Request) bool {
	return len(r.Header.Values(CSRFHeaderName)) > 0
}

// csrfSafeMethod reports whether a method is exempt from the marker check.
func csrfSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// CSRFProtection rejects state-changing requests (anything other than GET,
// HEAD and OPTIONS) that lack the marker header with 400 Bad Request.
// onReject is optional and receives the rejected method, e.g. for metrics.
func CSRFProtection(onReject func(method string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if csrfSafeMethod(r.Method) || HasCSRFMarker(r) {
				next.ServeHTTP(w, r)
				return
			}

			if onReject != nil {
				onReject(r.Method)
			}
			http.Error(w, "missing "+CSRFHeaderName+" header", http.StatusBadRequest)
		})
	}
}
