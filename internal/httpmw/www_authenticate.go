package httpmw

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// WWWAuthenticateHeader is the response header suppressed for XHR-style clients.
const WWWAuthenticateHeader = "WWW-Authenticate"

// DisableWWWAuthenticate keeps WWW-Authenticate off responses to requests that
// carry the CSRF marker header, so programmatic clients never trigger the
// browser's credential prompt. Plain browser navigation still gets the header.
func DisableWWWAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !HasCSRFMarker(r) {
			next.ServeHTTP(w, r)
			return
		}

		sw := &suppressWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		// handler returned without writing, net/http commits the header map after this
		if !sw.committed {
			sw.strip()
		}
	})
}

// suppressWriter drops WWW-Authenticate from the header map right before the
// header block is committed. Header() hands out the live map, so set/add calls
// are filtered at commit time rather than per call.
type suppressWriter struct {
	http.ResponseWriter
	committed bool
}

func (w *suppressWriter) strip() {
	h := w.ResponseWriter.Header()
	for k := range h {
		// non-canonical keys assigned directly into the map count too
		if strings.EqualFold(k, WWWAuthenticateHeader) {
			delete(h, k)
		}
	}
}

func (w *suppressWriter) WriteHeader(code int) {
	w.strip()
	// 1xx responses may be followed by further WriteHeader calls
	if code >= 200 || code == http.StatusSwitchingProtocols {
		w.committed = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *suppressWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.strip()
		w.committed = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *suppressWriter) Flush() {
	if !w.committed {
		w.strip()
		w.committed = true
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *suppressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *suppressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
