package whoamihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/filterkit/internal/httpmw"
)

func newRouter(creds Credentials) http.Handler {
	r := chi.NewRouter()
	NewAPI(creds, "test", nil).RegisterRoutes(r)
	return r
}

func TestWhoAmI(t *testing.T) {
	h := newRouter(Credentials{User: "alice", Password: "s3cret"})

	tests := []struct {
		name      string
		user      string
		pass      string
		basic     bool
		want      int
		wantChall bool
	}{
		{"no credentials", "", "", false, http.StatusUnauthorized, true},
		{"wrong password", "alice", "nope", true, http.StatusUnauthorized, true},
		{"wrong user", "bob", "s3cret", true, http.StatusUnauthorized, true},
		{"valid", "alice", "s3cret", true, http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
			if tt.basic {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			chall := rec.Header().Get(httpmw.WWWAuthenticateHeader)
			if (chall != "") != tt.wantChall {
				t.Fatalf("WWW-Authenticate = %q", chall)
			}
			if tt.wantChall && !strings.HasPrefix(chall, `Basic realm="test"`) {
				t.Fatalf("challenge = %q", chall)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("Content-Type = %q", ct)
			}
			if tt.want == http.StatusOK {
				var resp WhoAmIResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.User != "alice" {
					t.Fatalf("user = %q", resp.User)
				}
			}
		})
	}
}

func TestWhoAmI_NoAccountConfigured(t *testing.T) {
	h := newRouter(Credentials{})
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	req.SetBasicAuth("", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestEcho(t *testing.T) {
	h := newRouter(Credentials{})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"post json", http.MethodPost, `{"a":1}`, http.StatusOK},
		{"put json", http.MethodPut, `[1,2]`, http.StatusOK},
		{"delete empty", http.MethodDelete, "", http.StatusOK},
		{"invalid json", http.MethodPost, `{"a":`, http.StatusBadRequest},
		{"get not allowed", http.MethodGet, "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/echo", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp EchoResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Method != tt.method {
				t.Fatalf("method = %q", resp.Method)
			}
			if string(resp.Body) != tt.body {
				t.Fatalf("body = %s, want %s", resp.Body, tt.body)
			}
		})
	}
}

func TestEcho_BodyTooLarge(t *testing.T) {
	r := chi.NewRouter()
	r.Use(httpmw.MaxBody(4))
	NewAPI(Credentials{}, "", nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"abc":1}`))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}
