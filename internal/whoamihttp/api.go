package whoamihttp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/filterkit/internal/httpmw"
	"github.com/keithlinneman/filterkit/internal/log"
)

// Credentials is the single account accepted by /whoami. An empty User
// disables login, so every request is challenged.
type Credentials struct {
	User     string
	Password string
}

// API serves a small authenticated surface that exercises the filter stack:
// a Basic-auth challenge for WWW-Authenticate suppression and a mutating
// echo endpoint for CSRF protection.
type API struct {
	creds  Credentials
	realm  string
	logger log.Logger
}

func NewAPI(creds Credentials, realm string, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if realm == "" {
		realm = "filterkit"
	}
	return &API{
		creds:  creds,
		realm:  realm,
		logger: logger,
	}
}

// RegisterRoutes attaches the endpoints relative to the mounted API router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.With(httpmw.Scope("whoami")).Get("/whoami", api.HandleWhoAmI)

	echo := r.With(httpmw.Scope("echo"))
	echo.Post("/echo", api.HandleEcho)
	echo.Put("/echo", api.HandleEcho)
	echo.Delete("/echo", api.HandleEcho)
}

type WhoAmIResponse struct {
	User       string    `json:"user"`
	ServerTime time.Time `json:"server_time"`
}

type EchoResponse struct {
	Method    string          `json:"method"`
	RequestID string          `json:"request_id,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleWhoAmI answers 401 with a Basic challenge unless valid credentials
// are presented.
func (api *API) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := api.authenticate(r)
	if !ok {
		w.Header().Set(httpmw.WWWAuthenticateHeader, `Basic realm="`+api.realm+`", charset="UTF-8"`)
		api.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	api.writeJSON(ctx, w, http.StatusOK, WhoAmIResponse{
		User:       user,
		ServerTime: time.Now().UTC().Truncate(time.Second),
	})
}

// HandleEcho returns the JSON request body along with the method.
func (api *API) HandleEcho(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "request body is not valid JSON"})
		return
	}

	log.FromContext(ctx).Debug(ctx, "echo", "bytes", len(body))

	api.writeJSON(ctx, w, http.StatusOK, EchoResponse{
		Method:    r.Method,
		RequestID: httpmw.RequestIDFromContext(ctx),
		Body:      body,
	})
}

func (api *API) authenticate(r *http.Request) (string, bool) {
	if api.creds.User == "" {
		return "", false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(api.creds.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(api.creds.Password)) == 1
	if !userOK || !passOK {
		return "", false
	}
	return user, true
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
