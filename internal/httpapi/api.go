// Package httpapi is the HTTP surface of the service: token issuance and
// validation, identity-provider logins, refresh sessions, the directory admin
// API, and operational endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/idp"
	"github.com/overture-stack/ego-sub000/internal/obs"
	"github.com/overture-stack/ego-sub000/internal/session"
)

// ReadyProbe reports whether backing stores are reachable.
type ReadyProbe func(ctx context.Context) error

// API is the HTTP layer. Construct with New and serve Handler().
type API struct {
	router    *mux.Router
	log       *logrus.Logger
	dir       *authz.Directory
	tokens    *authz.TokenService
	resolver  *authz.Resolver
	signer    *authz.Signer
	sessions  *session.Manager
	providers *idp.Registry
	ready     ReadyProbe
	version   string
}

type Config struct {
	Log       *logrus.Logger
	Directory *authz.Directory
	Tokens    *authz.TokenService
	Resolver  *authz.Resolver
	Signer    *authz.Signer
	Sessions  *session.Manager
	Providers *idp.Registry
	Ready     ReadyProbe
	Version   string
}

func New(cfg Config) *API {
	a := &API{
		router:    mux.NewRouter(),
		log:       cfg.Log,
		dir:       cfg.Directory,
		tokens:    cfg.Tokens,
		resolver:  cfg.Resolver,
		signer:    cfg.Signer,
		sessions:  cfg.Sessions,
		providers: cfg.Providers,
		ready:     cfg.Ready,
		version:   cfg.Version,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	// Operational endpoints.
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// Credential validation carries its own proof; no bearer required.
	r.HandleFunc("/o/check_token", a.handleCheckToken).Methods(http.MethodPost)
	r.HandleFunc("/o/check_api_key", a.handleCheckToken).Methods(http.MethodPost)

	// Login and session endpoints.
	r.HandleFunc("/oauth/token/public_key", a.handlePublicKey).Methods(http.MethodGet)
	r.HandleFunc("/oauth/{provider}/token", a.handleProviderLogin).Methods(http.MethodPost)
	r.HandleFunc("/oauth/refresh", a.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/oauth/refresh", a.handleLogout).Methods(http.MethodDelete)

	// Bearer-authenticated endpoints.
	auth := r.NewRoute().Subrouter()
	auth.Use(a.authenticate)
	auth.HandleFunc("/oauth/update-ego-token", a.handleUpdateBearer).Methods(http.MethodGet)
	for _, path := range []string{"/o/token", "/o/api_key"} {
		auth.HandleFunc(path, a.handleIssueToken).Methods(http.MethodPost)
		auth.HandleFunc(path, a.handleListTokens).Methods(http.MethodGet)
		auth.HandleFunc(path, a.handleRevokeToken).Methods(http.MethodDelete)
	}

	// Admin-only directory management.
	admin := r.NewRoute().Subrouter()
	admin.Use(a.authenticate, a.requireAdmin)
	admin.HandleFunc("/o/scopes", a.handleUserScopes).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", a.handleDeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/groups", a.handleCreateGroup).Methods(http.MethodPost)
	admin.HandleFunc("/groups/{id}", a.handleDeleteGroup).Methods(http.MethodDelete)
	admin.HandleFunc("/groups/{id}/members", a.handleAddGroupMember).Methods(http.MethodPost)
	admin.HandleFunc("/groups/{id}/members/{kind}/{memberId}", a.handleRemoveGroupMember).Methods(http.MethodDelete)
	admin.HandleFunc("/applications", a.handleCreateApplication).Methods(http.MethodPost)
	admin.HandleFunc("/applications/{id}", a.handleDeleteApplication).Methods(http.MethodDelete)
	admin.HandleFunc("/policies", a.handleCreatePolicy).Methods(http.MethodPost)
	admin.HandleFunc("/policies/{id}", a.handleDeletePolicy).Methods(http.MethodDelete)
	admin.HandleFunc("/policies/{id}/permission/{kind}/{ownerId}", a.handleUpsertPermission).Methods(http.MethodPut)
	admin.HandleFunc("/policies/{id}/permission/{kind}/{ownerId}", a.handleDeletePermission).Methods(http.MethodDelete)
}

// Handler wraps the router with metrics, rate limiting, request ids and
// security headers.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.rateLimit(requestID(securityHeaders(a.router))))
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ego",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinel errors onto the HTTP status contract.
func (a *API) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, authz.ErrInvalidInput), errors.Is(err, authz.ErrInvalidScope):
		code = http.StatusBadRequest
	case errors.Is(err, authz.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, authz.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, authz.ErrNotFound), errors.Is(err, authz.ErrPolicyNotFound):
		code = http.StatusNotFound
	case errors.Is(err, authz.ErrConflict):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		a.log.WithError(err).Error("request failed")
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", authz.ErrInvalidInput, err)
	}
	return nil
}
