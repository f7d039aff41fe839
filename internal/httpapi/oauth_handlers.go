package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/overture-stack/ego-sub000/internal/audit"
	"github.com/overture-stack/ego-sub000/internal/authz"
)

const refreshCookie = "refreshId"

type loginRequest struct {
	Token string `json:"token"`
}

// handleProviderLogin exchanges an identity-provider credential for a signed
// bearer and a refresh cookie. Unknown accounts are created on first login.
func (a *API) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := a.providers.Get(mux.Vars(r)["provider"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	profile, err := provider.Validate(r.Context(), req.Token)
	if err != nil {
		a.writeError(w, err)
		return
	}
	user, err := a.dir.EnsureUser(r.Context(), profile.Name, profile.Email, profile.Provider)
	if err != nil {
		a.writeError(w, err)
		return
	}
	set, err := a.resolver.EffectiveScopes(r.Context(), user.Owner())
	if err != nil {
		a.writeError(w, err)
		return
	}
	bearer, claims, err := a.signer.Mint(user.ID, set.Strings(), user.Type == authz.UserTypeAdmin)
	if err != nil {
		a.writeError(w, err)
		return
	}
	refreshID, err := a.sessions.Create(r.Context(), claims)
	if err != nil {
		a.writeError(w, err)
		return
	}
	audit.Log(r.Context(), "login", map[string]any{
		"provider": profile.Provider,
		"user_id":  user.ID,
	})
	a.setRefreshCookie(w, refreshID, claims.ExpiresAt.Time)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": bearer})
}

// handleRefresh consumes the refresh cookie and rotates both the bearer and
// the cookie. The new bearer keeps the original absolute expiry.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		a.writeError(w, fmt.Errorf("%w: missing refresh cookie", authz.ErrUnauthorized))
		return
	}
	bearer := bearerToken(r)
	if bearer == "" {
		a.writeError(w, authz.ErrUnauthorized)
		return
	}
	newBearer, newRefreshID, err := a.sessions.Refresh(r.Context(), cookie.Value, bearer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	claims, err := a.signer.Verify(r.Context(), newBearer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.setRefreshCookie(w, newRefreshID, claims.ExpiresAt.Time)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": newBearer})
}

// handleLogout drops the refresh context; repeating it is harmless.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		if err := a.sessions.Delete(r.Context(), cookie.Value); err != nil {
			a.writeError(w, err)
			return
		}
	}
	a.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleUpdateBearer re-issues the caller's bearer with current permissions,
// keeping the original absolute expiry.
func (a *API) handleUpdateBearer(w http.ResponseWriter, r *http.Request) {
	newBearer, refreshID, err := a.sessions.Renew(r.Context(), bearerToken(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	claims, err := a.signer.Verify(r.Context(), newBearer)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.setRefreshCookie(w, refreshID, claims.ExpiresAt.Time)
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": newBearer})
}

func (a *API) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.signer.PublicKeyPEM())
}

func (a *API) setRefreshCookie(w http.ResponseWriter, refreshID string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refreshID,
		Path:     "/oauth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
