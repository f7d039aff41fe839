package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/overture-stack/ego-sub000/internal/audit"
	"github.com/overture-stack/ego-sub000/internal/authz"
)

type tokenResponse struct {
	AccessToken string   `json:"accessToken,omitempty"`
	Prefix      string   `json:"prefix"`
	Scope       []string `json:"scope"`
	Exp         int64    `json:"exp"`
	Description string   `json:"description"`
}

// handleIssueToken mints an opaque credential from form or query params:
// user_id (the requester when absent), scopes (repeatable or comma-joined)
// and description. owner_kind widens user_id to groups and applications.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		a.writeError(w, authz.ErrUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", authz.ErrInvalidInput, err))
		return
	}
	owner, err := requestedOwner(id, r.Form.Get("user_id"), r.Form.Get("owner_kind"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	tok, secret, err := a.tokens.Issue(r.Context(), id, owner, splitScopes(r.Form["scopes"]), r.Form.Get("description"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	audit.Log(r.Context(), "token.issue", map[string]any{
		"owner_kind": tok.Owner.Kind,
		"owner_id":   tok.Owner.ID,
		"scopes":     tok.Scopes,
		"issued_by":  id.Owner.ID,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: secret,
		Prefix:      tok.Prefix,
		Scope:       tok.Scopes,
		Exp:         a.tokens.SecondsToExpiry(tok),
		Description: tok.Description,
	})
}

func (a *API) handleListTokens(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		a.writeError(w, authz.ErrUnauthorized)
		return
	}
	owner, err := requestedOwner(id, r.URL.Query().Get("user_id"), r.URL.Query().Get("owner_kind"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if !id.CanIssueFor(owner) {
		a.writeError(w, authz.ErrForbidden)
		return
	}
	tokens, err := a.tokens.List(r.Context(), owner)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse{
			Prefix:      t.Prefix,
			Scope:       t.Scopes,
			Exp:         a.tokens.SecondsToExpiry(t),
			Description: t.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("apiKey")
	if secret == "" {
		secret = r.URL.Query().Get("token")
	}
	if secret == "" {
		a.writeError(w, fmt.Errorf("%w: apiKey parameter is required", authz.ErrInvalidInput))
		return
	}
	if err := a.tokens.Revoke(r.Context(), secret); err != nil {
		a.writeError(w, err)
		return
	}
	audit.Log(r.Context(), "token.revoke", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleCheckToken answers 207 with the token's owner and frozen scopes when
// the credential is live, 401 otherwise.
func (a *API) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", authz.ErrInvalidInput, err))
		return
	}
	secret := r.PostFormValue("apiKey")
	if secret == "" {
		secret = r.PostFormValue("token")
	}
	tok, err := a.tokens.Check(r.Context(), secret)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusMultiStatus, map[string]any{
		"owner_kind": tok.Owner.Kind,
		"owner_id":   tok.Owner.ID,
		"scope":      tok.Scopes,
		"exp":        a.tokens.SecondsToExpiry(tok),
	})
}

// handleUserScopes reports a user's raw effective scopes by email.
func (a *API) handleUserScopes(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("userName")
	if email == "" {
		a.writeError(w, fmt.Errorf("%w: userName parameter is required", authz.ErrInvalidInput))
		return
	}
	user, err := a.dir.UserByEmail(r.Context(), email)
	if err != nil {
		a.writeError(w, err)
		return
	}
	set, err := a.resolver.EffectiveScopes(r.Context(), user.Owner())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userName": user.Email,
		"scopes":   set.Strings(),
	})
}

func parseOwner(kind, id string) (authz.Owner, error) {
	switch authz.OwnerKind(kind) {
	case authz.OwnerUser, authz.OwnerGroup, authz.OwnerApplication:
		return authz.Owner{Kind: authz.OwnerKind(kind), ID: id}, nil
	default:
		return authz.Owner{}, fmt.Errorf("%w: unknown owner kind %q", authz.ErrInvalidInput, kind)
	}
}

// requestedOwner resolves the user_id/owner_kind params: no user_id means the
// requester itself, a bare user_id means a user.
func requestedOwner(id authz.Identity, userID, kind string) (authz.Owner, error) {
	if userID == "" {
		return id.Owner, nil
	}
	if kind == "" {
		kind = string(authz.OwnerUser)
	}
	return parseOwner(kind, userID)
}

// splitScopes flattens repeated and comma-joined scope values.
func splitScopes(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
