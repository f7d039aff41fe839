package httpapi

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/overture-stack/ego-sub000/internal/audit"
	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/ids"
)

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the authenticated caller placed by the authenticate
// middleware.
func identityFrom(ctx context.Context) (authz.Identity, bool) {
	id, ok := ctx.Value(identityKey).(authz.Identity)
	return id, ok
}

// authenticate verifies the Authorization bearer as a signed JWT and attaches
// the caller's identity to the request context. Bearers are only minted for
// users; applications hold issued credentials but never authenticate here.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			a.writeError(w, authz.ErrUnauthorized)
			return
		}
		claims, err := a.signer.Verify(r.Context(), raw)
		if err != nil {
			a.writeError(w, err)
			return
		}
		id := authz.Identity{
			Owner: authz.Owner{Kind: authz.OwnerUser, ID: claims.Subject},
			Admin: claims.Admin,
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects non-admin identities. Runs after authenticate.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			a.writeError(w, authz.ErrUnauthorized)
			return
		}
		if !id.Admin {
			a.writeError(w, authz.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// rateLimit applies a process-wide request budget. Bursts absorb normal
// traffic spikes; sustained overload gets 429s.
func (a *API) rateLimit(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(200), 400)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID propagates or assigns a request identifier for audit entries.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = ids.New()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), rid)))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
