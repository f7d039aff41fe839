package authz

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/overture-stack/ego-sub000/internal/ids"
	"github.com/overture-stack/ego-sub000/internal/obs"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

const (
	// tokenPrefix identifies credentials issued by this service.
	tokenPrefix = "ego_"
	tokenBytes  = 32

	defaultTokenTTL = 365 * 24 * time.Hour
)

// TokenService issues, validates, lists and revokes bearer credentials.
type TokenService struct {
	store    Store
	resolver *Resolver
	ttl      time.Duration
	now      func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithTokenTTL overrides the issued-token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewTokenService(store Store, resolver *Resolver, opts ...TokenOption) *TokenService {
	s := &TokenService{
		store:    store,
		resolver: resolver,
		ttl:      defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a credential for owner carrying exactly the requested scopes.
//
// The requester must be an admin, the owner itself, or an admin-type
// application. Every requested scope must parse and name a known policy, and
// the whole batch must be covered by the owner's expanded effective set —
// any failure aborts the batch with nothing issued. A request exceeding the
// effective set fails with ErrForbidden.
//
// Other active tokens of the same owner whose scope sets are subsumed by the
// new token are revoked in the same unit of work.
func (s *TokenService) Issue(ctx context.Context, requester Identity, owner Owner, scopeStrings []string, description string) (*Token, string, error) {
	if !requester.CanIssueFor(owner) {
		return nil, "", fmt.Errorf("%w: requester may not issue tokens for this owner", ErrForbidden)
	}
	if len(scopeStrings) == 0 {
		return nil, "", fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}

	requested := scope.NewSet()
	frozen := make([]string, 0, len(scopeStrings))
	for _, raw := range scopeStrings {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		sc, err := scope.Parse(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
		if sc.Level == scope.Deny {
			return nil, "", fmt.Errorf("%w: DENY is not a grantable level", ErrInvalidScope)
		}
		if _, err := s.store.Policies().FindByName(ctx, sc.Policy); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, "", fmt.Errorf("%w: %s", ErrPolicyNotFound, sc.Policy)
			}
			return nil, "", err
		}
		if !requested.Contains(sc) {
			requested.Add(sc)
			frozen = append(frozen, raw)
		}
	}
	if len(requested) == 0 {
		return nil, "", fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}

	effective, err := s.resolver.EffectiveScopes(ctx, owner)
	if err != nil {
		return nil, "", err
	}
	if !scope.Satisfies(effective, requested) {
		return nil, "", fmt.Errorf("%w: requested scopes exceed effective permissions", ErrForbidden)
	}

	secret, hash, prefix, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	tok := &Token{
		ID:          ids.New(),
		Hash:        hash,
		Prefix:      prefix,
		Owner:       owner,
		Scopes:      frozen,
		Description: description,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}

	supersede, err := s.subsumedTokenIDs(ctx, owner, requested)
	if err != nil {
		return nil, "", err
	}

	if err := s.store.Tokens().Insert(ctx, tok, supersede); err != nil {
		return nil, "", err
	}
	obs.TokenIssued()
	for range supersede {
		obs.TokenRevoked(obs.RevokeReasonSuperseded)
	}
	return tok, secret, nil
}

// subsumedTokenIDs returns the owner's live tokens whose scope sets are
// non-strict subsets of the new token's scopes; their grants become redundant
// the moment the new token exists.
func (s *TokenService) subsumedTokenIDs(ctx context.Context, owner Owner, requested scope.Set) ([]string, error) {
	active, err := s.store.Tokens().ActiveByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []string
	for _, t := range active {
		if !t.Live(now) {
			continue
		}
		if t.ScopeSet().SubsetOf(requested) {
			out = append(out, t.ID)
		}
	}
	return out, nil
}

// Check resolves a presented credential. Unknown, revoked and expired tokens
// all fail with ErrUnauthorized; a live token is returned with its frozen
// scopes and owner.
func (s *TokenService) Check(ctx context.Context, raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrUnauthorized
	}
	tok, err := s.store.Tokens().FindByHash(ctx, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !tok.Live(s.now()) {
		return nil, ErrUnauthorized
	}
	return tok, nil
}

// List returns the owner's live tokens; revoked tokens are excluded, not
// merely flagged.
func (s *TokenService) List(ctx context.Context, owner Owner) ([]*Token, error) {
	active, err := s.store.Tokens().ActiveByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*Token, 0, len(active))
	for _, t := range active {
		if t.Live(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Revoke invalidates a presented credential. Revoking an unknown or
// already-revoked token is a no-op, so batch revokes never abort midway.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	tok, err := s.store.Tokens().FindByHash(ctx, HashToken(strings.TrimSpace(raw)))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if tok.Revoked {
		return nil
	}
	if err := s.store.Tokens().Revoke(ctx, tok.ID); err != nil {
		return err
	}
	obs.TokenRevoked(obs.RevokeReasonRequest)
	return nil
}

// SecondsToExpiry reports the remaining lifetime the wire format uses.
func (s *TokenService) SecondsToExpiry(t *Token) int64 {
	d := t.ExpiresAt.Sub(s.now())
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// generateToken mints an opaque credential "ego_<base64url(32 bytes)>" and
// returns the secret, its sha256 hex hash for storage, and a short display
// prefix for listings.
func generateToken() (secret, hash, prefix string, err error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generate token: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	secret = tokenPrefix + encoded
	prefix = tokenPrefix + encoded[:8]
	return secret, HashToken(secret), prefix, nil
}

// HashToken computes the storage hash for a presented credential.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
