// Package session manages single-use refresh contexts in redis. A refresh
// context pairs a random id (delivered to the browser as a cookie) with the
// bearer it may refresh; redis TTLs bound every context by the bearer's
// absolute expiry, so refreshing can rotate bearers but never extend the
// session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

const keyPrefix = "refresh:"

// Context is the stored refresh state for one bearer.
type Context struct {
	ID        string    `json:"id"`
	Subject   string    `json:"sub"`
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

// Manager creates, consumes and deletes refresh contexts, minting replacement
// bearers from current permission state.
type Manager struct {
	client   *redis.Client
	signer   *authz.Signer
	resolver *authz.Resolver
	store    authz.Store
	now      func() time.Time
}

func NewManager(client *redis.Client, signer *authz.Signer, resolver *authz.Resolver, store authz.Store) *Manager {
	return &Manager{
		client:   client,
		signer:   signer,
		resolver: resolver,
		store:    store,
		now:      time.Now,
	}
}

// Create stores a refresh context for the verified bearer claims and returns
// its id. The redis TTL matches the bearer's remaining lifetime; an
// already-expired bearer gets no context.
func (m *Manager) Create(ctx context.Context, claims *authz.Claims) (string, error) {
	expiresAt := claims.ExpiresAt.Time
	ttl := expiresAt.Sub(m.now())
	if ttl <= 0 {
		return "", fmt.Errorf("%w: bearer already expired", authz.ErrUnauthorized)
	}
	rc := Context{
		ID:        uuid.NewString(),
		Subject:   claims.Subject,
		JTI:       claims.ID,
		ExpiresAt: expiresAt,
	}
	payload, err := json.Marshal(rc)
	if err != nil {
		return "", err
	}
	if err := m.client.Set(ctx, keyPrefix+rc.ID, payload, ttl).Err(); err != nil {
		return "", fmt.Errorf("store refresh context: %w", err)
	}
	return rc.ID, nil
}

// Refresh consumes the context and mints a replacement bearer carrying the
// subject's CURRENT effective scopes, expiring at the original bearer's
// absolute expiry. A fresh context for the new bearer is created in its
// place.
//
// The context is single-use: of two concurrent refreshes with the same id,
// exactly one wins and the other fails with ErrNotFound.
func (m *Manager) Refresh(ctx context.Context, refreshID, bearer string) (newBearer, newRefreshID string, err error) {
	claims, err := m.signer.Verify(ctx, bearer)
	if err != nil {
		return "", "", err
	}

	key := keyPrefix + refreshID
	payload, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", "", fmt.Errorf("%w: refresh context", authz.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("load refresh context: %w", err)
	}
	var rc Context
	if err := json.Unmarshal(payload, &rc); err != nil {
		return "", "", fmt.Errorf("decode refresh context: %w", err)
	}
	if rc.Subject != claims.Subject {
		return "", "", fmt.Errorf("%w: refresh context belongs to another subject", authz.ErrForbidden)
	}

	// Claim the context atomically; a zero delete count means somebody else
	// already used it.
	deleted, err := m.client.Del(ctx, key).Result()
	if err != nil {
		return "", "", fmt.Errorf("consume refresh context: %w", err)
	}
	if deleted == 0 {
		return "", "", fmt.Errorf("%w: refresh context already used", authz.ErrNotFound)
	}

	newBearer, newClaims, err := m.mint(ctx, claims.Subject, m.now(), rc.ExpiresAt)
	if err != nil {
		return "", "", err
	}
	newRefreshID, err = m.Create(ctx, newClaims)
	if err != nil {
		return "", "", err
	}
	return newBearer, newRefreshID, nil
}

// Renew re-issues the presented bearer with current permission state and a
// new refresh context. Used when a client explicitly asks for updated claims
// (for example after a permission grant). The replacement keeps the presented
// bearer's absolute expiry; only the refresh flow's rotation rules decide how
// long a session lives.
func (m *Manager) Renew(ctx context.Context, bearer string) (newBearer, refreshID string, err error) {
	claims, err := m.signer.Verify(ctx, bearer)
	if err != nil {
		return "", "", err
	}
	newBearer, newClaims, err := m.mint(ctx, claims.Subject, m.now(), claims.ExpiresAt.Time)
	if err != nil {
		return "", "", err
	}
	refreshID, err = m.Create(ctx, newClaims)
	if err != nil {
		return "", "", err
	}
	return newBearer, refreshID, nil
}

// Delete removes the context; missing ids are a no-op so logout is
// idempotent.
func (m *Manager) Delete(ctx context.Context, refreshID string) error {
	if refreshID == "" {
		return nil
	}
	return m.client.Del(ctx, keyPrefix+refreshID).Err()
}

// mint signs a bearer for the user carrying their current raw effective
// scopes and admin flag.
func (m *Manager) mint(ctx context.Context, subject string, issuedAt, expiresAt time.Time) (string, *authz.Claims, error) {
	user, err := m.store.Users().Find(ctx, subject)
	if errors.Is(err, authz.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: subject no longer exists", authz.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, err
	}
	effective, err := m.resolver.EffectiveScopes(ctx, user.Owner())
	if err != nil {
		return "", nil, err
	}
	admin := user.Type == authz.UserTypeAdmin
	raw, claims, err := m.signer.Sign(subject, effective.Strings(), admin, issuedAt, expiresAt)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}
