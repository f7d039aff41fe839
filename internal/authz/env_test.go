package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/scope"
	"github.com/overture-stack/ego-sub000/internal/store/mem"
)

// env wires a full in-memory engine: directory mutations publish events, the
// reconciler listens, and the token service issues against the resolver.
type env struct {
	store     *mem.Store
	dir       *authz.Directory
	resolver  *authz.Resolver
	tokens    *authz.TokenService
	reconcile *authz.Reconciler
	bus       *authz.Bus
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := mem.New()
	bus := authz.NewBus()
	resolver := authz.NewResolver(store)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	e := &env{
		store:     store,
		dir:       authz.NewDirectory(store, bus),
		resolver:  resolver,
		reconcile: authz.NewReconciler(store, resolver, log),
		bus:       bus,
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	e.tokens = authz.NewTokenService(store, resolver,
		authz.WithTokenTTL(24*time.Hour),
		authz.WithClock(func() time.Time { return e.now }),
	)
	bus.Subscribe(e.reconcile)
	return e
}

func (e *env) user(t *testing.T, email string) *authz.User {
	t.Helper()
	u, err := e.dir.CreateUser(context.Background(), email, email, "GOOGLE", authz.UserTypeUser)
	require.NoError(t, err)
	return u
}

func (e *env) group(t *testing.T, name string) *authz.Group {
	t.Helper()
	g, err := e.dir.CreateGroup(context.Background(), name, "")
	require.NoError(t, err)
	return g
}

func (e *env) policy(t *testing.T, name string) *authz.Policy {
	t.Helper()
	p, err := e.dir.CreatePolicy(context.Background(), name)
	require.NoError(t, err)
	return p
}

func (e *env) grant(t *testing.T, owner authz.Owner, policyID string, level scope.AccessLevel) {
	t.Helper()
	_, err := e.dir.UpsertPermission(context.Background(), owner, policyID, level)
	require.NoError(t, err)
}

func (e *env) join(t *testing.T, groupID string, member authz.Owner) {
	t.Helper()
	require.NoError(t, e.dir.AddGroupMember(context.Background(), groupID, member))
}

// issue mints a self-issued token for the owner.
func (e *env) issue(t *testing.T, owner authz.Owner, scopes ...string) (*authz.Token, string) {
	t.Helper()
	tok, secret, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: owner}, owner, scopes, "test")
	require.NoError(t, err)
	return tok, secret
}

func (e *env) effective(t *testing.T, owner authz.Owner) []string {
	t.Helper()
	set, err := e.resolver.EffectiveScopes(context.Background(), owner)
	require.NoError(t, err)
	return set.Strings()
}
