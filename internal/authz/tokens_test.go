package authz_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

func TestIssueAndCheck(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	tok, secret := e.issue(t, u.Owner(), "song.WRITE")
	assert.True(t, strings.HasPrefix(secret, "ego_"))
	assert.Equal(t, []string{"song.WRITE"}, tok.Scopes)
	assert.Equal(t, e.now.Add(24*time.Hour), tok.ExpiresAt)

	got, err := e.tokens.Check(context.Background(), secret)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, u.Owner(), got.Owner)
	assert.Equal(t, []string{"song.WRITE"}, got.Scopes)
}

func TestIssueForbiddenForOtherOwner(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice@example.org")
	bob := e.user(t, "bob@example.org")
	song := e.policy(t, "song")
	e.grant(t, bob.Owner(), song.ID, scope.Write)

	_, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: alice.Owner()}, bob.Owner(), []string{"song.WRITE"}, "")
	assert.ErrorIs(t, err, authz.ErrForbidden)
}

func TestIssueAdminCanIssueForAnyone(t *testing.T) {
	e := newEnv(t)
	admin := e.user(t, "admin@example.org")
	bob := e.user(t, "bob@example.org")
	song := e.policy(t, "song")
	e.grant(t, bob.Owner(), song.ID, scope.Read)

	tok, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: admin.Owner(), Admin: true}, bob.Owner(), []string{"song.READ"}, "")
	require.NoError(t, err)
	assert.Equal(t, bob.Owner(), tok.Owner)
}

func TestIssueRejectsMalformedScope(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")

	_, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: u.Owner()}, u.Owner(), []string{"no-dot-here"}, "")
	assert.ErrorIs(t, err, authz.ErrInvalidScope)

	_, _, err = e.tokens.Issue(context.Background(),
		authz.Identity{Owner: u.Owner()}, u.Owner(), []string{"song.write"}, "")
	assert.ErrorIs(t, err, authz.ErrInvalidScope, "level names are case-sensitive")
}

func TestIssueRejectsUnknownPolicy(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")

	_, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: u.Owner()}, u.Owner(), []string{"ghost.READ"}, "")
	assert.ErrorIs(t, err, authz.ErrPolicyNotFound)
}

func TestIssueRejectsOverPrivilegedRequest(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Read)

	// One bad scope fails the whole batch.
	_, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: u.Owner()}, u.Owner(),
		[]string{"song.WRITE", "score.WRITE"}, "")
	assert.ErrorIs(t, err, authz.ErrForbidden)

	live, err := e.tokens.List(context.Background(), u.Owner())
	require.NoError(t, err)
	assert.Empty(t, live, "nothing issued when a batch fails")
}

func TestIssueWriteCoversReadRequest(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	tok, _ := e.issue(t, u.Owner(), "song.READ")
	assert.Equal(t, []string{"song.READ"}, tok.Scopes, "token carries the requested level, not the effective one")
}

func TestIssueDenyGrantsNothing(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Deny)

	_, _, err := e.tokens.Issue(context.Background(),
		authz.Identity{Owner: u.Owner()}, u.Owner(), []string{"song.READ"}, "")
	assert.ErrorIs(t, err, authz.ErrForbidden)
}

func TestIssueSupersedesSubsetTokens(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Write)

	narrow, narrowSecret := e.issue(t, u.Owner(), "song.WRITE")
	other, _ := e.issue(t, u.Owner(), "score.WRITE")

	wide, _ := e.issue(t, u.Owner(), "song.WRITE", "score.WRITE")

	// Both earlier tokens are subsets of the wide one and get revoked.
	_, err := e.tokens.Check(context.Background(), narrowSecret)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	live, err := e.tokens.List(context.Background(), u.Owner())
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, wide.ID, live[0].ID)
	assert.NotEqual(t, narrow.ID, live[0].ID)
	assert.NotEqual(t, other.ID, live[0].ID)
}

func TestIssueKeepsNonSubsetTokens(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Write)

	e.issue(t, u.Owner(), "score.WRITE")
	e.issue(t, u.Owner(), "song.WRITE")

	live, err := e.tokens.List(context.Background(), u.Owner())
	require.NoError(t, err)
	assert.Len(t, live, 2, "overlap is not subsumption")
}

func TestIssueIdenticalScopesSupersedes(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, firstSecret := e.issue(t, u.Owner(), "song.WRITE")
	second, _ := e.issue(t, u.Owner(), "song.WRITE")

	_, err := e.tokens.Check(context.Background(), firstSecret)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	live, err := e.tokens.List(context.Background(), u.Owner())
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, second.ID, live[0].ID)
}

func TestCheckExpiredToken(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Read)

	_, secret := e.issue(t, u.Owner(), "song.READ")

	e.now = e.now.Add(24*time.Hour + time.Second)
	_, err := e.tokens.Check(context.Background(), secret)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	live, err := e.tokens.List(context.Background(), u.Owner())
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestCheckUnknownToken(t *testing.T) {
	e := newEnv(t)
	_, err := e.tokens.Check(context.Background(), "ego_bogus")
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	_, err = e.tokens.Check(context.Background(), "")
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}

func TestRevokeIsIdempotent(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Read)

	_, secret := e.issue(t, u.Owner(), "song.READ")

	require.NoError(t, e.tokens.Revoke(context.Background(), secret))
	require.NoError(t, e.tokens.Revoke(context.Background(), secret))
	require.NoError(t, e.tokens.Revoke(context.Background(), "ego_never-existed"))

	_, err := e.tokens.Check(context.Background(), secret)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)
}
