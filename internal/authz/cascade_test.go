package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

func checkLive(t *testing.T, e *env, secret string) error {
	t.Helper()
	_, err := e.tokens.Check(context.Background(), secret)
	return err
}

func TestCascadePermissionDeleteRevokesUnbackedToken(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Read)

	_, songSecret := e.issue(t, u.Owner(), "song.WRITE")
	_, scoreSecret := e.issue(t, u.Owner(), "score.READ")

	require.NoError(t, e.dir.DeletePermission(context.Background(), u.Owner(), song.ID))

	assert.ErrorIs(t, checkLive(t, e, songSecret), authz.ErrUnauthorized)
	assert.NoError(t, checkLive(t, e, scoreSecret), "still-covered token survives")
}

func TestCascadeDowngradeRevokesWriteToken(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, writeSecret := e.issue(t, u.Owner(), "song.WRITE")
	_, readSecret := e.issue(t, u.Owner(), "song.READ")

	// WRITE -> READ: the WRITE token loses backing, the READ token keeps it.
	e.grant(t, u.Owner(), song.ID, scope.Read)

	assert.ErrorIs(t, checkLive(t, e, writeSecret), authz.ErrUnauthorized)
	assert.NoError(t, checkLive(t, e, readSecret))
}

func TestCascadeDowngradeToDenyRevokesEverything(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, readSecret := e.issue(t, u.Owner(), "song.READ")

	e.grant(t, u.Owner(), song.ID, scope.Deny)

	assert.ErrorIs(t, checkLive(t, e, readSecret), authz.ErrUnauthorized)
}

func TestCascadeDirectDeleteFallsBackToGroupGrant(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	g := e.group(t, "readers")
	song := e.policy(t, "song")

	e.join(t, g.ID, u.Owner())
	e.grant(t, g.Owner(), song.ID, scope.Read)
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, writeSecret := e.issue(t, u.Owner(), "song.WRITE")
	_, readSecret := e.issue(t, u.Owner(), "song.READ")

	// Dropping the direct WRITE leaves group READ: the WRITE token dies,
	// the READ token lives on via inheritance.
	require.NoError(t, e.dir.DeletePermission(context.Background(), u.Owner(), song.ID))

	assert.ErrorIs(t, checkLive(t, e, writeSecret), authz.ErrUnauthorized)
	assert.NoError(t, checkLive(t, e, readSecret))
}

func TestCascadeGroupPermissionDeleteReconcilesMembers(t *testing.T) {
	e := newEnv(t)
	alice := e.user(t, "alice@example.org")
	bob := e.user(t, "bob@example.org")
	g := e.group(t, "writers")
	song := e.policy(t, "song")

	e.join(t, g.ID, alice.Owner())
	e.join(t, g.ID, bob.Owner())
	e.grant(t, g.Owner(), song.ID, scope.Write)
	e.grant(t, bob.Owner(), song.ID, scope.Write)

	_, aliceSecret := e.issue(t, alice.Owner(), "song.WRITE")
	_, bobSecret := e.issue(t, bob.Owner(), "song.WRITE")

	require.NoError(t, e.dir.DeletePermission(context.Background(), g.Owner(), song.ID))

	assert.ErrorIs(t, checkLive(t, e, aliceSecret), authz.ErrUnauthorized)
	assert.NoError(t, checkLive(t, e, bobSecret), "bob's direct grant still backs his token")
}

func TestCascadeMembershipRemoval(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	g := e.group(t, "writers")
	song := e.policy(t, "song")

	e.join(t, g.ID, u.Owner())
	e.grant(t, g.Owner(), song.ID, scope.Write)

	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	require.NoError(t, e.dir.RemoveGroupMember(context.Background(), g.ID, u.Owner()))

	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}

func TestCascadeBenignMembershipAddKeepsToken(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	g := e.group(t, "readers")
	song := e.policy(t, "song")

	e.grant(t, u.Owner(), song.ID, scope.Read)
	_, secret := e.issue(t, u.Owner(), "song.READ")

	e.grant(t, g.Owner(), song.ID, scope.Read)
	e.join(t, g.ID, u.Owner())

	assert.NoError(t, checkLive(t, e, secret), "an add that does not shrink the set revokes nothing")
}

func TestCascadeJoiningDenyGroupRevokes(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	writers := e.group(t, "writers")
	banned := e.group(t, "banned")
	song := e.policy(t, "song")

	e.join(t, writers.ID, u.Owner())
	e.grant(t, writers.Owner(), song.ID, scope.Write)
	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	// DENY wins the group merge, so this add shrinks the effective set.
	e.grant(t, banned.Owner(), song.ID, scope.Deny)
	e.join(t, banned.ID, u.Owner())

	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}

func TestCascadePolicyDeleteRevokesHolders(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Read)

	_, songSecret := e.issue(t, u.Owner(), "song.WRITE")
	_, scoreSecret := e.issue(t, u.Owner(), "score.READ")

	require.NoError(t, e.dir.DeletePolicy(context.Background(), song.ID))

	assert.ErrorIs(t, checkLive(t, e, songSecret), authz.ErrUnauthorized)
	assert.NoError(t, checkLive(t, e, scoreSecret))
}

func TestCascadePolicyDeleteReachesGroupMembers(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	g := e.group(t, "writers")
	song := e.policy(t, "song")

	e.join(t, g.ID, u.Owner())
	e.grant(t, g.Owner(), song.ID, scope.Write)

	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	require.NoError(t, e.dir.DeletePolicy(context.Background(), song.ID))

	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}

func TestCascadeOwnerDeletePurgesTokens(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	require.NoError(t, e.dir.DeleteUser(context.Background(), u.ID))

	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}

func TestCascadeGroupDeleteReconcilesMembers(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	g := e.group(t, "writers")
	song := e.policy(t, "song")

	e.join(t, g.ID, u.Owner())
	e.grant(t, g.Owner(), song.ID, scope.Write)

	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	require.NoError(t, e.dir.DeleteGroup(context.Background(), g.ID))

	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}

func TestReconcileIsIdempotent(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	score := e.policy(t, "score")
	e.grant(t, u.Owner(), song.ID, scope.Write)
	e.grant(t, u.Owner(), score.ID, scope.Read)

	_, secret := e.issue(t, u.Owner(), "score.READ")

	ctx := context.Background()
	require.NoError(t, e.reconcile.Reconcile(ctx, u.Owner()))
	require.NoError(t, e.reconcile.Reconcile(ctx, u.Owner()))

	assert.NoError(t, checkLive(t, e, secret), "reconciling a consistent owner changes nothing")
}

func TestSweepCatchesDrift(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "alice@example.org")
	song := e.policy(t, "song")
	e.grant(t, u.Owner(), song.ID, scope.Write)

	_, secret := e.issue(t, u.Owner(), "song.WRITE")

	// Remove the permission behind the directory's back; no event fires.
	ctx := context.Background()
	_, err := e.store.Permissions().Delete(ctx, u.Owner(), song.ID)
	require.NoError(t, err)
	assert.NoError(t, checkLive(t, e, secret), "no event, token still live")

	require.NoError(t, e.reconcile.Reconcile(ctx, u.Owner()))
	assert.ErrorIs(t, checkLive(t, e, secret), authz.ErrUnauthorized)
}
