package authz

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/overture-stack/ego-sub000/internal/obs"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

// Reconciler keeps issued tokens consistent with current permissions: after
// any permission-reducing mutation it re-resolves the affected owners and
// revokes every live token whose frozen scopes the owner can no longer back.
//
// Reconciliation is pull-based and idempotent. It derives everything from
// current store state, so overlapping events for the same owner converge on
// the same outcome and a re-run after a partial failure finishes the job.
type Reconciler struct {
	store    Store
	resolver *Resolver
	log      *logrus.Logger
}

func NewReconciler(store Store, resolver *Resolver, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, resolver: resolver, log: log}
}

// HandleEvent maps a mutation event to the set of owners whose tokens may
// have lost backing and reconciles each. Failures are logged and counted but
// never abort the pass; the periodic sweep will retry.
func (r *Reconciler) HandleEvent(ctx context.Context, evt Event) {
	switch e := evt.(type) {
	case PermissionDeleted:
		r.reconcileWithMembers(ctx, e.Owner)
	case PermissionChanged:
		r.reconcileWithMembers(ctx, e.Owner)
	case MembershipChanged:
		// Joining can shrink the set too: an inherited DENY wins the group
		// merge, so both directions get the member re-checked.
		r.reconcile(ctx, e.Member)
	case PolicyDeleted:
		for _, holder := range e.Holders {
			r.reconcileWithMembers(ctx, holder)
		}
	case OwnerDeleted:
		if err := r.store.Tokens().DeleteByOwner(ctx, e.Owner); err != nil {
			r.fail(e.Owner, err)
		}
		for _, m := range e.Members {
			r.reconcile(ctx, m)
		}
	}
}

// reconcileWithMembers reconciles the owner and, when the owner is a group,
// every current member inheriting from it.
func (r *Reconciler) reconcileWithMembers(ctx context.Context, owner Owner) {
	if owner.Kind == OwnerGroup {
		r.reconcileMembers(ctx, owner.ID)
		return
	}
	r.reconcile(ctx, owner)
}

func (r *Reconciler) reconcileMembers(ctx context.Context, groupID string) {
	members, err := r.store.Groups().Members(ctx, groupID)
	if err != nil {
		r.log.WithError(err).WithField("group_id", groupID).
			Error("cascade: list group members")
		obs.ReconciliationFailed()
		return
	}
	for _, m := range members {
		r.reconcile(ctx, m)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, owner Owner) {
	if err := r.Reconcile(ctx, owner); err != nil {
		r.fail(owner, err)
	}
}

// Reconcile revokes the owner's live tokens whose scopes exceed the owner's
// current expanded effective set. Tokens fully covered survive untouched; a
// token is never narrowed in place.
func (r *Reconciler) Reconcile(ctx context.Context, owner Owner) error {
	obs.ReconciliationRun()

	effective, err := r.resolver.EffectiveScopes(ctx, owner)
	if err != nil {
		return err
	}
	tokens, err := r.store.Tokens().ActiveByOwner(ctx, owner)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.Revoked {
			continue
		}
		if scope.Satisfies(effective, t.ScopeSet()) {
			continue
		}
		if err := r.store.Tokens().Revoke(ctx, t.ID); err != nil {
			return err
		}
		obs.TokenRevoked(obs.RevokeReasonCascade)
		r.log.WithFields(logrus.Fields{
			"token_id":   t.ID,
			"owner_kind": t.Owner.Kind,
			"owner_id":   t.Owner.ID,
		}).Info("cascade: revoked token exceeding effective permissions")
	}
	return nil
}

func (r *Reconciler) fail(owner Owner, err error) {
	r.log.WithError(err).WithFields(logrus.Fields{
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
	}).Error("cascade: reconciliation failed")
	obs.ReconciliationFailed()
}
