package authz

import (
	"context"
	"errors"

	"github.com/overture-stack/ego-sub000/internal/scope"
)

// Resolver computes an owner's effective scope set from direct and
// group-inherited permissions. Resolution never fails on data problems: a
// stale permission referencing a deleted policy is skipped, producing a
// smaller set rather than an error.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// EffectiveScopes resolves the owner's raw effective scope set. Callers doing
// satisfaction checks must expand the result themselves; the raw set is what
// the /scopes endpoint reports.
//
// Precedence: a direct permission on a policy always overrides any
// group-inherited permission on the same policy, regardless of level — the
// direct grant is the more specific statement of intent. Among conflicting
// group grants, DENY beats everything and WRITE beats READ.
func (r *Resolver) EffectiveScopes(ctx context.Context, owner Owner) (scope.Set, error) {
	direct, err := r.levelsByPolicy(ctx, owner)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]scope.AccessLevel, len(direct))
	for policyID, level := range direct {
		merged[policyID] = level
	}

	// Groups hold only direct permissions; they inherit from nothing.
	if owner.Kind != OwnerGroup {
		groups, err := r.store.Groups().GroupsOf(ctx, owner)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			inherited, err := r.levelsByPolicy(ctx, g.Owner())
			if err != nil {
				return nil, err
			}
			for policyID, level := range inherited {
				if _, isDirect := direct[policyID]; isDirect {
					continue
				}
				if current, ok := merged[policyID]; ok {
					merged[policyID] = mergeGroupLevels(current, level)
				} else {
					merged[policyID] = level
				}
			}
		}
	}

	set := scope.NewSet()
	for policyID, level := range merged {
		policy, err := r.store.Policies().Find(ctx, policyID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		set.Add(scope.Scope{Policy: policy.Name, Level: level})
	}
	return set, nil
}

func (r *Resolver) levelsByPolicy(ctx context.Context, owner Owner) (map[string]scope.AccessLevel, error) {
	perms, err := r.store.Permissions().ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make(map[string]scope.AccessLevel, len(perms))
	for _, p := range perms {
		out[p.PolicyID] = p.Level
	}
	return out, nil
}

// mergeGroupLevels resolves two group grants on the same policy: most
// restrictive first (DENY wins), then most permissive among the rest
// (WRITE beats READ).
func mergeGroupLevels(a, b scope.AccessLevel) scope.AccessLevel {
	if a == scope.Deny || b == scope.Deny {
		return scope.Deny
	}
	if a == scope.Write || b == scope.Write {
		return scope.Write
	}
	return scope.Read
}
