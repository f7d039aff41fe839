package authz

import "context"

// Store describes the persistence operations the engine requires. The single
// shared store is the source of truth; effective-permission results are never
// cached across requests.
type Store interface {
	Users() UserStore
	Groups() GroupStore
	Applications() ApplicationStore
	Policies() PolicyStore
	Permissions() PermissionStore
	Tokens() TokenStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Delete(ctx context.Context, id string) error
}

// GroupStore manages groups and their memberships. Both users and
// applications can be members.
type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	Find(ctx context.Context, id string) (*Group, error)
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID string, member Owner) error
	RemoveMember(ctx context.Context, groupID string, member Owner) error
	Members(ctx context.Context, groupID string) ([]Owner, error)
	GroupsOf(ctx context.Context, member Owner) ([]*Group, error)
}

// ApplicationStore manages service accounts.
type ApplicationStore interface {
	Create(ctx context.Context, a *Application) error
	Find(ctx context.Context, id string) (*Application, error)
	Delete(ctx context.Context, id string) error
}

// PolicyStore manages the policy catalog.
type PolicyStore interface {
	Create(ctx context.Context, p *Policy) error
	Find(ctx context.Context, id string) (*Policy, error)
	FindByName(ctx context.Context, name string) (*Policy, error)
	Delete(ctx context.Context, id string) error
}

// PermissionStore manages the (owner, policy, level) relation.
type PermissionStore interface {
	// Upsert grants owner the level on the policy, replacing an existing
	// grant in place. The previous permission is returned when one existed.
	Upsert(ctx context.Context, p *Permission) (*Permission, error)
	Delete(ctx context.Context, owner Owner, policyID string) (*Permission, error)
	ListByOwner(ctx context.Context, owner Owner) ([]*Permission, error)
	DeleteByOwner(ctx context.Context, owner Owner) ([]*Permission, error)
	DeleteByPolicy(ctx context.Context, policyID string) ([]*Permission, error)
}

// TokenStore manages issued credentials. Implementations must serialize
// same-owner writes (row locks or equivalent) so issuance and reconciliation
// do not race.
type TokenStore interface {
	// Insert persists the token and revokes the superseded token ids within
	// the same unit of work.
	Insert(ctx context.Context, t *Token, supersede []string) error
	FindByHash(ctx context.Context, hash string) (*Token, error)
	ActiveByOwner(ctx context.Context, owner Owner) ([]*Token, error)
	Revoke(ctx context.Context, id string) error
	DeleteByOwner(ctx context.Context, owner Owner) error
	// Owners lists the distinct owners currently holding active tokens,
	// for the periodic reconciliation sweep.
	Owners(ctx context.Context) ([]Owner, error)
}
