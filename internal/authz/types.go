// Package authz is the permission-resolution and token-lifecycle engine:
// it computes an identity's effective scopes from direct and group-inherited
// permissions, issues and validates credentials against that set, and keeps
// already-issued credentials consistent as permission state changes.
package authz

import (
	"time"

	"github.com/overture-stack/ego-sub000/internal/scope"
)

// OwnerKind tags the aggregate a permission or token belongs to.
type OwnerKind string

const (
	OwnerUser        OwnerKind = "USER"
	OwnerGroup       OwnerKind = "GROUP"
	OwnerApplication OwnerKind = "APPLICATION"
)

// Owner identifies a permission/token holder without committing to a concrete
// entity type: a kind tag plus an opaque id, resolved against the matching
// store at read time.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// UserType distinguishes administrators from regular users.
type UserType string

const (
	UserTypeUser  UserType = "USER"
	UserTypeAdmin UserType = "ADMIN"
)

// ApplicationType distinguishes admin-type applications, which may issue
// tokens on behalf of any owner, from plain clients.
type ApplicationType string

const (
	ApplicationTypeClient ApplicationType = "CLIENT"
	ApplicationTypeAdmin  ApplicationType = "ADMIN"
)

const (
	StatusApproved = "APPROVED"
	StatusDisabled = "DISABLED"
)

// User is a human account bootstrapped from an identity provider login.
type User struct {
	ID        string
	Name      string
	Email     string
	Type      UserType
	Status    string
	Provider  string
	CreatedAt time.Time
}

func (u *User) Owner() Owner { return Owner{Kind: OwnerUser, ID: u.ID} }

// Group collects users and applications so permissions can be granted once
// and inherited by every member.
type Group struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
}

func (g *Group) Owner() Owner { return Owner{Kind: OwnerGroup, ID: g.ID} }

// Application is a service account.
type Application struct {
	ID        string
	Name      string
	Type      ApplicationType
	Status    string
	CreatedAt time.Time
}

func (a *Application) Owner() Owner { return Owner{Kind: OwnerApplication, ID: a.ID} }

// Policy names a protected resource domain. Deleting a policy cascades into
// deleting every permission that references it.
type Policy struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Permission grants an owner one access level on one policy. At most one
// permission exists per (owner, policy); regranting replaces the level.
type Permission struct {
	ID        string
	Owner     Owner
	PolicyID  string
	Level     scope.AccessLevel
	CreatedAt time.Time
}

// Token is an issued credential: a bearer API key binding an owner to the
// scope set frozen at issuance time. Only the revoked flag mutates after
// creation; a scope change means issuing a new token.
type Token struct {
	ID          string
	Hash        string
	Prefix      string
	Owner       Owner
	Scopes      []string
	Description string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
}

// Live reports whether the token is neither revoked nor expired at now.
func (t *Token) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// ScopeSet parses the frozen scope strings. Stored scopes were validated at
// issuance, so parse failures here indicate corruption and are skipped.
func (t *Token) ScopeSet() scope.Set {
	set := scope.NewSet()
	for _, raw := range t.Scopes {
		if sc, err := scope.Parse(raw); err == nil {
			set.Add(sc)
		}
	}
	return set
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	Owner Owner
	Admin bool
}

// CanIssueFor reports whether the identity may issue tokens owned by owner:
// admins and admin-type applications may issue for anyone, everyone else
// only for themselves.
func (i Identity) CanIssueFor(owner Owner) bool {
	return i.Admin || i.Owner == owner
}
