package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/overture-stack/ego-sub000/internal/ids"
	"github.com/overture-stack/ego-sub000/internal/scope"
)

// Directory manages users, groups, applications, policies, permissions and
// memberships, and publishes a mutation event for every change that can
// shrink somebody's effective permissions. All reads pass straight through to
// the store.
type Directory struct {
	store Store
	bus   *Bus
	now   func() time.Time
}

func NewDirectory(store Store, bus *Bus) *Directory {
	return &Directory{store: store, bus: bus, now: time.Now}
}

func (d *Directory) CreateUser(ctx context.Context, name, email, provider string, typ UserType) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if typ == "" {
		typ = UserTypeUser
	}
	u := &User{
		ID:        ids.New(),
		Name:      strings.TrimSpace(name),
		Email:     email,
		Type:      typ,
		Status:    StatusApproved,
		Provider:  provider,
		CreatedAt: d.now(),
	}
	if err := d.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Directory) User(ctx context.Context, id string) (*User, error) {
	return d.store.Users().Find(ctx, id)
}

func (d *Directory) UserByEmail(ctx context.Context, email string) (*User, error) {
	return d.store.Users().FindByEmail(ctx, email)
}

// EnsureUser finds the account matching an identity-provider login, creating
// it on first sight.
func (d *Directory) EnsureUser(ctx context.Context, name, email, provider string) (*User, error) {
	u, err := d.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.CreateUser(ctx, name, email, provider, UserTypeUser)
}

// DeleteUser removes the user, its permissions, memberships and tokens. The
// token purge and member re-reconciliation happen in the cascade listener.
func (d *Directory) DeleteUser(ctx context.Context, id string) error {
	u, err := d.store.Users().Find(ctx, id)
	if err != nil {
		return err
	}
	return d.deleteOwner(ctx, u.Owner(), nil, func() error {
		return d.store.Users().Delete(ctx, id)
	})
}

func (d *Directory) CreateGroup(ctx context.Context, name, description string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	g := &Group{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		Status:      StatusApproved,
		CreatedAt:   d.now(),
	}
	if err := d.store.Groups().Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (d *Directory) Group(ctx context.Context, id string) (*Group, error) {
	return d.store.Groups().Find(ctx, id)
}

func (d *Directory) DeleteGroup(ctx context.Context, id string) error {
	g, err := d.store.Groups().Find(ctx, id)
	if err != nil {
		return err
	}
	// Snapshot the membership before the rows disappear; the cascade needs
	// it to re-check every former member.
	members, err := d.store.Groups().Members(ctx, id)
	if err != nil {
		return err
	}
	return d.deleteOwner(ctx, g.Owner(), members, func() error {
		return d.store.Groups().Delete(ctx, id)
	})
}

func (d *Directory) CreateApplication(ctx context.Context, name string, typ ApplicationType) (*Application, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: application name is required", ErrInvalidInput)
	}
	if typ == "" {
		typ = ApplicationTypeClient
	}
	a := &Application{
		ID:        ids.New(),
		Name:      name,
		Type:      typ,
		Status:    StatusApproved,
		CreatedAt: d.now(),
	}
	if err := d.store.Applications().Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *Directory) Application(ctx context.Context, id string) (*Application, error) {
	return d.store.Applications().Find(ctx, id)
}

func (d *Directory) DeleteApplication(ctx context.Context, id string) error {
	a, err := d.store.Applications().Find(ctx, id)
	if err != nil {
		return err
	}
	return d.deleteOwner(ctx, a.Owner(), nil, func() error {
		return d.store.Applications().Delete(ctx, id)
	})
}

// deleteOwner removes the owner's permissions, then the owner record, then
// announces the deletion so the cascade can purge tokens and re-check the
// former group members.
func (d *Directory) deleteOwner(ctx context.Context, owner Owner, members []Owner, deleteRecord func() error) error {
	if _, err := d.store.Permissions().DeleteByOwner(ctx, owner); err != nil {
		return err
	}
	if err := deleteRecord(); err != nil {
		return err
	}
	d.bus.Publish(ctx, OwnerDeleted{Owner: owner, Members: members})
	return nil
}

func (d *Directory) CreatePolicy(ctx context.Context, name string) (*Policy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	// Scope strings split on the last dot, so dotted names would be
	// unaddressable.
	if strings.Contains(name, ".") {
		return nil, fmt.Errorf("%w: policy name must not contain '.'", ErrInvalidInput)
	}
	p := &Policy{
		ID:        ids.New(),
		Name:      name,
		CreatedAt: d.now(),
	}
	if err := d.store.Policies().Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Directory) Policy(ctx context.Context, id string) (*Policy, error) {
	return d.store.Policies().Find(ctx, id)
}

// DeletePolicy removes the policy and every permission referencing it, then
// announces the deletion with the former holders so their tokens get
// re-checked.
func (d *Directory) DeletePolicy(ctx context.Context, id string) error {
	if _, err := d.store.Policies().Find(ctx, id); err != nil {
		return err
	}
	deleted, err := d.store.Permissions().DeleteByPolicy(ctx, id)
	if err != nil {
		return err
	}
	if err := d.store.Policies().Delete(ctx, id); err != nil {
		return err
	}
	holders := make([]Owner, 0, len(deleted))
	for _, p := range deleted {
		holders = append(holders, p.Owner)
	}
	d.bus.Publish(ctx, PolicyDeleted{PolicyID: id, Holders: holders})
	return nil
}

// UpsertPermission grants owner the level on the policy, replacing an
// existing grant. A replacement is announced so tokens minted under the old
// level get re-checked; a brand-new grant only widens and needs no cascade.
func (d *Directory) UpsertPermission(ctx context.Context, owner Owner, policyID string, level scope.AccessLevel) (*Permission, error) {
	if err := d.ownerExists(ctx, owner); err != nil {
		return nil, err
	}
	if _, err := d.store.Policies().Find(ctx, policyID); err != nil {
		return nil, err
	}
	perm := &Permission{
		ID:        ids.New(),
		Owner:     owner,
		PolicyID:  policyID,
		Level:     level,
		CreatedAt: d.now(),
	}
	previous, err := d.store.Permissions().Upsert(ctx, perm)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.Level != level {
		d.bus.Publish(ctx, PermissionChanged{
			Owner:    owner,
			PolicyID: policyID,
			Old:      previous.Level,
			New:      level,
		})
	}
	return perm, nil
}

func (d *Directory) DeletePermission(ctx context.Context, owner Owner, policyID string) error {
	deleted, err := d.store.Permissions().Delete(ctx, owner, policyID)
	if err != nil {
		return err
	}
	d.bus.Publish(ctx, PermissionDeleted{Owner: deleted.Owner, PolicyID: deleted.PolicyID})
	return nil
}

func (d *Directory) Permissions(ctx context.Context, owner Owner) ([]*Permission, error) {
	return d.store.Permissions().ListByOwner(ctx, owner)
}

// AddGroupMember adds a user or application to a group. Groups cannot nest.
func (d *Directory) AddGroupMember(ctx context.Context, groupID string, member Owner) error {
	if member.Kind == OwnerGroup {
		return fmt.Errorf("%w: groups cannot be members of groups", ErrInvalidInput)
	}
	if _, err := d.store.Groups().Find(ctx, groupID); err != nil {
		return err
	}
	if err := d.ownerExists(ctx, member); err != nil {
		return err
	}
	if err := d.store.Groups().AddMember(ctx, groupID, member); err != nil {
		return err
	}
	d.bus.Publish(ctx, MembershipChanged{GroupID: groupID, Member: member, Added: true})
	return nil
}

// RemoveGroupMember drops the membership; the member's tokens are re-checked
// because inherited permissions just went away.
func (d *Directory) RemoveGroupMember(ctx context.Context, groupID string, member Owner) error {
	if err := d.store.Groups().RemoveMember(ctx, groupID, member); err != nil {
		return err
	}
	d.bus.Publish(ctx, MembershipChanged{GroupID: groupID, Member: member, Added: false})
	return nil
}

func (d *Directory) GroupMembers(ctx context.Context, groupID string) ([]Owner, error) {
	return d.store.Groups().Members(ctx, groupID)
}

// ownerExists verifies the referenced entity is on record.
func (d *Directory) ownerExists(ctx context.Context, owner Owner) error {
	switch owner.Kind {
	case OwnerUser:
		_, err := d.store.Users().Find(ctx, owner.ID)
		return err
	case OwnerGroup:
		_, err := d.store.Groups().Find(ctx, owner.ID)
		return err
	case OwnerApplication:
		_, err := d.store.Applications().Find(ctx, owner.ID)
		return err
	default:
		return fmt.Errorf("%w: unknown owner kind %q", ErrInvalidInput, owner.Kind)
	}
}
