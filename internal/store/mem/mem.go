// Package mem is an in-memory Store used by tests and by dev mode. It mirrors
// the relational layout one map per table and serializes everything behind a
// single mutex, so it is safe for concurrent use but makes no attempt at
// being fast.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

type Store struct {
	mu sync.RWMutex

	users        map[string]*authz.User
	groups       map[string]*authz.Group
	applications map[string]*authz.Application
	policies     map[string]*authz.Policy
	permissions  map[permKey]*authz.Permission
	memberships  map[string]map[authz.Owner]struct{}
	tokens       map[string]*authz.Token
}

type permKey struct {
	owner    authz.Owner
	policyID string
}

func New() *Store {
	return &Store{
		users:        make(map[string]*authz.User),
		groups:       make(map[string]*authz.Group),
		applications: make(map[string]*authz.Application),
		policies:     make(map[string]*authz.Policy),
		permissions:  make(map[permKey]*authz.Permission),
		memberships:  make(map[string]map[authz.Owner]struct{}),
		tokens:       make(map[string]*authz.Token),
	}
}

func (s *Store) Users() authz.UserStore               { return (*userStore)(s) }
func (s *Store) Groups() authz.GroupStore             { return (*groupStore)(s) }
func (s *Store) Applications() authz.ApplicationStore { return (*applicationStore)(s) }
func (s *Store) Policies() authz.PolicyStore          { return (*policyStore)(s) }
func (s *Store) Permissions() authz.PermissionStore   { return (*permissionStore)(s) }
func (s *Store) Tokens() authz.TokenStore             { return (*tokenStore)(s) }

type userStore Store

func (s *userStore) Create(_ context.Context, u *authz.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return authz.ErrConflict
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s", authz.ErrConflict, u.Email)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*authz.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*authz.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *userStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.users, id)
	(*Store)(s).dropMemberships(authz.Owner{Kind: authz.OwnerUser, ID: id})
	return nil
}

type groupStore Store

func (s *groupStore) Create(_ context.Context, g *authz.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return authz.ErrConflict
	}
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return fmt.Errorf("%w: group %s", authz.ErrConflict, g.Name)
		}
	}
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *groupStore) Find(_ context.Context, id string) (*authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *groupStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.groups, id)
	delete(s.memberships, id)
	return nil
}

func (s *groupStore) AddMember(_ context.Context, groupID string, member authz.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return authz.ErrNotFound
	}
	members, ok := s.memberships[groupID]
	if !ok {
		members = make(map[authz.Owner]struct{})
		s.memberships[groupID] = members
	}
	members[member] = struct{}{}
	return nil
}

func (s *groupStore) RemoveMember(_ context.Context, groupID string, member authz.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.memberships[groupID]
	if !ok {
		return authz.ErrNotFound
	}
	if _, ok := members[member]; !ok {
		return authz.ErrNotFound
	}
	delete(members, member)
	return nil
}

func (s *groupStore) Members(_ context.Context, groupID string) ([]authz.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.groups[groupID]; !ok {
		return nil, authz.ErrNotFound
	}
	var out []authz.Owner
	for m := range s.memberships[groupID] {
		out = append(out, m)
	}
	return out, nil
}

func (s *groupStore) GroupsOf(_ context.Context, member authz.Owner) ([]*authz.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*authz.Group
	for groupID, members := range s.memberships {
		if _, ok := members[member]; !ok {
			continue
		}
		if g, ok := s.groups[groupID]; ok {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

type applicationStore Store

func (s *applicationStore) Create(_ context.Context, a *authz.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[a.ID]; ok {
		return authz.ErrConflict
	}
	cp := *a
	s.applications[a.ID] = &cp
	return nil
}

func (s *applicationStore) Find(_ context.Context, id string) (*authz.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *applicationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.applications, id)
	(*Store)(s).dropMemberships(authz.Owner{Kind: authz.OwnerApplication, ID: id})
	return nil
}

type policyStore Store

func (s *policyStore) Create(_ context.Context, p *authz.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; ok {
		return authz.ErrConflict
	}
	for _, existing := range s.policies {
		if existing.Name == p.Name {
			return fmt.Errorf("%w: policy %s", authz.ErrConflict, p.Name)
		}
	}
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

func (s *policyStore) Find(_ context.Context, id string) (*authz.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *policyStore) FindByName(_ context.Context, name string) (*authz.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *policyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.policies, id)
	return nil
}

type permissionStore Store

func (s *permissionStore) Upsert(_ context.Context, p *authz.Permission) (*authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permKey{owner: p.Owner, policyID: p.PolicyID}
	var previous *authz.Permission
	if existing, ok := s.permissions[key]; ok {
		cp := *existing
		previous = &cp
	}
	cp := *p
	s.permissions[key] = &cp
	return previous, nil
}

func (s *permissionStore) Delete(_ context.Context, owner authz.Owner, policyID string) (*authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permKey{owner: owner, policyID: policyID}
	existing, ok := s.permissions[key]
	if !ok {
		return nil, authz.ErrNotFound
	}
	delete(s.permissions, key)
	cp := *existing
	return &cp, nil
}

func (s *permissionStore) ListByOwner(_ context.Context, owner authz.Owner) ([]*authz.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*authz.Permission
	for key, p := range s.permissions {
		if key.owner == owner {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *permissionStore) DeleteByOwner(_ context.Context, owner authz.Owner) ([]*authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authz.Permission
	for key, p := range s.permissions {
		if key.owner == owner {
			cp := *p
			out = append(out, &cp)
			delete(s.permissions, key)
		}
	}
	return out, nil
}

func (s *permissionStore) DeleteByPolicy(_ context.Context, policyID string) ([]*authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authz.Permission
	for key, p := range s.permissions {
		if key.policyID == policyID {
			cp := *p
			out = append(out, &cp)
			delete(s.permissions, key)
		}
	}
	return out, nil
}

type tokenStore Store

func (s *tokenStore) Insert(_ context.Context, t *authz.Token, supersede []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.ID]; ok {
		return authz.ErrConflict
	}
	for _, id := range supersede {
		if old, ok := s.tokens[id]; ok {
			old.Revoked = true
		}
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	s.tokens[t.ID] = &cp
	return nil
}

func (s *tokenStore) FindByHash(_ context.Context, hash string) (*authz.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Hash == hash {
			return copyToken(t), nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *tokenStore) ActiveByOwner(_ context.Context, owner authz.Owner) ([]*authz.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*authz.Token
	for _, t := range s.tokens {
		if t.Owner == owner && !t.Revoked {
			out = append(out, copyToken(t))
		}
	}
	return out, nil
}

func (s *tokenStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return authz.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (s *tokenStore) DeleteByOwner(_ context.Context, owner authz.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if t.Owner == owner {
			delete(s.tokens, id)
		}
	}
	return nil
}

func (s *tokenStore) Owners(_ context.Context) ([]authz.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[authz.Owner]struct{})
	var out []authz.Owner
	for _, t := range s.tokens {
		if t.Revoked {
			continue
		}
		if _, ok := seen[t.Owner]; ok {
			continue
		}
		seen[t.Owner] = struct{}{}
		out = append(out, t.Owner)
	}
	return out, nil
}

func (s *Store) dropMemberships(member authz.Owner) {
	for _, members := range s.memberships {
		delete(members, member)
	}
}

func copyToken(t *authz.Token) *authz.Token {
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp
}
