package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

type userStore struct {
	db *sql.DB
}

func (s *userStore) Create(ctx context.Context, u *authz.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, name, email, type, status, provider, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Name, u.Email, u.Type, u.Status, u.Provider, u.CreatedAt)
	return mapWriteError(err)
}

func (s *userStore) Find(ctx context.Context, id string) (*authz.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select id, name, email, type, status, provider, created_at
		from users where id = $1
	`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*authz.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select id, name, email, type, status, provider, created_at
		from users where email = $1
	`, email))
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanUser(row *sql.Row) (*authz.User, error) {
	var u authz.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Type, &u.Status, &u.Provider, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type groupStore struct {
	db *sql.DB
}

func (s *groupStore) Create(ctx context.Context, g *authz.Group) error {
	_, err := s.db.ExecContext(ctx, `
		insert into groups (id, name, description, status, created_at)
		values ($1, $2, $3, $4, $5)
	`, g.ID, g.Name, g.Description, g.Status, g.CreatedAt)
	return mapWriteError(err)
}

func (s *groupStore) Find(ctx context.Context, id string) (*authz.Group, error) {
	var g authz.Group
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, status, created_at
		from groups where id = $1
	`, id).Scan(&g.ID, &g.Name, &g.Description, &g.Status, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *groupStore) Delete(ctx context.Context, id string) error {
	// Memberships go with the group via on delete cascade.
	res, err := s.db.ExecContext(ctx, `delete from groups where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *groupStore) AddMember(ctx context.Context, groupID string, member authz.Owner) error {
	_, err := s.db.ExecContext(ctx, `
		insert into group_memberships (group_id, member_kind, member_id)
		values ($1, $2, $3)
		on conflict do nothing
	`, groupID, member.Kind, member.ID)
	return mapWriteError(err)
}

func (s *groupStore) RemoveMember(ctx context.Context, groupID string, member authz.Owner) error {
	res, err := s.db.ExecContext(ctx, `
		delete from group_memberships
		where group_id = $1 and member_kind = $2 and member_id = $3
	`, groupID, member.Kind, member.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *groupStore) Members(ctx context.Context, groupID string) ([]authz.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `
		select member_kind, member_id from group_memberships where group_id = $1
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []authz.Owner
	for rows.Next() {
		var o authz.Owner
		if err := rows.Scan(&o.Kind, &o.ID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *groupStore) GroupsOf(ctx context.Context, member authz.Owner) ([]*authz.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select g.id, g.name, g.description, g.status, g.created_at
		from groups g
		join group_memberships m on m.group_id = g.id
		where m.member_kind = $1 and m.member_id = $2
	`, member.Kind, member.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*authz.Group
	for rows.Next() {
		var g authz.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Status, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

type applicationStore struct {
	db *sql.DB
}

func (s *applicationStore) Create(ctx context.Context, a *authz.Application) error {
	_, err := s.db.ExecContext(ctx, `
		insert into applications (id, name, type, status, created_at)
		values ($1, $2, $3, $4, $5)
	`, a.ID, a.Name, a.Type, a.Status, a.CreatedAt)
	return mapWriteError(err)
}

func (s *applicationStore) Find(ctx context.Context, id string) (*authz.Application, error) {
	var a authz.Application
	err := s.db.QueryRowContext(ctx, `
		select id, name, type, status, created_at
		from applications where id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Type, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *applicationStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from applications where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type policyStore struct {
	db *sql.DB
}

func (s *policyStore) Create(ctx context.Context, p *authz.Policy) error {
	_, err := s.db.ExecContext(ctx, `
		insert into policies (id, name, created_at) values ($1, $2, $3)
	`, p.ID, p.Name, p.CreatedAt)
	return mapWriteError(err)
}

func (s *policyStore) Find(ctx context.Context, id string) (*authz.Policy, error) {
	var p authz.Policy
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at from policies where id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *policyStore) FindByName(ctx context.Context, name string) (*authz.Policy, error) {
	var p authz.Policy
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at from policies where name = $1
	`, name).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *policyStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from policies where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow turns a zero-row write into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}
