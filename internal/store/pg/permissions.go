package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

type permissionStore struct {
	db *sql.DB
}

func (s *permissionStore) Upsert(ctx context.Context, p *authz.Permission) (*authz.Permission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var previous *authz.Permission
	var prev authz.Permission
	err = tx.QueryRowContext(ctx, `
		select id, owner_kind, owner_id, policy_id, access_level, created_at
		from permissions
		where owner_kind = $1 and owner_id = $2 and policy_id = $3
		for update
	`, p.Owner.Kind, p.Owner.ID, p.PolicyID).Scan(
		&prev.ID, &prev.Owner.Kind, &prev.Owner.ID, &prev.PolicyID, &prev.Level, &prev.CreatedAt)
	switch {
	case err == nil:
		previous = &prev
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		insert into permissions (id, owner_kind, owner_id, policy_id, access_level, created_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (owner_kind, owner_id, policy_id)
		do update set access_level = excluded.access_level
	`, p.ID, p.Owner.Kind, p.Owner.ID, p.PolicyID, p.Level, p.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return previous, nil
}

func (s *permissionStore) Delete(ctx context.Context, owner authz.Owner, policyID string) (*authz.Permission, error) {
	var p authz.Permission
	err := s.db.QueryRowContext(ctx, `
		delete from permissions
		where owner_kind = $1 and owner_id = $2 and policy_id = $3
		returning id, owner_kind, owner_id, policy_id, access_level, created_at
	`, owner.Kind, owner.ID, policyID).Scan(
		&p.ID, &p.Owner.Kind, &p.Owner.ID, &p.PolicyID, &p.Level, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permissionStore) ListByOwner(ctx context.Context, owner authz.Owner) ([]*authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_kind, owner_id, policy_id, access_level, created_at
		from permissions
		where owner_kind = $1 and owner_id = $2
	`, owner.Kind, owner.ID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (s *permissionStore) DeleteByOwner(ctx context.Context, owner authz.Owner) ([]*authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		delete from permissions
		where owner_kind = $1 and owner_id = $2
		returning id, owner_kind, owner_id, policy_id, access_level, created_at
	`, owner.Kind, owner.ID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (s *permissionStore) DeleteByPolicy(ctx context.Context, policyID string) ([]*authz.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		delete from permissions
		where policy_id = $1
		returning id, owner_kind, owner_id, policy_id, access_level, created_at
	`, policyID)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]*authz.Permission, error) {
	defer rows.Close()
	var out []*authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Owner.Kind, &p.Owner.ID, &p.PolicyID, &p.Level, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
