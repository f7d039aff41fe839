package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/overture-stack/ego-sub000/internal/authz"
)

type tokenStore struct {
	db *sql.DB
}

// Insert persists the token and revokes superseded tokens in one
// transaction. The owner row is locked first so a concurrent issuance or
// cascade for the same owner serializes behind us.
func (s *tokenStore) Insert(ctx context.Context, t *authz.Token, supersede []string) error {
	scopes, err := json.Marshal(t.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockOwner(ctx, tx, t.Owner); err != nil {
		return err
	}
	for _, id := range supersede {
		if _, err := tx.ExecContext(ctx, `update tokens set revoked = true where id = $1`, id); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `
		insert into tokens (id, hash, prefix, owner_kind, owner_id, scopes, description, issued_at, expires_at, revoked)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, false)
	`, t.ID, t.Hash, t.Prefix, t.Owner.Kind, t.Owner.ID, scopes, t.Description, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return mapWriteError(err)
	}
	return tx.Commit()
}

func lockOwner(ctx context.Context, tx *sql.Tx, owner authz.Owner) error {
	table, ok := ownerTable(owner.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown owner kind %q", authz.ErrInvalidInput, owner.Kind)
	}
	var one int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`select 1 from %s where id = $1 for update`, table),
		owner.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.ErrNotFound
	}
	return err
}

func ownerTable(kind authz.OwnerKind) (string, bool) {
	switch kind {
	case authz.OwnerUser:
		return "users", true
	case authz.OwnerGroup:
		return "groups", true
	case authz.OwnerApplication:
		return "applications", true
	default:
		return "", false
	}
}

func (s *tokenStore) FindByHash(ctx context.Context, hash string) (*authz.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, hash, prefix, owner_kind, owner_id, scopes, description, issued_at, expires_at, revoked
		from tokens where hash = $1
	`, hash)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	return t, err
}

func (s *tokenStore) ActiveByOwner(ctx context.Context, owner authz.Owner) ([]*authz.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, hash, prefix, owner_kind, owner_id, scopes, description, issued_at, expires_at, revoked
		from tokens
		where owner_kind = $1 and owner_id = $2 and revoked = false
	`, owner.Kind, owner.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*authz.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *tokenStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update tokens set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *tokenStore) DeleteByOwner(ctx context.Context, owner authz.Owner) error {
	_, err := s.db.ExecContext(ctx, `
		delete from tokens where owner_kind = $1 and owner_id = $2
	`, owner.Kind, owner.ID)
	return err
}

func (s *tokenStore) Owners(ctx context.Context) ([]authz.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct owner_kind, owner_id
		from tokens
		where revoked = false and expires_at > now()
	`)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*authz.Token, error) {
	var t authz.Token
	var scopes []byte
	err := row.Scan(&t.ID, &t.Hash, &t.Prefix, &t.Owner.Kind, &t.Owner.ID,
		&scopes, &t.Description, &t.IssuedAt, &t.ExpiresAt, &t.Revoked)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopes, &t.Scopes); err != nil {
		return nil, fmt.Errorf("decode scopes: %w", err)
	}
	return &t, nil
}
