package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO users (id, user_name, display_name, email, status, password_hash, roles, permissions, metadata, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`
	_, err = s.pool.Exec(ctx, q,
		u.ID, u.UserName, u.DisplayName, u.Email, u.Status, u.PasswordHash,
		u.Roles, u.Permissions, meta)
	if err != nil && isUniqueViolation(err) {
		return core.ErrConflict
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.getUser(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *Store) GetUserByUserName(ctx context.Context, userName string) (*core.User, error) {
	return s.getUser(ctx, `WHERE lower(user_name) = lower($1)`, userName)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*core.User, error) {
	q := `
		SELECT id, user_name, display_name, email, status, password_hash, roles, permissions, metadata, created_at, modified_at
		FROM users ` + where
	var u core.User
	var meta []byte
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.UserName, &u.DisplayName, &u.Email, &u.Status, &u.PasswordHash,
		&u.Roles, &u.Permissions, &meta, &u.CreatedAt, &u.ModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &u.Metadata)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return err
	}
	const q = `
		UPDATE users
		SET user_name = $2, display_name = $3, email = $4, status = $5,
			password_hash = $6, roles = $7, permissions = $8, metadata = $9,
			modified_at = NOW()
		WHERE id = $1`
	ct, err := s.pool.Exec(ctx, q,
		u.ID, u.UserName, u.DisplayName, u.Email, u.Status, u.PasswordHash,
		u.Roles, u.Permissions, meta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
