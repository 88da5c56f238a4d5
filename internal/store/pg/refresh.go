package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetRefreshToken(ctx context.Context, userID string) (*core.RefreshToken, error) {
	return s.getRefresh(ctx, `WHERE user_id = $1`, userID)
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	if tokenHash == "" {
		return nil, core.ErrNotFound
	}
	return s.getRefresh(ctx, `WHERE token_hash = $1`, tokenHash)
}

func (s *Store) getRefresh(ctx context.Context, where string, arg any) (*core.RefreshToken, error) {
	q := `SELECT user_id, token_hash, expires_at, issued_at FROM refresh_tokens ` + where
	var rt core.RefreshToken
	err := s.pool.QueryRow(ctx, q, arg).Scan(&rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// PutRefreshToken emite (o pisa) el refresh token del usuario. Sin historial:
// la fila es 1:1 con el user.
func (s *Store) PutRefreshToken(ctx context.Context, rt *core.RefreshToken) error {
	const q = `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, issued_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET token_hash = EXCLUDED.token_hash,
					  expires_at = EXCLUDED.expires_at,
					  issued_at  = NOW()`
	_, err := s.pool.Exec(ctx, q, rt.UserID, rt.TokenHash, rt.ExpiresAt)
	return err
}

// UpdateRefreshTokenCAS es el update condicional atómico de la rotación:
// solo escribe si el hash guardado sigue siendo oldHash. RowsAffected == 0
// significa que otro request ganó la carrera.
func (s *Store) UpdateRefreshTokenCAS(ctx context.Context, userID, oldHash, newHash string, newExpiry time.Time) (bool, error) {
	const q = `
		UPDATE refresh_tokens
		SET token_hash = $3, expires_at = $4, issued_at = NOW()
		WHERE user_id = $1 AND token_hash = $2`
	ct, err := s.pool.Exec(ctx, q, userID, oldHash, newHash, newExpiry)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
