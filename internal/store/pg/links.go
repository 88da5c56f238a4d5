package pg

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) GetLink(ctx context.Context, provider, externalUserID string) (*core.ProviderLink, error) {
	const q = `
		SELECT user_id, provider, external_user_id, external_user_name,
			   access_token, access_token_secret, refresh_token, refresh_token_expiry,
			   extra_claims, created_at, modified_at
		FROM provider_links
		WHERE provider = $1 AND external_user_id = $2`
	var l core.ProviderLink
	var extra []byte
	err := s.pool.QueryRow(ctx, q, strings.ToLower(provider), externalUserID).Scan(
		&l.UserID, &l.Provider, &l.ExternalUserID, &l.ExternalUserName,
		&l.AccessToken, &l.AccessTokenSecret, &l.RefreshToken, &l.RefreshTokenExpiry,
		&extra, &l.CreatedAt, &l.ModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		_ = json.Unmarshal(extra, &l.ExtraClaims)
	}
	return &l, nil
}

func (s *Store) ListLinks(ctx context.Context, userID string) ([]core.ProviderLink, error) {
	const q = `
		SELECT user_id, provider, external_user_id, external_user_name,
			   access_token, access_token_secret, refresh_token, refresh_token_expiry,
			   extra_claims, created_at, modified_at
		FROM provider_links
		WHERE user_id = $1
		ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ProviderLink
	for rows.Next() {
		var l core.ProviderLink
		var extra []byte
		if err := rows.Scan(
			&l.UserID, &l.Provider, &l.ExternalUserID, &l.ExternalUserName,
			&l.AccessToken, &l.AccessTokenSecret, &l.RefreshToken, &l.RefreshTokenExpiry,
			&extra, &l.CreatedAt, &l.ModifiedAt); err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			_ = json.Unmarshal(extra, &l.ExtraClaims)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertLink inserta o mergea un link con semántica populate-if-missing:
// NULLIF + COALESCE garantizan que un valor entrante vacío nunca pise datos.
// El WHERE final hace imposible re-ligar el par (provider, external_user_id)
// a otro usuario.
func (s *Store) UpsertLink(ctx context.Context, l *core.ProviderLink) error {
	extra, err := json.Marshal(l.ExtraClaims)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO provider_links (user_id, provider, external_user_id, external_user_name,
			access_token, access_token_secret, refresh_token, refresh_token_expiry,
			extra_claims, created_at, modified_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (provider, external_user_id)
		DO UPDATE SET
			external_user_name   = COALESCE(NULLIF(EXCLUDED.external_user_name, ''), provider_links.external_user_name),
			access_token         = COALESCE(NULLIF(EXCLUDED.access_token, ''), provider_links.access_token),
			access_token_secret  = COALESCE(NULLIF(EXCLUDED.access_token_secret, ''), provider_links.access_token_secret),
			refresh_token        = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), provider_links.refresh_token),
			refresh_token_expiry = COALESCE(EXCLUDED.refresh_token_expiry, provider_links.refresh_token_expiry),
			extra_claims         = provider_links.extra_claims || EXCLUDED.extra_claims,
			modified_at          = NOW()
		WHERE provider_links.user_id = EXCLUDED.user_id`
	ct, err := s.pool.Exec(ctx, q,
		l.UserID, l.Provider, l.ExternalUserID, l.ExternalUserName,
		l.AccessToken, l.AccessTokenSecret, l.RefreshToken, l.RefreshTokenExpiry, extra)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		// El par ya está ligado a otro usuario.
		return core.ErrConflict
	}
	return nil
}
