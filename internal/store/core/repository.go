package core

import (
	"context"
	"time"
)

// Repository es el AuthRepository: store durable de usuarios canónicos,
// provider links y refresh tokens. El motor interno (kv o relacional) queda
// fuera de este contrato; lo único que se exige es CRUD básico más el update
// condicional atómico para la rotación de refresh tokens.
type Repository interface {
	Ping(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUserName(ctx context.Context, userName string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	// Provider links (1 user : N providers; único por provider+external id)
	GetLink(ctx context.Context, provider, externalUserID string) (*ProviderLink, error)
	ListLinks(ctx context.Context, userID string) ([]ProviderLink, error)
	UpsertLink(ctx context.Context, l *ProviderLink) error

	// Refresh tokens (1:1 con user, hash SHA-256)
	GetRefreshToken(ctx context.Context, userID string) (*RefreshToken, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	PutRefreshToken(ctx context.Context, rt *RefreshToken) error

	// UpdateRefreshTokenCAS actualiza el refresh token solo si el hash actual
	// sigue siendo oldHash (compare-and-swap). Retorna false sin error cuando
	// otro request ya rotó el token; el caller re-lee y reintenta una vez o
	// falla cerrado. newHash vacío + expiry cero revoca el token.
	UpdateRefreshTokenCAS(ctx context.Context, userID, oldHash, newHash string, newExpiry time.Time) (bool, error)
}
