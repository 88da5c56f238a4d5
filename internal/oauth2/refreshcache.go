package oauth2

import (
	"context"
	"time"

	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// RefreshValidationCache acota cuántas veces se re-valida un refresh token
// del provider por usuario: una validación exitosa vale por TTL (default 24h,
// el contrato de Apple). Un miss fuerza la validación cara contra el provider.
//
// Misses concurrentes para el mismo usuario se colapsan con singleflight:
// trabajo duplicado sería aceptable, pero corrupción no — y el colapso sale
// gratis.
type RefreshValidationCache struct {
	Provider string
	Cache    cache.Cache
	TTL      time.Duration
	sf       singleflight.Group
}

func NewRefreshValidationCache(provider string, c cache.Cache, ttl time.Duration) *RefreshValidationCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RefreshValidationCache{Provider: provider, Cache: c, TTL: ttl}
}

func (r *RefreshValidationCache) key(userID string) string {
	return "oauth2:refreshcheck:" + r.Provider + ":" + userID
}

// Validate corre validate() salvo que haya una validación reciente cacheada
// para el usuario. Solo los éxitos se cachean.
func (r *RefreshValidationCache) Validate(ctx context.Context, userID string, validate func(ctx context.Context) error) error {
	if _, ok := r.Cache.Get(r.key(userID)); ok {
		return nil
	}

	_, err, _ := r.sf.Do(userID, func() (any, error) {
		// Re-chequear dentro del vuelo: otro goroutine pudo haber validado.
		if _, ok := r.Cache.Get(r.key(userID)); ok {
			return nil, nil
		}
		if err := validate(ctx); err != nil {
			return nil, err
		}
		r.Cache.Set(r.key(userID), []byte("1"), r.TTL)
		logger.From(ctx).Debug("refresh token re-validated against provider",
			logger.Component("oauth2.refreshcheck"),
			logger.Provider(r.Provider),
			logger.UserID(userID),
		)
		return nil, nil
	})
	return err
}

// Invalidate borra la marca (ej: al revocar la sesión del usuario).
func (r *RefreshValidationCache) Invalidate(userID string) {
	r.Cache.Delete(r.key(userID))
}
