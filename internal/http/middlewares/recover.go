package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// WithRecover convierte panics en 500 con stack logueado. El panic nunca
// llega al cliente.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Any("panic", rec),
						logger.Path(r.URL.Path),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
