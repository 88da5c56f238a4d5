package middlewares

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/session"
)

const sessionKey ctxKey = "session"

// GetSession devuelve la sesión autenticada del contexto, o nil.
func GetSession(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func setSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// WithSession resuelve la sesión del request: primero el bearer token
// (Authorization o cookie ss-tok), que rehidrata una sesión autocontenida
// sin tocar el store; si no hay token, busca la sesión server-side por el id
// de la cookie ss-id. Sin sesión el request sigue como anónimo: el gate está
// en RequireAuth, no acá.
func WithSession(bearer *providers.JwtBearer, sessions *session.Store, tokenCookie, sessionCookie string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if tok := helpers.BearerToken(r, tokenCookie); tok != "" {
				s, err := bearer.Authenticate(tok)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(setSession(ctx, s)))
					return
				}
				logger.From(ctx).Debug("bearer token rejected", logger.Err(err))
			}

			if ck, err := r.Cookie(sessionCookie); sessionCookie != "" && err == nil && ck.Value != "" {
				if s, ok := sessions.Get(ctx, ck.Value); ok && s.IsAuthenticated {
					next.ServeHTTP(w, r.WithContext(setSession(ctx, s)))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth corta con 401 si no hay sesión autenticada en el contexto.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s := GetSession(r.Context()); s == nil || !s.IsAuthenticated {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
