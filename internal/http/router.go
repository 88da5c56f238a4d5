// Package http arma el router y el server de la API de autenticación.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/middlewares"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// RouterDeps son las dependencias del router.
type RouterDeps struct {
	Controllers       *authctrl.Controllers
	Bearer            *providers.JwtBearer
	Sessions          *session.Store
	Repo              core.Repository
	CookieName        string
	SessionCookieName string
}

// NewRouter arma el árbol de rutas con la cadena de middlewares estándar:
// request id → logging → recover → resolución de sesión.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middlewares.WithRequestID(),
		middlewares.WithLogging(),
		middlewares.WithRecover(),
		middlewares.WithSession(deps.Bearer, deps.Sessions, deps.CookieName, deps.SessionCookieName),
	)

	c := deps.Controllers

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", c.Login)
		r.Post("/token", c.Token)
		r.Post("/refresh", c.Refresh)
		r.Post("/logout", c.Logout)
		r.Get("/providers", c.Providers)

		r.Group(func(r chi.Router) {
			r.Use(middlewares.RequireAuth())
			r.Get("/session", c.Session)
		})

		// Al final: {provider} matchea cualquier segmento restante.
		r.Get("/{provider}", c.StartProvider)
		r.Get("/{provider}/callback", c.ProviderCallback)
		r.Post("/{provider}/callback", c.ProviderCallback)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthz(deps.Repo))

	return r
}

func healthz(repo core.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := "ok"
		code := http.StatusOK
		if err := repo.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		helpers.WriteJSON(w, code, map[string]string{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
