package auth

import (
	"net/http"

	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Logout maneja POST /auth/logout. Borra la sesión server-side, revoca el
// refresh token y expira las cookies. Idempotente: sin sesión responde 200
// igual.
func (c *Controllers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := c.Service.Logout(ctx); err != nil {
		logger.From(ctx).Warn("logout cleanup failed", logger.Err(err))
	}

	c.clearTokenCookies(w)
	helpers.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
