package auth

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/authgate/internal/http/dto"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Refresh maneja POST /auth/refresh. El refresh token viene del body o de la
// cookie ss-reftok; el body tiene precedencia.
func (c *Controllers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Refresh"))

	var req dto.RefreshRequest
	_ = helpers.ReadJSON(w, r, &req) // body vacío es válido si hay cookie

	raw := req.RefreshToken
	if raw == "" {
		if ck, err := r.Cookie(c.Cookies.RefreshName); err == nil {
			raw = ck.Value
		}
	}

	tokens, err := c.Service.Refresh(ctx, raw)
	if err != nil {
		log.Debug("refresh failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}

	c.setTokenCookies(w, tokens)
	helpers.WriteJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(tokens.ExpiresAt).Seconds()),
		RefreshToken: tokens.RefreshToken,
	})
}
