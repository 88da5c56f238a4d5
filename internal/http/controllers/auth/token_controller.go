package auth

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/authgate/internal/http/dto"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Token maneja POST /auth/token: la app nativa entrega el id_token que ya
// obtuvo del SDK del provider y recibe tokens propios.
func (c *Controllers) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Token"))

	var req dto.TokenExchangeRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if req.Provider == "" || req.IDToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("provider e id_token son obligatorios"))
		return
	}

	result, err := c.Service.ExchangeToken(ctx, req.Provider, req.IDToken)
	if err != nil {
		log.Debug("token exchange failed", logger.Provider(req.Provider), logger.Err(err))
		writeAuthError(w, err)
		return
	}

	c.setTokenCookies(w, result.Tokens)
	c.setSessionCookie(w, result.Session)
	helpers.WriteJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(result.Tokens.ExpiresAt).Seconds()),
		RefreshToken: result.Tokens.RefreshToken,
	})
}
