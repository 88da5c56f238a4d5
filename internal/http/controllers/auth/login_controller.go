package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authgate/internal/http/dto"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// Login maneja POST /auth/login (credenciales locales).
func (c *Controllers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Login"))

	var req dto.LoginRequest
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "application/json"):
		if err := helpers.ReadJSON(w, r, &req); err != nil {
			httperrors.WriteError(w, httperrors.ErrInvalidJSON)
			return
		}
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid form"))
			return
		}
		req.UserName = r.FormValue("user_name")
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	default:
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unsupported content type"))
		return
	}

	result, err := c.Service.LoginPassword(ctx, req.UserName, req.Email, req.Password)
	if err != nil {
		log.Debug("login failed", logger.Err(err))
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
