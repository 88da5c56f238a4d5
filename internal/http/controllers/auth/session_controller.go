package auth

import (
	"net/http"

	"github.com/dropDatabas3/authgate/internal/http/dto"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	"github.com/dropDatabas3/authgate/internal/http/middlewares"
)

// Session maneja GET /auth/session: la proyección de la sesión actual.
func (c *Controllers) Session(w http.ResponseWriter, r *http.Request) {
	s := middlewares.GetSession(r.Context())
	if s == nil || !s.IsAuthenticated {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	resp := dto.SessionResponse{
		SessionID:   s.ID,
		UserID:      s.UserID,
		UserName:    s.UserName,
		DisplayName: s.DisplayName,
		Email:       s.Email,
		Roles:       s.Roles,
		Permissions: s.Permissions,
		FromToken:   s.FromToken,
	}
	for _, l := range s.Providers {
		resp.Providers = append(resp.Providers, l.Provider)
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}
