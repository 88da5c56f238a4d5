// Package auth expone los controllers de los endpoints de autenticación.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/http/httperrors"
	svc "github.com/dropDatabas3/authgate/internal/http/services/auth"
	"github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/oauth1"
	"github.com/dropDatabas3/authgate/internal/oauth2"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/session"
)

// CookieConfig agrupa los parámetros de las cookies de sesión.
type CookieConfig struct {
	Name        string // ss-tok: el bearer token
	RefreshName string // ss-reftok: el refresh token, HttpOnly siempre
	SessionName string // ss-id: id de la sesión server-side
	Domain      string
	SameSite    string
	Secure      bool
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	SessionTTL  time.Duration
}

// Controllers agrupa los handlers de auth con sus dependencias.
type Controllers struct {
	Service *svc.Service
	Cookies CookieConfig
}

func NewControllers(service *svc.Service, cookies CookieConfig) *Controllers {
	return &Controllers{Service: service, Cookies: cookies}
}

// setTokenCookies setea ss-tok y ss-reftok tras una autenticación exitosa.
func (c *Controllers) setTokenCookies(w http.ResponseWriter, tokens *jwt.TokenPair) {
	http.SetCookie(w, helpers.BuildCookie(
		c.Cookies.Name, tokens.AccessToken,
		c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure, c.Cookies.AccessTTL,
	))
	if tokens.RefreshToken != "" {
		http.SetCookie(w, helpers.BuildCookie(
			c.Cookies.RefreshName, tokens.RefreshToken,
			c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure, c.Cookies.RefreshTTL,
		))
	}
}

// setSessionCookie setea ss-id con el id de la sesión server-side, para que
// un cliente sin tokens pueda rehidratar la sesión desde el store.
func (c *Controllers) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	if c.Cookies.SessionName == "" || sess == nil || sess.ID == "" {
		return
	}
	http.SetCookie(w, helpers.BuildCookie(
		c.Cookies.SessionName, sess.ID,
		c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure, c.Cookies.SessionTTL,
	))
}

func (c *Controllers) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, helpers.BuildDeletionCookie(c.Cookies.Name, c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure))
	http.SetCookie(w, helpers.BuildDeletionCookie(c.Cookies.RefreshName, c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure))
	if c.Cookies.SessionName != "" {
		http.SetCookie(w, helpers.BuildDeletionCookie(c.Cookies.SessionName, c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure))
	}
}

// writeAuthError traduce errores de dominio al formato de la API.
// Los fallos de provider upstream son 502, nunca 500: el problema no es nuestro.
func writeAuthError(w http.ResponseWriter, err error) {
	var pe *oauth2.ProviderError

	switch {
	case errors.Is(err, svc.ErrMissingFields):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("credenciales incompletas"))
	case errors.Is(err, svc.ErrInvalidCredentials), errors.Is(err, svc.ErrPasswordNotSet):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("invalid_credentials"))

	case errors.Is(err, jwt.ErrAccountLocked), errors.Is(err, session.ErrAccountLocked):
		httperrors.WriteError(w, httperrors.ErrForbidden.WithCode("account_locked"))
	case errors.Is(err, jwt.ErrAccountDisabled), errors.Is(err, session.ErrAccountDisabled):
		httperrors.WriteError(w, httperrors.ErrForbidden.WithCode("account_disabled"))
	case errors.Is(err, session.ErrLinkConflict):
		httperrors.WriteError(w, httperrors.ErrConflict.WithCode("provider_link_conflict"))

	case errors.Is(err, jwt.ErrRefreshTokenExpired):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("refresh_token_expired"))
	case errors.Is(err, jwt.ErrRefreshTokenUnknown):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("refresh_token_unknown"))
	case errors.Is(err, jwt.ErrRotationConflict):
		httperrors.WriteError(w, httperrors.ErrConflict.WithCode("rotation_conflict"))
	case errors.Is(err, jwt.ErrExpired):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("token_expired"))
	case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrAudienceMismatch),
		errors.Is(err, jwt.ErrIssuerMismatch), errors.Is(err, jwt.ErrMalformed):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("token_invalid"))

	case errors.Is(err, providers.ErrUnknownProvider):
		httperrors.WriteError(w, httperrors.ErrNotFound.WithCode("unknown_provider"))
	case errors.Is(err, providers.ErrStateMismatch), errors.Is(err, oauth1.ErrTokenMismatch),
		errors.Is(err, oauth1.ErrHandshakeUnknown):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithCode("handshake_invalid"))

	case errors.Is(err, oauth2.ErrSignatureInvalid), errors.Is(err, oauth2.ErrIDTokenMalformed),
		errors.Is(err, oauth2.ErrIssuerMismatch), errors.Is(err, oauth2.ErrAudienceMismatch),
		errors.Is(err, oauth2.ErrNonceMismatch), errors.Is(err, oauth2.ErrKeyNotFound):
		httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCode("identity_token_invalid"))

	case errors.As(err, &pe):
		httperrors.WriteError(w, httperrors.ErrBadGateway.WithDetail(pe.Code))
	case errors.Is(err, oauth2.ErrTransport), errors.Is(err, oauth1.ErrTransport):
		httperrors.WriteError(w, httperrors.ErrBadGateway.WithCode("provider_unreachable"))
	case errors.Is(err, oauth1.ErrProtocol):
		httperrors.WriteError(w, httperrors.ErrBadGateway.WithCode("provider_protocol_error"))

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}
