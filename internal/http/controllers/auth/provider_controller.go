package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authgate/internal/http/dto"
	"github.com/dropDatabas3/authgate/internal/http/helpers"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/providers"
)

// pendingCookie correlaciona el handshake OAuth1 entre start y callback.
const pendingCookie = "ss-oauth1"

// Providers maneja GET /auth/providers: lista de providers habilitados.
func (c *Controllers) Providers(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.ProvidersResponse{
		Providers: c.Service.Registry.Names(),
	})
}

// StartProvider maneja GET /auth/{provider}: inicia el flujo redirect.
func (c *Controllers) StartProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Provider(name))

	state, err := c.Service.StartProvider(ctx, name)
	if err != nil {
		log.Debug("provider start failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}

	if state.PendingID != "" {
		http.SetCookie(w, helpers.BuildCookie(
			pendingCookie, state.PendingID,
			c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure, 10*time.Minute,
		))
	}
	http.Redirect(w, r, state.RedirectURL, http.StatusFound)
}

// ProviderCallback maneja GET|POST /auth/{provider}/callback. POST cubre el
// modo form_post de Apple.
func (c *Controllers) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Provider(name))

	var pendingID string
	if ck, err := r.Cookie(pendingCookie); err == nil {
		pendingID = ck.Value
	}
	ac := providers.NewAuthContext(r, name, pendingID)

	result, err := c.Service.CompleteProvider(ctx, name, ac)
	if err != nil {
		log.Debug("provider callback failed", logger.Err(err))
		writeAuthError(w, err)
		return
	}

	// La cookie transitoria ya cumplió su función.
	http.SetCookie(w, helpers.BuildDeletionCookie(pendingCookie, c.Cookies.Domain, c.Cookies.SameSite, c.Cookies.Secure))

	c.setTokenCookies(w, result.Tokens)
	c.setSessionCookie(w, result.Session)
	helpers.WriteJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(result.Tokens.ExpiresAt).Seconds()),
		RefreshToken: result.Tokens.RefreshToken,
	})
}
