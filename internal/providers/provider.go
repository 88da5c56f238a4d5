// Package providers define el set cerrado de estrategias de autenticación y
// el registry que las instancia desde la configuración.
package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// Kind es la variante de flujo. Set cerrado: agregar una variante nueva es un
// cambio de código acá, no un registro dinámico.
type Kind string

const (
	KindOAuth1              Kind = "oauth1"
	KindOAuth2Code          Kind = "oauth2_code"
	KindOAuth2IdentityToken Kind = "oauth2_identity_token"
	KindJwtBearer           Kind = "jwt_bearer"
)

var (
	ErrUnknownProvider = errors.New("unknown_provider")
	ErrStateMismatch   = errors.New("state_mismatch")
	ErrDisabled        = errors.New("provider_disabled")
)

// AuthContext agrupa todo lo que una estrategia necesita del request
// entrante. Se construye una sola vez en el edge HTTP y se pasa por valor
// hacia abajo; las estrategias nunca tocan el *http.Request.
type AuthContext struct {
	Provider string

	// OAuth2 callback
	Code  string
	State string

	// OAuth1 callback
	PendingID  string
	OAuthToken string
	Verifier   string

	// Token exchange directo (app nativa manda el id_token que ya tiene)
	IDToken string
}

// NewAuthContext extrae los campos relevantes del request. Soporta callbacks
// por query (GET) y por form (POST, el modo form_post de Apple).
func NewAuthContext(r *http.Request, provider, pendingID string) AuthContext {
	q := r.URL.Query()
	get := func(k string) string {
		if v := q.Get(k); v != "" {
			return v
		}
		return r.PostFormValue(k)
	}
	return AuthContext{
		Provider:   provider,
		Code:       get("code"),
		State:      get("state"),
		PendingID:  pendingID,
		OAuthToken: get("oauth_token"),
		Verifier:   get("oauth_verifier"),
		IDToken:    get("id_token"),
	}
}

// Result es la identidad externa verificada, lista para reconciliar.
type Result struct {
	Link   *core.ProviderLink
	Claims claims.Set
}

// StartState es lo que el edge necesita para iniciar un flujo redirect:
// a dónde mandar al usuario y qué correlacionar en el callback.
type StartState struct {
	RedirectURL string
	// PendingID correlaciona el callback OAuth1 (viaja en cookie transitoria).
	PendingID string
}

// Strategy es una variante de autenticación contra un provider externo.
type Strategy interface {
	Name() string
	Kind() Kind

	// Start inicia el flujo (adquiere request token / genera state+nonce) y
	// devuelve la URL de autorización del provider.
	Start(ctx context.Context) (*StartState, error)

	// Complete consume el callback y devuelve la identidad verificada.
	Complete(ctx context.Context, ac AuthContext) (*Result, error)
}
