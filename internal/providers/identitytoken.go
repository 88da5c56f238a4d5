package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/oauth2"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// ErrNotRedirectFlow lo devuelven las variantes que no arrancan con un
// redirect del navegador.
var ErrNotRedirectFlow = errors.New("not_a_redirect_flow")

// IdentityTokenStrategy acepta un id_token ya emitido al cliente (el flujo
// nativo: la app hizo el sign-in con el SDK del provider y nos manda el token
// resultante). No hay redirect ni code; solo validar el token contra el
// key set del provider. La audiencia esperada acá es la del bundle, no la del
// service — la regla dual la resuelve el verifier con el aud del token.
type IdentityTokenStrategy struct {
	ProviderName string // clave del registry ("google-token")
	LinkProvider string // nombre canónico del provider ("google")
	Verifier     *oauth2.IDTokenVerifier
}

func (s *IdentityTokenStrategy) Name() string { return s.ProviderName }
func (s *IdentityTokenStrategy) Kind() Kind   { return KindOAuth2IdentityToken }

// linkProvider es el nombre bajo el cual se persiste el ProviderLink. Tiene
// que coincidir con el del flujo code del mismo provider: la misma identidad
// externa es UN solo link, entre por donde entre.
func (s *IdentityTokenStrategy) linkProvider() string {
	if s.LinkProvider != "" {
		return s.LinkProvider
	}
	return strings.TrimSuffix(s.ProviderName, "-token")
}

func (s *IdentityTokenStrategy) Start(ctx context.Context) (*StartState, error) {
	return nil, ErrNotRedirectFlow
}

func (s *IdentityTokenStrategy) Complete(ctx context.Context, ac AuthContext) (*Result, error) {
	if ac.IDToken == "" {
		return nil, oauth2.ErrIDTokenMalformed
	}
	// Sin nonce: el flujo nativo no pasó por nuestro redirect.
	cs, raw, err := s.Verifier.Verify(ctx, ac.IDToken, "")
	if err != nil {
		return nil, err
	}
	link := &core.ProviderLink{
		Provider:         s.linkProvider(),
		ExternalUserID:   raw.Sub,
		ExternalUserName: cs.First(claims.PreferredUsername),
	}
	return &Result{Link: link, Claims: cs}, nil
}
