package oauth2

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// IDTokenVerifier valida identity tokens firmados contra el KeySet del
// provider: firma, issuer, audiencia y expiry.
//
// Audiencia dual: BundleAudience (app nativa) y ServiceAudience (web). El
// token es válido si su aud coincide con cualquiera de las dos; cuál aplica
// lo decide el propio aud del token, nunca prueba y error.
type IDTokenVerifier struct {
	Provider        string
	Issuer          string
	ServiceAudience string
	BundleAudience  string
	Keys            *KeySet
	Now             func() time.Time
}

// RawIDClaims son los claims de perfil típicos de un id_token.
type RawIDClaims struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
	Nonce         string
	Audience      string
}

func (v *IDTokenVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify valida el token y devuelve el claim set tipado.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken, expectedNonce string) (claims.Set, *RawIDClaims, error) {
	log := logger.From(ctx).With(
		logger.Component("oauth2.idtoken"),
		logger.Provider(v.Provider),
	)

	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrIDTokenMalformed
		}
		return v.Keys.KeyByKID(ctx, kid)
	}

	tok, err := jwtv5.Parse(idToken, keyfunc,
		jwtv5.WithValidMethods([]string{"RS256", "ES256"}),
		jwtv5.WithTimeFunc(v.now),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		log.Debug("id_token rejected", logger.Err(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, nil, ErrIDTokenMalformed
	}

	if iss, _ := mc["iss"].(string); iss != v.Issuer {
		return nil, nil, fmt.Errorf("%w: got %q", ErrIssuerMismatch, iss)
	}

	aud, err := v.matchAudience(mc["aud"])
	if err != nil {
		return nil, nil, err
	}

	raw := &RawIDClaims{Audience: aud}
	raw.Sub, _ = mc["sub"].(string)
	raw.Email, _ = mc["email"].(string)
	raw.Name, _ = mc["name"].(string)
	raw.GivenName, _ = mc["given_name"].(string)
	raw.FamilyName, _ = mc["family_name"].(string)
	raw.Picture, _ = mc["picture"].(string)
	raw.Nonce, _ = mc["nonce"].(string)
	switch ev := mc["email_verified"].(type) {
	case bool:
		raw.EmailVerified = ev
	case string:
		raw.EmailVerified = ev == "true"
	}

	if expectedNonce != "" && raw.Nonce != expectedNonce {
		return nil, nil, ErrNonceMismatch
	}
	if raw.Sub == "" {
		return nil, nil, fmt.Errorf("%w: missing sub", ErrIDTokenMalformed)
	}

	cs := claims.Set{}
	cs = cs.Add(claims.Subject, raw.Sub)
	cs = cs.Add(claims.Email, raw.Email)
	cs = cs.Add(claims.DisplayName, raw.Name)
	cs = cs.Add(claims.GivenName, raw.GivenName)
	cs = cs.Add(claims.FamilyName, raw.FamilyName)
	cs = cs.Add(claims.Picture, raw.Picture)
	if raw.EmailVerified {
		cs = cs.Add(claims.EmailVerified, "true")
	}

	log.Debug("id_token verified", logger.ExternalUserID(raw.Sub))
	return cs, raw, nil
}

// matchAudience aplica la regla de audiencia dual: el aud presente en el
// token elige contra cuál de las dos audiencias configuradas se valida.
func (v *IDTokenVerifier) matchAudience(audClaim any) (string, error) {
	var auds []string
	switch a := audClaim.(type) {
	case string:
		auds = []string{a}
	case []any:
		for _, x := range a {
			if s, ok := x.(string); ok {
				auds = append(auds, s)
			}
		}
	}
	for _, aud := range auds {
		if v.BundleAudience != "" && aud == v.BundleAudience {
			return aud, nil
		}
		if v.ServiceAudience != "" && aud == v.ServiceAudience {
			return aud, nil
		}
	}
	return "", ErrAudienceMismatch
}
