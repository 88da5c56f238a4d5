// Package jwt implementa el ciclo de vida de bearer tokens: mint, validate,
// refresh (con rotación race-safe) y revoke.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/google/uuid"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTTL es el TTL por defecto de un bearer token (14 días).
const DefaultAccessTTL = 14 * 24 * time.Hour

// Issuer firma y valida bearer tokens. Default HMAC-SHA256; soporta
// algoritmos asimétricos via Method/SignKey/VerifyKey.
type Issuer struct {
	Iss       string
	Aud       string
	Method    jwtv5.SigningMethod
	SignKey   any // []byte para HMAC, private key para asimétricos
	VerifyKey any // []byte para HMAC, public key para asimétricos
	AccessTTL time.Duration
	FieldMap  []FieldClaim
	Now       func() time.Time
}

// NewHS256 crea un Issuer HMAC-SHA256 (el default).
func NewHS256(iss, aud string, secret []byte) *Issuer {
	return &Issuer{
		Iss:       iss,
		Aud:       aud,
		Method:    jwtv5.SigningMethodHS256,
		SignKey:   secret,
		VerifyKey: secret,
		AccessTTL: DefaultAccessTTL,
		FieldMap:  DefaultFieldMap,
		Now:       time.Now,
	}
}

// NewAsymmetric crea un Issuer con un método asimétrico (RS256/ES256/EdDSA).
func NewAsymmetric(iss, aud string, method jwtv5.SigningMethod, priv, pub any) *Issuer {
	return &Issuer{
		Iss:       iss,
		Aud:       aud,
		Method:    method,
		SignKey:   priv,
		VerifyKey: pub,
		AccessTTL: DefaultAccessTTL,
		FieldMap:  DefaultFieldMap,
		Now:       time.Now,
	}
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}

func (i *Issuer) ttl() time.Duration {
	if i.AccessTTL > 0 {
		return i.AccessTTL
	}
	return DefaultAccessTTL
}

// Mint emite un bearer token desde el user canónico más claims externos.
// El claim set se arma con la tabla de mapeo (campo copiado solo si el origen
// no está vacío y el claim no existe), roles/permisos dedupeados first-wins,
// jti único, exp = now + TTL.
func (i *Issuer) Mint(u *core.User, extra claims.Set) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl())

	cs := buildClaimSet(u, i.fieldMap(), extra)

	mc := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": u.ID,
		"aud": i.Aud,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	}
	for _, c := range cs {
		switch c.Type {
		case claims.Subject:
			// ya seteado
		case claims.Role, claims.Permission:
			list, _ := mc[c.Type].([]string)
			mc[c.Type] = append(list, c.Value)
		default:
			if _, exists := mc[c.Type]; !exists {
				mc[c.Type] = c.Value
			}
		}
	}

	tk := jwtv5.NewWithClaims(i.Method, mc)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.SignKey)
	if err != nil {
		return "", time.Time{}, err
	}
	metrics.TokensMinted.Inc()
	return signed, exp, nil
}

func (i *Issuer) fieldMap() []FieldClaim {
	if i.FieldMap != nil {
		return i.FieldMap
	}
	return DefaultFieldMap
}

// Validate verifica firma, issuer, audiencia y expiry, y rehidrata una
// Session directamente de los claims (mapeo en reversa). Sin round-trip al
// repositorio: las sesiones bearer son autocontenidas.
func (i *Issuer) Validate(token string) (*session.Session, error) {
	tok, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return i.VerifyKey, nil },
		jwtv5.WithValidMethods([]string{i.Method.Alg()}),
		jwtv5.WithTimeFunc(func() time.Time { return i.now() }),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(i.Aud),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !tok.Valid {
		return nil, ErrSignatureInvalid
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrMalformed
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrMalformed)
	}

	now := i.now().UTC()
	s := &session.Session{
		UserID:          sub,
		IsAuthenticated: true,
		FromToken:       true,
		CreatedAt:       now,
		LastModified:    now,
	}
	if jti, _ := mc["jti"].(string); jti != "" {
		s.ID = jti
	} else {
		s.ID = uuid.NewString()
	}

	for _, fc := range i.fieldMap() {
		if v, _ := mc[fc.Type].(string); v != "" {
			fc.Set(s, v)
		}
	}
	s.Roles = stringList(mc[claims.Role])
	s.Permissions = stringList(mc[claims.Permission])

	return s, nil
}

// classifyParseError traduce los errores de jwt/v5 a las clases de fallo
// propias. El detalle crudo no se propaga al caller externo.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwtv5.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, jwtv5.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, x := range list {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
