package providers

import (
	"github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/session"
)

// JwtBearer valida bearer tokens propios y rehidrata la sesión directamente
// de los claims. A diferencia de las otras variantes no produce un
// ProviderLink ni pasa por reconciliación: la sesión resultante es
// autocontenida (FromToken) y nunca se persiste.
type JwtBearer struct {
	Issuer *jwt.Issuer
}

func (b *JwtBearer) Kind() Kind { return KindJwtBearer }

// Authenticate valida el token y devuelve la sesión rehidratada.
func (b *JwtBearer) Authenticate(token string) (*session.Session, error) {
	return b.Issuer.Validate(token)
}
