package core

import "time"

// Estados de cuenta. Locked/disabled se chequean después de validar el token
// y antes de autenticar la sesión.
const (
	UserActive   = "active"
	UserLocked   = "locked"
	UserDisabled = "disabled"
)

// User es la identidad canónica. Única por Email y por UserName.
// Es dueña de cero o más ProviderLink (1 user : N providers).
type User struct {
	ID           string
	UserName     string
	DisplayName  string
	Email        string
	Status       string
	PasswordHash *string
	Roles        []string
	Permissions  []string
	Metadata     map[string]string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// ProviderLink es la identidad verificada en un provider externo, ya ligada
// a un User local. Única por (Provider, ExternalUserID).
type ProviderLink struct {
	UserID             string
	Provider           string
	ExternalUserID     string
	ExternalUserName   string
	AccessToken        string
	AccessTokenSecret  string // solo OAuth1
	RefreshToken       string
	RefreshTokenExpiry *time.Time
	ExtraClaims        map[string]string
	CreatedAt          time.Time
	ModifiedAt         time.Time
}

// PopulateMissing mergea campos entrantes con semántica populate-if-missing:
// un valor entrante no vacío siempre pisa, uno vacío nunca borra.
func (l *ProviderLink) PopulateMissing(in *ProviderLink) {
	if in.ExternalUserName != "" {
		l.ExternalUserName = in.ExternalUserName
	}
	if in.AccessToken != "" {
		l.AccessToken = in.AccessToken
	}
	if in.AccessTokenSecret != "" {
		l.AccessTokenSecret = in.AccessTokenSecret
	}
	if in.RefreshToken != "" {
		l.RefreshToken = in.RefreshToken
	}
	if in.RefreshTokenExpiry != nil {
		l.RefreshTokenExpiry = in.RefreshTokenExpiry
	}
	for k, v := range in.ExtraClaims {
		if v == "" {
			continue
		}
		if l.ExtraClaims == nil {
			l.ExtraClaims = map[string]string{}
		}
		l.ExtraClaims[k] = v
	}
}

// RefreshToken es el secreto opaco 1:1 con un User. Una emisión nueva pisa la
// anterior (sin historial). Se guarda el hash SHA-256, nunca el valor crudo.
type RefreshToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Valid indica si el token sigue vigente a un instante dado.
func (rt *RefreshToken) Valid(now time.Time) bool {
	return rt.TokenHash != "" && now.Before(rt.ExpiresAt)
}

// PendingHandshake es el estado transitorio de un handshake OAuth1 en vuelo
// (request token + secret). Se descarta tras éxito o fallo.
type PendingHandshake struct {
	ID                 string
	Provider           string
	RequestToken       string
	RequestTokenSecret string
	CreatedAt          time.Time
}
