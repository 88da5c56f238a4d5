// Package claims define el claim set tipado y las reglas de merge.
//
// Un Claim es un hecho (type, value) sobre una identidad, originado en un JWT,
// un id_token OIDC o una respuesta de perfil de un provider. El orden se
// preserva; los duplicados se resuelven por política (first-wins para roles y
// permisos, priority-override para campos de sesión).
package claims

// Tipos de claim estándar usados en el mapeo sesión<->token.
const (
	Subject           = "sub"
	Issuer            = "iss"
	Audience          = "aud"
	Expiry            = "exp"
	TokenID           = "jti"
	PreferredUsername = "preferred_username"
	DisplayName       = "name"
	Email             = "email"
	EmailVerified     = "email_verified"
	GivenName         = "given_name"
	FamilyName        = "family_name"
	Picture           = "picture"
	Role              = "roles"
	Permission        = "perms"
)

// Claim es un par (type, value). Type no es único dentro de un Set.
type Claim struct {
	Type  string
	Value string
}

// Set es una lista ordenada de claims.
type Set []Claim

// Add agrega un claim al final del set. Valores vacíos se ignoran.
func (s Set) Add(typ, value string) Set {
	if value == "" {
		return s
	}
	return append(s, Claim{Type: typ, Value: value})
}

// First retorna el primer valor para un tipo, o "" si no existe.
func (s Set) First(typ string) string {
	for _, c := range s {
		if c.Type == typ {
			return c.Value
		}
	}
	return ""
}

// Has indica si existe al menos un claim del tipo dado.
func (s Set) Has(typ string) bool {
	return s.First(typ) != ""
}

// Values retorna todos los valores para un tipo, en orden.
func (s Set) Values(typ string) []string {
	var out []string
	for _, c := range s {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}

// Dedup elimina claims repetidos (type, value) conservando la primera
// ocurrencia. First occurrence wins.
func (s Set) Dedup() Set {
	seen := make(map[Claim]struct{}, len(s))
	out := make(Set, 0, len(s))
	for _, c := range s {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Append concatena otro set preservando orden.
func (s Set) Append(other Set) Set {
	return append(s, other...)
}
