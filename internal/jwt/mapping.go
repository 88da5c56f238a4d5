package jwt

import (
	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// FieldClaim declara el mapeo user-field → claim-type. La tabla es data, no
// condicionales dispersos: mint la recorre hacia adelante y la rehidratación
// de sesión la corre en reversa.
type FieldClaim struct {
	Type string
	Get  func(u *core.User) string
	Set  func(s *session.Session, v string)
}

// DefaultFieldMap es el mapeo por defecto. Cada entrada se copia solo si el
// campo origen no está vacío y el claim destino no existe todavía.
var DefaultFieldMap = []FieldClaim{
	{
		Type: claims.PreferredUsername,
		Get:  func(u *core.User) string { return u.UserName },
		Set:  func(s *session.Session, v string) { s.UserName = v },
	},
	{
		Type: claims.DisplayName,
		Get:  func(u *core.User) string { return u.DisplayName },
		Set:  func(s *session.Session, v string) { s.DisplayName = v },
	},
	{
		Type: claims.Email,
		Get:  func(u *core.User) string { return u.Email },
		Set:  func(s *session.Session, v string) { s.Email = v },
	},
}

// buildClaimSet arma el claim set de mint: campos del user vía la tabla,
// claims externos al final, y dedup first-wins para roles/permisos.
func buildClaimSet(u *core.User, fieldMap []FieldClaim, extra claims.Set) claims.Set {
	cs := claims.Set{}
	cs = cs.Add(claims.Subject, u.ID)

	for _, fc := range fieldMap {
		v := fc.Get(u)
		if v == "" || cs.Has(fc.Type) {
			continue
		}
		cs = cs.Add(fc.Type, v)
	}

	for _, r := range u.Roles {
		cs = cs.Add(claims.Role, r)
	}
	for _, p := range u.Permissions {
		cs = cs.Add(claims.Permission, p)
	}

	// Claims externos (ej: de un id_token OAuth2) se agregan después:
	// no pisan lo que ya mapeó el user canónico.
	for _, c := range extra {
		if c.Type == claims.Role || c.Type == claims.Permission {
			cs = append(cs, c)
			continue
		}
		if cs.Has(c.Type) {
			continue
		}
		cs = append(cs, c)
	}

	return cs.Dedup()
}
