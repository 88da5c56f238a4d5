// Package oauth2 implementa el intercambio authorization-code / refresh-token
// contra el token endpoint de un provider y la validación de identity tokens
// firmados (OIDC) contra el key set publicado por el provider.
package oauth2

import (
	"errors"
	"fmt"
)

// ErrTransport marca fallos de red (timeout, connection refused). Distintos
// de los rechazos de protocolo: pueden reintentarse por el caller y no
// corrompen estado, porque ningún token fue aceptado todavía.
var ErrTransport = errors.New("provider transport failure")

// ProviderError es un rechazo del provider parseado del body de error
// (non-2xx del token endpoint). Siempre fatal para el intento actual.
type ProviderError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider rejected request (http %d): %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("provider rejected request (http %d): %s", e.StatusCode, e.Code)
}

// Fallos de validación de identity tokens.
var (
	ErrIDTokenMalformed = errors.New("id_token malformed")
	ErrSignatureInvalid = errors.New("id_token signature invalid")
	ErrIssuerMismatch   = errors.New("id_token issuer mismatch")
	ErrAudienceMismatch = errors.New("id_token audience mismatch")
	ErrNonceMismatch    = errors.New("id_token nonce mismatch")
	ErrKeyNotFound      = errors.New("signing key not found in provider key set")
)
