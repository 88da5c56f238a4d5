package jwt

import "errors"

// Clases de fallo del ciclo de vida de tokens. Distinguibles para que el
// caller decida entre pedir re-login o reintentar con el refresh token.
var (
	ErrSignatureInvalid    = errors.New("signature_invalid")
	ErrExpired             = errors.New("token_expired")
	ErrAudienceMismatch    = errors.New("audience_mismatch")
	ErrIssuerMismatch      = errors.New("issuer_mismatch")
	ErrMalformed           = errors.New("token_malformed")
	ErrRefreshTokenExpired = errors.New("refresh_token_expired")
	ErrRefreshTokenUnknown = errors.New("refresh_token_unknown")
	ErrAccountLocked       = errors.New("account_locked")
	ErrAccountDisabled     = errors.New("account_disabled")
	ErrRotationConflict    = errors.New("rotation_conflict")
)
