package oauth1

import "errors"

// Fallos de protocolo: fatales para el intento en curso, nunca se reintentan.
// Fallos de transporte: se envuelven con ErrTransport para que el caller los
// distinga y decida reintentar con backoff.
var (
	ErrTransport        = errors.New("provider transport failure")
	ErrProtocol         = errors.New("oauth1 protocol error")
	ErrTokenMismatch    = errors.New("oauth_token does not match pending request token")
	ErrHandshakeUnknown = errors.New("pending handshake not found or expired")
)
