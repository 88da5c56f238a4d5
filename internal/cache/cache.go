// Package cache provee una abstracción mínima de cache con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// Se usa para sesiones, handshakes OAuth1 pendientes, JWKS de providers y la
// ventana de re-validación de refresh tokens.
package cache

import "time"

// Cache define las operaciones básicas de cache orientadas a bytes.
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
}
