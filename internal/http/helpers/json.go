// Package helpers agrupa utilidades compartidas por los controllers.
package helpers

import (
	"encoding/json"
	"net/http"
)

const (
	// MaxBodySize limita el body de los POST de auth.
	MaxBodySize     = 64 * 1024 // 64KB
	ContentTypeJSON = "application/json; charset=utf-8"
)

// ReadJSON decodifica el body JSON con límite de tamaño.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// WriteJSON responde JSON con headers anti-cache (respuestas con tokens
// nunca deben cachearse).
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
