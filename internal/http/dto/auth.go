// Package dto define los request/response de la API de autenticación.
package dto

// LoginRequest es el body de POST /auth/login (credenciales locales).
type LoginRequest struct {
	UserName string `json:"user_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// TokenExchangeRequest es el body de POST /auth/token: la app nativa manda el
// id_token que ya obtuvo del SDK del provider.
type TokenExchangeRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

// RefreshRequest es el body de POST /auth/refresh. El token también puede
// venir en la cookie ss-reftok; el body tiene precedencia.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenResponse es la respuesta de login, token exchange y refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SessionResponse es la respuesta de GET /auth/session.
type SessionResponse struct {
	SessionID   string   `json:"session_id"`
	UserID      string   `json:"user_id"`
	UserName    string   `json:"user_name,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Providers   []string `json:"providers,omitempty"`
	FromToken   bool     `json:"from_token"`
}

// ProvidersResponse lista los providers habilitados.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}
