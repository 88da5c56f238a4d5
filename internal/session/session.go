// Package session define la proyección de sesión y el reconciler que
// convierte identidades externas verificadas en usuarios canónicos.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/google/uuid"
)

// Session es una proyección efímera del user canónico más los claims del
// request. Vive en cache o viaja dentro de un bearer token; nunca es el
// sistema de registro.
type Session struct {
	ID              string              `json:"id"`
	IsAuthenticated bool                `json:"is_authenticated"`
	UserID          string              `json:"user_id"`
	UserName        string              `json:"user_name"`
	DisplayName     string              `json:"display_name"`
	Email           string              `json:"email"`
	Roles           []string            `json:"roles"`
	Permissions     []string            `json:"permissions"`
	Providers       []core.ProviderLink `json:"providers,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	LastModified    time.Time           `json:"last_modified"`
	// FromToken marca sesiones rehidratadas de un bearer token:
	// autocontenidas, sin round-trip al repositorio, y nunca persistidas.
	FromToken bool `json:"from_token"`
}

// New crea una sesión anónima nueva.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastModified: now,
	}
}

// HasRole informa si la sesión tiene un rol.
func (s *Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Store guarda sesiones en cache (memory o redis) con TTL.
// Sesiones FromToken no se guardan nunca.
type Store struct {
	Cache cache.Cache
	TTL   time.Duration
}

func NewStore(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{Cache: c, TTL: ttl}
}

func sessionKey(id string) string { return "session:" + id }

func (st *Store) Get(ctx context.Context, id string) (*Session, bool) {
	b, ok := st.Cache.Get(sessionKey(id))
	if !ok {
		return nil, false
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (st *Store) Save(ctx context.Context, s *Session) error {
	if s.FromToken {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	st.Cache.Set(sessionKey(s.ID), b, st.TTL)
	return nil
}

func (st *Store) Delete(ctx context.Context, id string) {
	st.Cache.Delete(sessionKey(id))
}
