// Package memory implementa core.Repository sobre mapas en memoria.
// Pensado para desarrollo y tests; el CAS usa el mutex del store, que es
// suficiente para validar la disciplina de rotación sin una DB real.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/authgate/internal/store/core"
)

type Store struct {
	mu      sync.Mutex
	users   map[string]*core.User         // por ID
	links   map[string]*core.ProviderLink // por provider|externalUserID
	refresh map[string]*core.RefreshToken // por userID
}

func New() *Store {
	return &Store{
		users:   map[string]*core.User{},
		links:   map[string]*core.ProviderLink{},
		refresh: map[string]*core.RefreshToken{},
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func linkKey(provider, externalUserID string) string {
	return strings.ToLower(provider) + "|" + externalUserID
}

// ─────────────────────────── Users ───────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return core.ErrConflict
	}
	for _, other := range s.users {
		if u.Email != "" && strings.EqualFold(other.Email, u.Email) {
			return core.ErrConflict
		}
		if u.UserName != "" && strings.EqualFold(other.UserName, u.UserName) {
			return core.ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if email != "" && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByUserName(ctx context.Context, userName string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if userName != "" && strings.EqualFold(u.UserName, userName) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return core.ErrNotFound
	}
	cp := *u
	cp.ModifiedAt = time.Now().UTC()
	s.users[u.ID] = &cp
	return nil
}

// ─────────────────────────── Provider links ───────────────────────────

func (s *Store) GetLink(ctx context.Context, provider, externalUserID string) (*core.ProviderLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkKey(provider, externalUserID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListLinks(ctx context.Context, userID string) ([]core.ProviderLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.ProviderLink
	for _, l := range s.links {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *Store) UpsertLink(ctx context.Context, l *core.ProviderLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey(l.Provider, l.ExternalUserID)
	now := time.Now().UTC()
	if existing, ok := s.links[key]; ok {
		// Un (provider, externalUserID) solo puede estar ligado a un user.
		if existing.UserID != l.UserID {
			return core.ErrConflict
		}
		existing.PopulateMissing(l)
		existing.ModifiedAt = now
		return nil
	}
	cp := *l
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.ModifiedAt = now
	s.links[key] = &cp
	return nil
}

// ─────────────────────────── Refresh tokens ───────────────────────────

func (s *Store) GetRefreshToken(ctx context.Context, userID string) (*core.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tokenHash == "" {
		return nil, core.ErrNotFound
	}
	for _, rt := range s.refresh {
		if rt.TokenHash == tokenHash {
			cp := *rt
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) PutRefreshToken(ctx context.Context, rt *core.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rt
	if cp.IssuedAt.IsZero() {
		cp.IssuedAt = time.Now().UTC()
	}
	s.refresh[rt.UserID] = &cp
	return nil
}

func (s *Store) UpdateRefreshTokenCAS(ctx context.Context, userID, oldHash, newHash string, newExpiry time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[userID]
	if !ok || rt.TokenHash != oldHash {
		return false, nil
	}
	rt.TokenHash = newHash
	rt.ExpiresAt = newExpiry
	rt.IssuedAt = time.Now().UTC()
	return true, nil
}
