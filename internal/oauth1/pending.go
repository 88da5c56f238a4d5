package oauth1

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// PendingStore guarda el estado transitorio del handshake entre el redirect
// y el callback. El registro se descarta tras éxito o fallo.
type PendingStore interface {
	Put(ctx context.Context, p *core.PendingHandshake) error
	Get(ctx context.Context, id string) (*core.PendingHandshake, error)
	Delete(ctx context.Context, id string)
}

// CachePendingStore implementa PendingStore sobre cache.Cache con TTL.
type CachePendingStore struct {
	Cache cache.Cache
	TTL   time.Duration
}

func NewCachePendingStore(c cache.Cache, ttl time.Duration) *CachePendingStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachePendingStore{Cache: c, TTL: ttl}
}

func pendingKey(id string) string { return "oauth1:pending:" + id }

func (s *CachePendingStore) Put(ctx context.Context, p *core.PendingHandshake) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.Cache.Set(pendingKey(p.ID), b, s.TTL)
	return nil
}

func (s *CachePendingStore) Get(ctx context.Context, id string) (*core.PendingHandshake, error) {
	b, ok := s.Cache.Get(pendingKey(id))
	if !ok {
		return nil, ErrHandshakeUnknown
	}
	var p core.PendingHandshake
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, ErrHandshakeUnknown
	}
	return &p, nil
}

func (s *CachePendingStore) Delete(ctx context.Context, id string) {
	s.Cache.Delete(pendingKey(id))
}
