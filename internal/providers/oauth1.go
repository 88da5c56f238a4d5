package providers

import (
	"context"

	"github.com/dropDatabas3/authgate/internal/oauth1"
)

// OAuth1Strategy envuelve el handshake three-legged (Twitter).
type OAuth1Strategy struct {
	name      string
	handshake *oauth1.Handshake
}

func NewOAuth1Strategy(name string, h *oauth1.Handshake) *OAuth1Strategy {
	return &OAuth1Strategy{name: name, handshake: h}
}

func (s *OAuth1Strategy) Name() string { return s.name }
func (s *OAuth1Strategy) Kind() Kind   { return KindOAuth1 }

func (s *OAuth1Strategy) Start(ctx context.Context) (*StartState, error) {
	pending, authURL, err := s.handshake.AcquireRequestToken(ctx)
	if err != nil {
		return nil, err
	}
	return &StartState{RedirectURL: authURL, PendingID: pending.ID}, nil
}

func (s *OAuth1Strategy) Complete(ctx context.Context, ac AuthContext) (*Result, error) {
	res, err := s.handshake.AcquireAccessToken(ctx, ac.PendingID, ac.OAuthToken, ac.Verifier)
	if err != nil {
		return nil, err
	}
	return &Result{Link: res.Link, Claims: res.Claims}, nil
}
