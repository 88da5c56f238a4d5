package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/oauth2"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// StateStore correlaciona el state del redirect con el nonce emitido.
// Un state se consume una sola vez; un state desconocido es mismatch.
type StateStore struct {
	Cache cache.Cache
	TTL   time.Duration
}

func NewStateStore(c cache.Cache, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{Cache: c, TTL: ttl}
}

func stateKey(state string) string { return "oauth2:state:" + state }

func (st *StateStore) Issue() (state, nonce string, err error) {
	state, err = tokens.GenerateOpaqueToken(24)
	if err != nil {
		return "", "", err
	}
	nonce, err = tokens.GenerateNonce(16)
	if err != nil {
		return "", "", err
	}
	st.Cache.Set(stateKey(state), []byte(nonce), st.TTL)
	return state, nonce, nil
}

// Consume devuelve el nonce asociado y quema el state.
func (st *StateStore) Consume(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	b, ok := st.Cache.Get(stateKey(state))
	if !ok {
		return "", false
	}
	st.Cache.Delete(stateKey(state))
	return string(b), true
}

// OAuth2CodeStrategy implementa el flujo authorization-code. La identidad
// sale del id_token cuando el provider es OIDC (Verifier != nil) o de un
// fetch al userinfo endpoint en caso contrario (Profile != nil).
type OAuth2CodeStrategy struct {
	ProviderName string
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
	Scopes       []string

	Exchanger *oauth2.Exchanger
	Verifier  *oauth2.IDTokenVerifier
	Profile   *oauth2.ProfileFetcher
	States    *StateStore
	Now       func() time.Time
}

func (s *OAuth2CodeStrategy) Name() string { return s.ProviderName }
func (s *OAuth2CodeStrategy) Kind() Kind   { return KindOAuth2Code }

func (s *OAuth2CodeStrategy) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *OAuth2CodeStrategy) Start(ctx context.Context) (*StartState, error) {
	state, nonce, err := s.States.Issue()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.ClientID)
	q.Set("redirect_uri", s.RedirectURI)
	q.Set("state", state)
	if len(s.Scopes) > 0 {
		q.Set("scope", strings.Join(s.Scopes, " "))
	}
	if s.Verifier != nil {
		q.Set("nonce", nonce)
	}

	sep := "?"
	if strings.Contains(s.AuthorizeURL, "?") {
		sep = "&"
	}
	return &StartState{RedirectURL: s.AuthorizeURL + sep + q.Encode()}, nil
}

func (s *OAuth2CodeStrategy) Complete(ctx context.Context, ac AuthContext) (*Result, error) {
	nonce, ok := s.States.Consume(ac.State)
	if !ok {
		return nil, ErrStateMismatch
	}
	if ac.Code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrStateMismatch)
	}

	tr, err := s.Exchanger.ExchangeCode(ctx, ac.Code)
	if err != nil {
		return nil, err
	}

	var cs claims.Set
	switch {
	case s.Verifier != nil:
		if tr.IDToken == "" {
			return nil, oauth2.ErrIDTokenMalformed
		}
		cs, _, err = s.Verifier.Verify(ctx, tr.IDToken, nonce)
		if err != nil {
			return nil, err
		}
	case s.Profile != nil:
		cs, err = s.Profile.Fetch(ctx, tr.AccessToken)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("provider %s: no identity source configured", s.ProviderName)
	}

	sub := cs.First(claims.Subject)
	if sub == "" {
		return nil, oauth2.ErrIDTokenMalformed
	}

	link := &core.ProviderLink{
		Provider:         s.ProviderName,
		ExternalUserID:   sub,
		ExternalUserName: cs.First(claims.PreferredUsername),
		AccessToken:      tr.AccessToken,
		RefreshToken:     tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 && tr.RefreshToken != "" {
		exp := s.now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
		link.RefreshTokenExpiry = &exp
	}
	return &Result{Link: link, Claims: cs}, nil
}
