package providers

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/dropDatabas3/authgate/internal/cache"
	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/config"
	"github.com/dropDatabas3/authgate/internal/oauth1"
	"github.com/dropDatabas3/authgate/internal/oauth2"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// Endpoints conocidos. Overridables por config para tests o proxies.
const (
	googleIssuer  = "https://accounts.google.com"
	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	appleIssuer       = "https://appleid.apple.com"
	appleJWKSURL      = "https://appleid.apple.com/auth/keys"
	appleAuthorizeURL = "https://appleid.apple.com/auth/authorize"
	appleTokenURL     = "https://appleid.apple.com/auth/token"
)

// refreshCheck re-valida el refresh token guardado de un provider, acotado
// por la ventana de cache (default 24h, el contrato de Apple).
type refreshCheck struct {
	exchanger *oauth2.Exchanger
	cache     *oauth2.RefreshValidationCache
}

// Registry resuelve estrategias por nombre de provider. Se arma una vez al
// boot desde la configuración; solo los providers habilitados entran.
type Registry struct {
	strategies    map[string]Strategy
	refreshChecks map[string]*refreshCheck
}

func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) add(s Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[s.Name()] = s
}

func (r *Registry) addRefreshCheck(provider string, ex *oauth2.Exchanger, rc *oauth2.RefreshValidationCache) {
	if r.refreshChecks == nil {
		r.refreshChecks = map[string]*refreshCheck{}
	}
	r.refreshChecks[provider] = &refreshCheck{exchanger: ex, cache: rc}
}

// ValidateProviderRefresh re-valida contra el provider el refresh token
// guardado en el link, a lo sumo una vez por ventana de cache. Links sin
// refresh token o de providers sin check configurado se omiten.
func (r *Registry) ValidateProviderRefresh(ctx context.Context, link *core.ProviderLink) error {
	if link == nil || link.RefreshToken == "" {
		return nil
	}
	check, ok := r.refreshChecks[link.Provider]
	if !ok {
		return nil
	}
	return check.cache.Validate(ctx, link.UserID, func(ctx context.Context) error {
		_, err := check.exchanger.ExchangeRefreshToken(ctx, link.RefreshToken)
		return err
	})
}

// NewRegistry construye las estrategias habilitadas en la configuración.
func NewRegistry(cfg *config.Config, c cache.Cache, hc *http.Client) (*Registry, error) {
	r := &Registry{}

	pendingTTL := config.ParseDuration(cfg.Providers.PendingHandshakeTTL, 0)
	jwksTTL := config.ParseDuration(cfg.Providers.JWKSTTL, 0)
	revalTTL := config.ParseDuration(cfg.Providers.RefreshValidationTTL, 0)
	states := NewStateStore(c, pendingTTL)

	if tw := cfg.Providers.Twitter; tw.Enabled {
		h := oauth1.NewHandshake("twitter", tw.ConsumerKey, tw.ConsumerSecret, oauth1.Endpoints{
			RequestTokenURL: tw.RequestTokenURL,
			AuthorizeURL:    tw.AuthorizeURL,
			AccessTokenURL:  tw.AccessTokenURL,
			CallbackURL:     tw.CallbackURL,
		}, oauth1.NewCachePendingStore(c, pendingTTL), hc)
		r.add(NewOAuth1Strategy("twitter", h))
	}

	if g := cfg.Providers.Google; g.Enabled {
		issuer := firstNonEmptyStr(g.IssuerURL, googleIssuer)
		jwksURL := firstNonEmptyStr(g.JWKSURL, googleJWKSURL)
		verifier := &oauth2.IDTokenVerifier{
			Provider:        "google",
			Issuer:          issuer,
			ServiceAudience: g.ClientID,
			Keys:            oauth2.NewKeySet("google", jwksURL, jwksTTL, hc),
		}
		ex := oauth2.NewExchanger("google", g.TokenURL, g.ClientID, oauth2.StaticSecret(g.ClientSecret), g.CallbackURL, hc)
		r.add(&OAuth2CodeStrategy{
			ProviderName: "google",
			AuthorizeURL: g.AuthorizeURL,
			ClientID:     g.ClientID,
			RedirectURI:  g.CallbackURL,
			Scopes:       defaultScopes(g.Scopes, []string{"openid", "email", "profile"}),
			Exchanger:    ex,
			Verifier:     verifier,
			States:       states,
		})
		r.add(&IdentityTokenStrategy{ProviderName: "google-token", LinkProvider: "google", Verifier: verifier})
		r.addRefreshCheck("google", ex, oauth2.NewRefreshValidationCache("google", c, revalTTL))
	}

	if fb := cfg.Providers.Facebook; fb.Enabled {
		r.add(&OAuth2CodeStrategy{
			ProviderName: "facebook",
			AuthorizeURL: fb.AuthorizeURL,
			ClientID:     fb.ClientID,
			RedirectURI:  fb.CallbackURL,
			Scopes:       defaultScopes(fb.Scopes, []string{"email"}),
			Exchanger:    oauth2.NewExchanger("facebook", fb.TokenURL, fb.ClientID, oauth2.StaticSecret(fb.ClientSecret), fb.CallbackURL, hc),
			Profile: oauth2.NewProfileFetcher("facebook", fb.UserInfoURL, []oauth2.ProfileField{
				{JSONKey: "id", ClaimType: claims.Subject},
				{JSONKey: "name", ClaimType: claims.DisplayName},
				{JSONKey: "email", ClaimType: claims.Email},
				{JSONKey: "first_name", ClaimType: claims.GivenName},
				{JSONKey: "last_name", ClaimType: claims.FamilyName},
			}, hc),
			States: states,
		})
	}

	if gh := cfg.Providers.GitHub; gh.Enabled {
		r.add(&OAuth2CodeStrategy{
			ProviderName: "github",
			AuthorizeURL: gh.AuthorizeURL,
			ClientID:     gh.ClientID,
			RedirectURI:  gh.CallbackURL,
			Scopes:       defaultScopes(gh.Scopes, []string{"read:user", "user:email"}),
			Exchanger:    oauth2.NewExchanger("github", gh.TokenURL, gh.ClientID, oauth2.StaticSecret(gh.ClientSecret), gh.CallbackURL, hc),
			Profile: oauth2.NewProfileFetcher("github", gh.UserInfoURL, []oauth2.ProfileField{
				{JSONKey: "id", ClaimType: claims.Subject},
				{JSONKey: "login", ClaimType: claims.PreferredUsername},
				{JSONKey: "name", ClaimType: claims.DisplayName},
				{JSONKey: "email", ClaimType: claims.Email},
				{JSONKey: "avatar_url", ClaimType: claims.Picture},
			}, hc),
			States: states,
		})
	}

	if ap := cfg.Providers.Apple; ap.Enabled {
		key, err := oauth2.LoadECPrivateKey(ap.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("apple private key: %w", err)
		}
		secret := &oauth2.JWTSecretFactory{
			TeamID:     ap.TeamID,
			ClientID:   ap.ClientID,
			Audience:   appleIssuer,
			KeyID:      ap.KeyID,
			PrivateKey: key,
		}
		verifier := &oauth2.IDTokenVerifier{
			Provider:        "apple",
			Issuer:          appleIssuer,
			ServiceAudience: ap.ClientID,
			BundleAudience:  ap.BundleID,
			Keys:            oauth2.NewKeySet("apple", appleJWKSURL, jwksTTL, hc),
		}
		ex := oauth2.NewExchanger("apple", appleTokenURL, ap.ClientID, secret, ap.CallbackURL, hc)
		r.add(&OAuth2CodeStrategy{
			ProviderName: "apple",
			AuthorizeURL: appleAuthorizeURL,
			ClientID:     ap.ClientID,
			RedirectURI:  ap.CallbackURL,
			Scopes:       []string{"name", "email"},
			Exchanger:    ex,
			Verifier:     verifier,
			States:       states,
		})
		r.add(&IdentityTokenStrategy{ProviderName: "apple-token", LinkProvider: "apple", Verifier: verifier})
		r.addRefreshCheck("apple", ex, oauth2.NewRefreshValidationCache("apple", c, revalTTL))
	}

	return r, nil
}

func defaultScopes(configured, def []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return def
}

func firstNonEmptyStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
