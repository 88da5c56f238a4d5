package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
)

// TokenResponse es la respuesta JSON del token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Exchanger intercambia authorization codes y refresh tokens contra el token
// endpoint de un provider. ClientSecret es pluggable (ver secret.go).
type Exchanger struct {
	Provider     string
	TokenURL     string
	ClientID     string
	ClientSecret ClientSecret
	RedirectURI  string
	HTTP         *http.Client
}

func NewExchanger(provider, tokenURL, clientID string, secret ClientSecret, redirectURI string, hc *http.Client) *Exchanger {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Exchanger{
		Provider:     provider,
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURI:  redirectURI,
		HTTP:         hc,
	}
}

// ExchangeCode intercambia un authorization code por tokens.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", e.RedirectURI)
	return e.post(ctx, form)
}

// ExchangeRefreshToken re-valida un refresh token de larga vida contra el
// provider (grant_type=refresh_token). Caro y posiblemente rate-limited:
// usar detrás de RefreshValidationCache.
func (e *Exchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return e.post(ctx, form)
}

func (e *Exchanger) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	log := logger.From(ctx).With(
		logger.Component("oauth2.exchange"),
		logger.Provider(e.Provider),
	)

	secret, err := e.ClientSecret.Secret()
	if err != nil {
		return nil, fmt.Errorf("client secret factory: %w", err)
	}
	form.Set("client_id", e.ClientID)
	form.Set("client_secret", secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.HTTP.Do(req)
	metrics.ProviderExchangeLatency.WithLabelValues(e.Provider).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("token endpoint unreachable", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode/100 != 2 {
		pe := &ProviderError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, pe)
		if pe.Code == "" {
			pe.Code = "invalid_response"
		}
		log.Warn("token endpoint rejected request",
			logger.Int("status", resp.StatusCode),
			logger.String("error_code", pe.Code),
		)
		return nil, pe
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: "malformed_response"}
	}
	if tr.AccessToken == "" && tr.IDToken == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Code: "empty_token_response"}
	}
	return &tr, nil
}
