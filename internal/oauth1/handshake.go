package oauth1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/google/uuid"
)

// Endpoints son las URLs del provider para el flujo de tres pasos.
type Endpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	CallbackURL     string
}

// Handshake ejecuta el flujo three-legged contra un provider OAuth 1.0a.
//
// Estados: Start → RequestTokenAcquired → UserAuthorized → AccessTokenAcquired,
// o Failed (terminal, alcanzable desde cualquier estado). El estado entre
// requests vive en PendingStore, no en memoria del proceso.
type Handshake struct {
	Provider       string
	ConsumerKey    string
	ConsumerSecret string
	Endpoints      Endpoints
	Pending        PendingStore
	HTTP           *http.Client
	Now            func() time.Time
}

func NewHandshake(provider, consumerKey, consumerSecret string, eps Endpoints, pending PendingStore, hc *http.Client) *Handshake {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Handshake{
		Provider:       provider,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Endpoints:      eps,
		Pending:        pending,
		HTTP:           hc,
		Now:            time.Now,
	}
}

// baseParams arma los oauth_* comunes a ambos pasos firmados.
func (h *Handshake) baseParams() (map[string]string, error) {
	nonce, err := tokens.GenerateNonce(16)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"oauth_consumer_key":     h.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(h.Now().UTC().Unix(), 10),
		"oauth_version":          "1.0",
	}, nil
}

// signedPost firma los params y hace el POST con el Authorization header.
// Devuelve el body parseado como url.Values.
func (h *Handshake) signedPost(ctx context.Context, endpoint, tokenSecret string, params map[string]string) (url.Values, error) {
	params["oauth_signature"] = Sign("POST", endpoint, h.ConsumerSecret, tokenSecret, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Authorization", AuthorizationHeader(params))

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrProtocol, resp.StatusCode, truncate(string(body), 200))
	}
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed response body", ErrProtocol)
	}
	return vals, nil
}

// AcquireRequestToken ejecuta el primer paso: POST firmado al request-token
// endpoint (sin token secret). Persiste el handshake pendiente y devuelve la
// URL de autorización a la que hay que redirigir al usuario.
// Cualquier fallo deja el handshake en Failed; este paso no se reintenta.
func (h *Handshake) AcquireRequestToken(ctx context.Context) (*core.PendingHandshake, string, error) {
	log := logger.From(ctx).With(
		logger.Component("oauth1.handshake"),
		logger.Provider(h.Provider),
		logger.Op("AcquireRequestToken"),
	)

	params, err := h.baseParams()
	if err != nil {
		return nil, "", err
	}
	if h.Endpoints.CallbackURL != "" {
		params["oauth_callback"] = h.Endpoints.CallbackURL
	}

	vals, err := h.signedPost(ctx, h.Endpoints.RequestTokenURL, "", params)
	if err != nil {
		log.Warn("request token acquisition failed", logger.Err(err))
		return nil, "", err
	}

	reqToken := vals.Get("oauth_token")
	reqSecret := vals.Get("oauth_token_secret")
	if reqToken == "" || reqSecret == "" {
		return nil, "", fmt.Errorf("%w: response missing oauth_token/oauth_token_secret", ErrProtocol)
	}

	pending := &core.PendingHandshake{
		ID:                 uuid.NewString(),
		Provider:           h.Provider,
		RequestToken:       reqToken,
		RequestTokenSecret: reqSecret,
		CreatedAt:          h.Now().UTC(),
	}
	if err := h.Pending.Put(ctx, pending); err != nil {
		return nil, "", err
	}

	authURL := h.Endpoints.AuthorizeURL + "?oauth_token=" + url.QueryEscape(reqToken)
	log.Debug("request token acquired", logger.TokenPrefix(reqToken))
	return pending, authURL, nil
}

// AccessResult es el resultado terminal del handshake.
type AccessResult struct {
	Link   *core.ProviderLink
	Claims claims.Set
}

// AcquireAccessToken ejecuta el tercer paso, invocado en el callback del
// provider con (oauth_token, oauth_verifier). Valida que el token devuelto
// coincida con el request token guardado (error de protocolo si no — nunca
// se sustituye en silencio), firma con el request-token secret y extrae el
// access token más los campos extra del provider. Los campos transitorios se
// descartan siempre, incluso en fallo.
func (h *Handshake) AcquireAccessToken(ctx context.Context, pendingID, oauthToken, verifier string) (*AccessResult, error) {
	log := logger.From(ctx).With(
		logger.Component("oauth1.handshake"),
		logger.Provider(h.Provider),
		logger.Op("AcquireAccessToken"),
	)

	pending, err := h.Pending.Get(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	// El registro pendiente se quema pase lo que pase.
	defer h.Pending.Delete(ctx, pendingID)

	if oauthToken == "" || oauthToken != pending.RequestToken {
		log.Warn("callback token mismatch", logger.TokenPrefix(oauthToken))
		return nil, ErrTokenMismatch
	}
	if verifier == "" {
		return nil, fmt.Errorf("%w: missing oauth_verifier", ErrProtocol)
	}

	params, err := h.baseParams()
	if err != nil {
		return nil, err
	}
	params["oauth_token"] = pending.RequestToken
	params["oauth_verifier"] = verifier

	vals, err := h.signedPost(ctx, h.Endpoints.AccessTokenURL, pending.RequestTokenSecret, params)
	if err != nil {
		log.Warn("access token exchange failed", logger.Err(err))
		return nil, err
	}

	accessToken := vals.Get("oauth_token")
	accessSecret := vals.Get("oauth_token_secret")
	if accessToken == "" || accessSecret == "" {
		return nil, fmt.Errorf("%w: response missing access token", ErrProtocol)
	}

	link := &core.ProviderLink{
		Provider:          h.Provider,
		ExternalUserID:    firstNonEmpty(vals.Get("user_id"), vals.Get("user_nsid")),
		ExternalUserName:  vals.Get("screen_name"),
		AccessToken:       accessToken,
		AccessTokenSecret: accessSecret,
		ExtraClaims:       map[string]string{},
	}

	cs := claims.Set{}
	cs = cs.Add(claims.Subject, link.ExternalUserID)
	cs = cs.Add(claims.PreferredUsername, link.ExternalUserName)

	// Campos extra específicos del provider (todo lo que no sea oauth_*).
	for k := range vals {
		if strings.HasPrefix(k, "oauth_") || k == "user_id" || k == "screen_name" {
			continue
		}
		if v := vals.Get(k); v != "" {
			link.ExtraClaims[k] = v
		}
	}

	log.Info("access token acquired", logger.ExternalUserID(link.ExternalUserID))
	return &AccessResult{Link: link, Claims: cs}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
