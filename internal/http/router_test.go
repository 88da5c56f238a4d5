package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	memcache "github.com/dropDatabas3/authgate/internal/cache/memory"
	"github.com/dropDatabas3/authgate/internal/config"
	authhttp "github.com/dropDatabas3/authgate/internal/http"
	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	"github.com/dropDatabas3/authgate/internal/http/dto"
	svc "github.com/dropDatabas3/authgate/internal/http/services/auth"
	"github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
	memstore "github.com/dropDatabas3/authgate/internal/store/memory"
)

// Params livianos: acá se testea el flujo, no el costo del hash.
var testHashParams = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func newTestServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()

	repo := memstore.New()
	c := memcache.New(time.Minute)
	sessions := session.NewStore(c, time.Hour)

	iss := jwt.NewHS256("https://auth.test", "test-api", []byte("router-test-secret"))
	refresher := jwt.NewRefresher(iss, repo, 30*24*time.Hour, jwt.PolicyRotate)

	registry, err := providers.NewRegistry(&config.Config{}, c, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	service := &svc.Service{
		Repo:       repo,
		Registry:   registry,
		Reconciler: session.NewReconciler(repo, sessions),
		Issuer:     iss,
		Refresher:  refresher,
		Sessions:   sessions,
	}

	ctrl := authctrl.NewControllers(service, authctrl.CookieConfig{
		Name:        "ss-tok",
		RefreshName: "ss-reftok",
		SessionName: "ss-id",
		SameSite:    "lax",
		AccessTTL:   jwt.DefaultAccessTTL,
		RefreshTTL:  30 * 24 * time.Hour,
		SessionTTL:  time.Hour,
	})

	h := authhttp.NewRouter(authhttp.RouterDeps{
		Controllers:       ctrl,
		Bearer:            &providers.JwtBearer{Issuer: iss},
		Sessions:          sessions,
		Repo:              repo,
		CookieName:        "ss-tok",
		SessionCookieName: "ss-id",
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, repo
}

func seedUser(t *testing.T, repo *memstore.Store, plain string) *core.User {
	t.Helper()
	phc, err := password.Hash(testHashParams, plain)
	require.NoError(t, err)
	u := &core.User{
		ID:           "u-router",
		UserName:     "jdoe",
		DisplayName:  "John Doe",
		Email:        "jdoe@example.com",
		PasswordHash: &phc,
		Status:       core.UserActive,
		Roles:        []string{"admin"},
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeTokens(t *testing.T, resp *http.Response) dto.TokenResponse {
	t.Helper()
	defer resp.Body.Close()
	var out dto.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func cookieValue(resp *http.Response, name string) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func TestLoginSessionRefreshLogoutFlow(t *testing.T) {
	ts, repo := newTestServer(t)
	seedUser(t, repo, "s3cret")

	// Login con credenciales locales.
	resp := postJSON(t, ts.URL+"/auth/login", dto.LoginRequest{Email: "jdoe@example.com", Password: "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, cookieValue(resp, "ss-tok"))
	require.NotEmpty(t, cookieValue(resp, "ss-reftok"))
	tokens := decodeTokens(t, resp)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)

	// La sesión se rehidrata del bearer token, sin tocar el store.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	sresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sresp.Body.Close()
	require.Equal(t, http.StatusOK, sresp.StatusCode)
	var sess dto.SessionResponse
	require.NoError(t, json.NewDecoder(sresp.Body).Decode(&sess))
	require.Equal(t, "u-router", sess.UserID)
	require.Equal(t, "jdoe@example.com", sess.Email)
	require.True(t, sess.FromToken)
	require.Equal(t, []string{"admin"}, sess.Roles)

	// Refresh rota el refresh token.
	rresp := postJSON(t, ts.URL+"/auth/refresh", dto.RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rresp.StatusCode)
	rotated := decodeTokens(t, rresp)
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// El refresh token viejo quedó invalidado.
	old := postJSON(t, ts.URL+"/auth/refresh", dto.RefreshRequest{RefreshToken: tokens.RefreshToken})
	old.Body.Close()
	require.Equal(t, http.StatusUnauthorized, old.StatusCode)

	// Logout revoca el refresh token vigente.
	lreq, _ := http.NewRequest(http.MethodPost, ts.URL+"/auth/logout", nil)
	lreq.Header.Set("Authorization", "Bearer "+rotated.AccessToken)
	lresp, err := http.DefaultClient.Do(lreq)
	require.NoError(t, err)
	lresp.Body.Close()
	require.Equal(t, http.StatusOK, lresp.StatusCode)

	revoked := postJSON(t, ts.URL+"/auth/refresh", dto.RefreshRequest{RefreshToken: rotated.RefreshToken})
	revoked.Body.Close()
	require.Equal(t, http.StatusUnauthorized, revoked.StatusCode)
}

// Un cliente cookie-only (sin Authorization) rehidrata la sesión server-side
// por ss-id, y el logout la borra del store de verdad.
func TestSessionCookieRoundTrip(t *testing.T) {
	ts, repo := newTestServer(t)
	seedUser(t, repo, "s3cret")

	resp := postJSON(t, ts.URL+"/auth/login", dto.LoginRequest{Email: "jdoe@example.com", Password: "s3cret"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := cookieValue(resp, "ss-id")
	require.NotEmpty(t, sid)

	withSID := func(method, url string) *http.Response {
		req, err := http.NewRequest(method, url, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "ss-id", Value: sid})
		out, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return out
	}

	sresp := withSID(http.MethodGet, ts.URL+"/auth/session")
	defer sresp.Body.Close()
	require.Equal(t, http.StatusOK, sresp.StatusCode)
	var sess dto.SessionResponse
	require.NoError(t, json.NewDecoder(sresp.Body).Decode(&sess))
	require.Equal(t, "u-router", sess.UserID)
	require.False(t, sess.FromToken)

	lresp := withSID(http.MethodPost, ts.URL+"/auth/logout")
	lresp.Body.Close()
	require.Equal(t, http.StatusOK, lresp.StatusCode)
	require.Empty(t, cookieValue(lresp, "ss-id"))

	// La sesión ya no existe en el store.
	gone := withSID(http.MethodGet, ts.URL+"/auth/session")
	gone.Body.Close()
	require.Equal(t, http.StatusUnauthorized, gone.StatusCode)
}

func TestLoginWrongPassword(t *testing.T) {
	ts, repo := newTestServer(t)
	seedUser(t, repo, "s3cret")

	resp := postJSON(t, ts.URL+"/auth/login", dto.LoginRequest{Email: "jdoe@example.com", Password: "nope"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "invalid_credentials", body.Code)
}

func TestSessionRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/auth/session")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginFormEncoded(t *testing.T) {
	ts, repo := newTestServer(t)
	seedUser(t, repo, "s3cret")

	resp, err := http.Post(ts.URL+"/auth/login", "application/x-www-form-urlencoded",
		bytes.NewReader([]byte("email=jdoe%40example.com&password=s3cret")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tokens := decodeTokens(t, resp)
	require.NotEmpty(t, tokens.AccessToken)
}

func TestUnknownProvider(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/auth/myspace")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProvidersListEmpty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/auth/providers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.ProvidersResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Empty(t, out.Providers)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
