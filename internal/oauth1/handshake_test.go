package oauth1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	memcache "github.com/dropDatabas3/authgate/internal/cache/memory"
)

// fakeProvider simula los endpoints request_token y access_token de un
// provider OAuth1.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/request_token", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("oauth_token=req-tok&oauth_token_secret=req-sec&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.Contains(auth, `oauth_token="req-tok"`) || !strings.Contains(auth, `oauth_verifier="ver-123"`) {
			http.Error(w, "bad token or verifier", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("oauth_token=acc-tok&oauth_token_secret=acc-sec&user_id=42&screen_name=johndoe&followers_count=7"))
	})
	return httptest.NewServer(mux)
}

func newTestHandshake(t *testing.T, base string) *Handshake {
	t.Helper()
	return NewHandshake("twitter", "ckey", "csecret", Endpoints{
		RequestTokenURL: base + "/request_token",
		AuthorizeURL:    base + "/authorize",
		AccessTokenURL:  base + "/access_token",
		CallbackURL:     "https://app.example.com/auth/twitter/callback",
	}, NewCachePendingStore(memcache.New(time.Minute), time.Minute), nil)
}

func TestHandshakeHappyPath(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	ctx := context.Background()
	h := newTestHandshake(t, srv.URL)

	pending, authURL, err := h.AcquireRequestToken(ctx)
	if err != nil {
		t.Fatalf("AcquireRequestToken: %v", err)
	}
	if !strings.Contains(authURL, "oauth_token=req-tok") {
		t.Errorf("authorize URL sin request token: %s", authURL)
	}
	if pending.RequestTokenSecret != "req-sec" {
		t.Errorf("secret pendiente: %q", pending.RequestTokenSecret)
	}

	res, err := h.AcquireAccessToken(ctx, pending.ID, "req-tok", "ver-123")
	if err != nil {
		t.Fatalf("AcquireAccessToken: %v", err)
	}
	if res.Link.AccessToken != "acc-tok" || res.Link.AccessTokenSecret != "acc-sec" {
		t.Errorf("access token: %+v", res.Link)
	}
	if res.Link.ExternalUserID != "42" || res.Link.ExternalUserName != "johndoe" {
		t.Errorf("identidad: %+v", res.Link)
	}
	if res.Link.ExtraClaims["followers_count"] != "7" {
		t.Errorf("extra claims: %+v", res.Link.ExtraClaims)
	}

	// El registro pendiente se quema tras el éxito.
	if _, err := h.Pending.Get(ctx, pending.ID); !errors.Is(err, ErrHandshakeUnknown) {
		t.Errorf("pendiente no quemado: %v", err)
	}
}

func TestHandshakeTokenMismatch(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	ctx := context.Background()
	h := newTestHandshake(t, srv.URL)

	pending, _, err := h.AcquireRequestToken(ctx)
	if err != nil {
		t.Fatalf("AcquireRequestToken: %v", err)
	}

	// Token sustituido en el callback: error de protocolo, nunca se firma
	// con el token ajeno.
	_, err = h.AcquireAccessToken(ctx, pending.ID, "other-token", "ver-123")
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("want ErrTokenMismatch, got %v", err)
	}

	// Y el pendiente quedó quemado igual.
	if _, err := h.AcquireAccessToken(ctx, pending.ID, "req-tok", "ver-123"); !errors.Is(err, ErrHandshakeUnknown) {
		t.Fatalf("want ErrHandshakeUnknown tras el fallo, got %v", err)
	}
}

func TestHandshakeUnknownPending(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	h := newTestHandshake(t, srv.URL)

	_, err := h.AcquireAccessToken(context.Background(), "no-such-id", "req-tok", "v")
	if !errors.Is(err, ErrHandshakeUnknown) {
		t.Fatalf("want ErrHandshakeUnknown, got %v", err)
	}
}

func TestHandshakeProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()
	h := newTestHandshake(t, srv.URL)

	_, _, err := h.AcquireRequestToken(context.Background())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("want ErrProtocol, got %v", err)
	}
}
