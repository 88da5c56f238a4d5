package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func rsaJWK(kid string, pub *rsa.PublicKey) jwk {
	return jwk{
		Kty: "RSA",
		Alg: "RS256",
		Kid: kid,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func jwksServer(t *testing.T, keys ...jwk) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks{Keys: keys})
	}))
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwtv5.MapClaims) string {
	t.Helper()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = kid
	s, err := tk.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestVerifier(t *testing.T, jwksURL string) (*IDTokenVerifier, func() time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	return &IDTokenVerifier{
		Provider:        "apple",
		Issuer:          "https://appleid.apple.com",
		ServiceAudience: "com.example.web",
		BundleAudience:  "com.example.app",
		Keys:            NewKeySet("apple", jwksURL, time.Hour, nil),
		Now:             nowFn,
	}, nowFn
}

func baseClaims(nowFn func() time.Time, aud string) jwtv5.MapClaims {
	now := nowFn()
	return jwtv5.MapClaims{
		"iss":            "https://appleid.apple.com",
		"aud":            aud,
		"sub":            "001234.abcdef",
		"email":          "jo@example.com",
		"email_verified": "true",
		"iat":            now.Unix(),
		"exp":            now.Add(10 * time.Minute).Unix(),
	}
}

func TestVerifyIDToken(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	tok := signIDToken(t, key, "k1", baseClaims(nowFn, "com.example.web"))

	cs, raw, err := v.Verify(context.Background(), tok, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if raw.Sub != "001234.abcdef" || raw.Email != "jo@example.com" || !raw.EmailVerified {
		t.Errorf("raw claims: %+v", raw)
	}
	if raw.Audience != "com.example.web" {
		t.Errorf("audiencia elegida: %q", raw.Audience)
	}
	if cs.First("sub") != "001234.abcdef" {
		t.Errorf("claim set: %+v", cs)
	}
}

// La audiencia del bundle (app nativa) también es válida; el aud del token
// decide cuál aplica.
func TestVerifyIDTokenBundleAudience(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	tok := signIDToken(t, key, "k1", baseClaims(nowFn, "com.example.app"))

	_, raw, err := v.Verify(context.Background(), tok, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if raw.Audience != "com.example.app" {
		t.Errorf("audiencia elegida: %q", raw.Audience)
	}
}

func TestVerifyIDTokenAudienceMismatch(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	tok := signIDToken(t, key, "k1", baseClaims(nowFn, "com.other.app"))

	_, _, err := v.Verify(context.Background(), tok, "")
	if !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("want ErrAudienceMismatch, got %v", err)
	}
}

func TestVerifyIDTokenIssuerMismatch(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	claims := baseClaims(nowFn, "com.example.web")
	claims["iss"] = "https://evil.example.com"
	tok := signIDToken(t, key, "k1", claims)

	_, _, err := v.Verify(context.Background(), tok, "")
	if !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("want ErrIssuerMismatch, got %v", err)
	}
}

func TestVerifyIDTokenWrongKey(t *testing.T) {
	goodKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	evilKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &goodKey.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	tok := signIDToken(t, evilKey, "k1", baseClaims(nowFn, "com.example.web"))

	if _, _, err := v.Verify(context.Background(), tok, ""); err == nil {
		t.Fatal("firma ajena aceptada")
	}
}

func TestVerifyIDTokenNonceMismatch(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	claims := baseClaims(nowFn, "com.example.web")
	claims["nonce"] = "aaa"
	tok := signIDToken(t, key, "k1", claims)

	_, _, err := v.Verify(context.Background(), tok, "bbb")
	if !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("want ErrNonceMismatch, got %v", err)
	}
}

func TestVerifyIDTokenExpired(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, rsaJWK("k1", &key.PublicKey))
	defer srv.Close()

	v, nowFn := newTestVerifier(t, srv.URL)
	claims := baseClaims(nowFn, "com.example.web")
	claims["exp"] = nowFn().Add(-time.Minute).Unix()
	tok := signIDToken(t, key, "k1", claims)

	if _, _, err := v.Verify(context.Background(), tok, ""); err == nil {
		t.Fatal("token vencido aceptado")
	}
}

// Rotación de claves del provider: un kid desconocido fuerza un refetch antes
// de rendirse.
func TestKeySetKidRotation(t *testing.T) {
	key1, _ := rsa.GenerateKey(rand.Reader, 2048)
	key2, _ := rsa.GenerateKey(rand.Reader, 2048)

	var phase atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		set := jwks{Keys: []jwk{rsaJWK("k1", &key1.PublicKey)}}
		if phase.Load() > 0 {
			set = jwks{Keys: []jwk{rsaJWK("k2", &key2.PublicKey)}}
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	ks := NewKeySet("test", srv.URL, time.Hour, nil)
	ctx := context.Background()

	if _, err := ks.KeyByKID(ctx, "k1"); err != nil {
		t.Fatalf("k1: %v", err)
	}

	// El provider rota; el cache todavía tiene el set viejo.
	phase.Store(1)
	if _, err := ks.KeyByKID(ctx, "k2"); err != nil {
		t.Fatalf("k2 tras rotación: %v", err)
	}
	if _, err := ks.KeyByKID(ctx, "k-nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}
}
