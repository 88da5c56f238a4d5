package oauth2

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/authgate/internal/metrics"
	"golang.org/x/sync/singleflight"
)

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// KeySet cachea el JWKS público de un provider, process-wide.
//
// Read-heavy, refresh poco frecuente: TTL acotado (default 24h) con
// revalidación por ETag y singleflight para colapsar misses concurrentes.
// Un JWKS viejo falla seguro: la verificación de firma rechaza, no acepta.
type KeySet struct {
	Provider string
	URL      string
	TTL      time.Duration
	HTTP     *http.Client

	mu        sync.RWMutex
	cached    *jwks
	fetchedAt time.Time
	etag      string
	sf        singleflight.Group
}

func NewKeySet(provider, url string, ttl time.Duration, hc *http.Client) *KeySet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{Provider: provider, URL: url, TTL: ttl, HTTP: hc}
}

// Invalidate fuerza un fetch en el próximo acceso (recovery operacional).
func (ks *KeySet) Invalidate() {
	ks.mu.Lock()
	ks.cached = nil
	ks.etag = ""
	ks.mu.Unlock()
}

// KeyByKID resuelve la clave pública (RSA o EC) para un kid.
func (ks *KeySet) KeyByKID(ctx context.Context, kid string) (any, error) {
	set, err := ks.get(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if k.Kid != kid {
			continue
		}
		switch strings.ToUpper(k.Kty) {
		case "RSA":
			return parseRSAKey(k)
		case "EC":
			return parseECKey(k)
		}
	}
	// kid desconocido: puede ser rotación del provider — un fetch fresco
	// antes de rendirse.
	ks.Invalidate()
	set, err = ks.get(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range set.Keys {
		if k.Kid == kid {
			switch strings.ToUpper(k.Kty) {
			case "RSA":
				return parseRSAKey(k)
			case "EC":
				return parseECKey(k)
			}
		}
	}
	return nil, ErrKeyNotFound
}

func (ks *KeySet) get(ctx context.Context) (*jwks, error) {
	ks.mu.RLock()
	cached := ks.cached
	fresh := time.Since(ks.fetchedAt) < ks.TTL
	ks.mu.RUnlock()
	if cached != nil && fresh {
		return cached, nil
	}

	// Colapsar fetches concurrentes: trabajo duplicado aceptable, pero
	// innecesario contra un endpoint rate-limited.
	v, err, _ := ks.sf.Do("fetch", func() (any, error) {
		return ks.fetch(ctx)
	})
	if err != nil {
		// Con cache viejo a mano, mejor viejo que outage total.
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	return v.(*jwks), nil
}

func (ks *KeySet) fetch(ctx context.Context) (*jwks, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.URL, nil)
	if err != nil {
		return nil, err
	}
	ks.mu.RLock()
	if ks.etag != "" {
		req.Header.Set("If-None-Match", ks.etag)
	}
	ks.mu.RUnlock()

	resp, err := ks.HTTP.Do(req)
	if err != nil {
		metrics.JWKSFetches.WithLabelValues(ks.Provider, "transport_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		ks.mu.Lock()
		ks.fetchedAt = time.Now()
		out := ks.cached
		ks.mu.Unlock()
		metrics.JWKSFetches.WithLabelValues(ks.Provider, "not_modified").Inc()
		if out != nil {
			return out, nil
		}
		return nil, ErrKeyNotFound
	}
	if resp.StatusCode/100 != 2 {
		metrics.JWKSFetches.WithLabelValues(ks.Provider, "http_error").Inc()
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		metrics.JWKSFetches.WithLabelValues(ks.Provider, "parse_error").Inc()
		return nil, err
	}

	ks.mu.Lock()
	ks.cached = &set
	ks.fetchedAt = time.Now()
	ks.etag = resp.Header.Get("ETag")
	ks.mu.Unlock()
	metrics.JWKSFetches.WithLabelValues(ks.Provider, "ok").Inc()
	return &set, nil
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = (e << 8) | int(b)
	}
	if e == 0 {
		e = 65537
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func parseECKey(k jwk) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", k.Crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}, nil
}
