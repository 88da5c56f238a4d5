package oauth2

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ClientSecret abstrae el client_secret del intercambio. Para la mayoría de
// los providers es un string fijo; para Apple es un JWT ES256 de corta vida
// generado por request. El exchanger no distingue entre ambos.
type ClientSecret interface {
	Secret() (string, error)
}

// StaticSecret es un client_secret fijo.
type StaticSecret string

func (s StaticSecret) Secret() (string, error) { return string(s), nil }

// JWTSecretFactory genera client secrets firmados con ES256, al estilo
// Sign in with Apple: iss = team id, sub = client id, aud = provider,
// kid en el header. El JWT se cachea y se re-firma cerca de su expiry.
type JWTSecretFactory struct {
	TeamID     string
	ClientID   string
	Audience   string
	KeyID      string
	PrivateKey *ecdsa.PrivateKey
	TTL        time.Duration // Apple permite hasta 6 meses
	Now        func() time.Time

	mu     sync.Mutex
	cached string
	expiry time.Time
}

// LoadECPrivateKey parsea una clave .p8 (PKCS#8 PEM) a *ecdsa.PrivateKey.
func LoadECPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not ECDSA", path)
	}
	return ec, nil
}

func (f *JWTSecretFactory) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *JWTSecretFactory) Secret() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now().UTC()
	// Margen de 1 minuto para no entregar un secret a punto de vencer.
	if f.cached != "" && now.Add(time.Minute).Before(f.expiry) {
		return f.cached, nil
	}

	ttl := f.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	exp := now.Add(ttl)

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{
		"iss": f.TeamID,
		"sub": f.ClientID,
		"aud": f.Audience,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	})
	tk.Header["kid"] = f.KeyID

	signed, err := tk.SignedString(f.PrivateKey)
	if err != nil {
		return "", err
	}
	f.cached = signed
	f.expiry = exp
	return signed, nil
}
