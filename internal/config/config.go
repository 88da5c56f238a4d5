package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// Ceiling para llamadas salientes a providers (token endpoint, JWKS, profile)
		OutboundTimeout string `yaml:"outbound_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		Alg        string `yaml:"alg"`         // HS256 (default) | RS256 | ES256 | EdDSA
		HMACSecret string `yaml:"hmac_secret"` // requerido para HS256
		KeyPath    string `yaml:"key_path"`    // PEM para algoritmos asimétricos
		AccessTTL  string `yaml:"access_ttl"`  // default 336h (14d)
		RefreshTTL string `yaml:"refresh_ttl"` // default 720h (30d)
		// rotate | extend — política única de uso del refresh token (nunca ambas)
		RefreshPolicy string `yaml:"refresh_policy"`
	} `yaml:"jwt"`

	Auth struct {
		Session struct {
			CookieName        string `yaml:"cookie_name"`         // default ss-tok
			RefreshCookieName string `yaml:"refresh_cookie_name"` // default ss-reftok
			IDCookieName      string `yaml:"id_cookie_name"`      // default ss-id
			Domain            string `yaml:"domain"`
			SameSite          string `yaml:"samesite"`
			Secure            bool   `yaml:"secure"`
			TTL               string `yaml:"ttl"`
		} `yaml:"session"`
	} `yaml:"auth"`

	// ───────── Auth Providers ─────────
	Providers struct {
		// TTL del registro de handshake OAuth1 pendiente (request token transitorio)
		PendingHandshakeTTL string `yaml:"pending_handshake_ttl"`
		// Ventana de cache para re-validación de refresh tokens contra el provider
		RefreshValidationTTL string `yaml:"refresh_validation_ttl"`
		// TTL del cache de JWKS de providers
		JWKSTTL string `yaml:"jwks_ttl"`

		Twitter struct {
			Enabled         bool   `yaml:"enabled"`
			ConsumerKey     string `yaml:"consumer_key"`
			ConsumerSecret  string `yaml:"consumer_secret"`
			RequestTokenURL string `yaml:"request_token_url"`
			AuthorizeURL    string `yaml:"authorize_url"`
			AccessTokenURL  string `yaml:"access_token_url"`
			CallbackURL     string `yaml:"callback_url"`
		} `yaml:"twitter"`

		Google   OAuth2Provider `yaml:"google"`
		Facebook OAuth2Provider `yaml:"facebook"`
		GitHub   OAuth2Provider `yaml:"github"`

		Apple struct {
			Enabled     bool   `yaml:"enabled"`
			TeamID      string `yaml:"team_id"`
			ClientID    string `yaml:"client_id"` // Service ID (web)
			BundleID    string `yaml:"bundle_id"` // App ID (native)
			KeyID       string `yaml:"key_id"`
			KeyPath     string `yaml:"key_path"` // .p8 private key
			CallbackURL string `yaml:"callback_url"`
		} `yaml:"apple"`
	} `yaml:"providers"`
}

// OAuth2Provider es la configuración común de un provider authorization-code.
// IssuerURL/JWKSURL solo aplican a providers OIDC (validación de id_token).
type OAuth2Provider struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthorizeURL string   `yaml:"authorize_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	IssuerURL    string   `yaml:"issuer_url"`
	JWKSURL      string   `yaml:"jwks_url"`
	CallbackURL  string   `yaml:"callback_url"`
	Scopes       []string `yaml:"scopes"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c, nil
}

// Default retorna una configuración usable sin archivo YAML (solo env + defaults).
func Default() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.OutboundTimeout == "" {
		c.Server.OutboundTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.JWT.Alg == "" {
		c.JWT.Alg = "HS256"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "336h" // 14d
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.JWT.RefreshPolicy == "" {
		c.JWT.RefreshPolicy = "rotate"
	}
	if c.Auth.Session.CookieName == "" {
		c.Auth.Session.CookieName = "ss-tok"
	}
	if c.Auth.Session.RefreshCookieName == "" {
		c.Auth.Session.RefreshCookieName = "ss-reftok"
	}
	if c.Auth.Session.IDCookieName == "" {
		c.Auth.Session.IDCookieName = "ss-id"
	}
	if c.Auth.Session.SameSite == "" {
		c.Auth.Session.SameSite = "lax"
	}
	if c.Auth.Session.TTL == "" {
		c.Auth.Session.TTL = "24h"
	}
	if c.Providers.PendingHandshakeTTL == "" {
		c.Providers.PendingHandshakeTTL = "10m"
	}
	if c.Providers.RefreshValidationTTL == "" {
		c.Providers.RefreshValidationTTL = "24h"
	}
	if c.Providers.JWKSTTL == "" {
		c.Providers.JWKSTTL = "24h"
	}
}

// applyEnvOverrides pisa valores sensibles desde el entorno.
// Los secretos nunca deberían vivir en el YAML commiteado.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTHGATE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUTHGATE_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("AUTHGATE_DSN"); v != "" {
		c.Storage.DSN = v
		c.Storage.Driver = "postgres"
	}
	if v := os.Getenv("AUTHGATE_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Kind = "redis"
	}
	if v := os.Getenv("AUTHGATE_JWT_SECRET"); v != "" {
		c.JWT.HMACSecret = v
	}
	if v := os.Getenv("AUTHGATE_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Auth.Session.Secure = b
		}
	}
	if v := os.Getenv("AUTHGATE_TWITTER_CONSUMER_SECRET"); v != "" {
		c.Providers.Twitter.ConsumerSecret = v
	}
	if v := os.Getenv("AUTHGATE_GOOGLE_CLIENT_SECRET"); v != "" {
		c.Providers.Google.ClientSecret = v
	}
	if v := os.Getenv("AUTHGATE_FACEBOOK_CLIENT_SECRET"); v != "" {
		c.Providers.Facebook.ClientSecret = v
	}
	if v := os.Getenv("AUTHGATE_GITHUB_CLIENT_SECRET"); v != "" {
		c.Providers.GitHub.ClientSecret = v
	}
}

// ParseDuration parsea una duración con fallback.
// Acepta el formato de time.ParseDuration ("15m", "336h").
func ParseDuration(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
