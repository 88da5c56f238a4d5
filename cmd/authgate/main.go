package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authgate/internal/cache"
	memcache "github.com/dropDatabas3/authgate/internal/cache/memory"
	rediscache "github.com/dropDatabas3/authgate/internal/cache/redis"
	"github.com/dropDatabas3/authgate/internal/config"
	httpserver "github.com/dropDatabas3/authgate/internal/http"
	authctrl "github.com/dropDatabas3/authgate/internal/http/controllers/auth"
	svc "github.com/dropDatabas3/authgate/internal/http/services/auth"
	"github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
	memstore "github.com/dropDatabas3/authgate/internal/store/memory"
	pgstore "github.com/dropDatabas3/authgate/internal/store/pg"
	migrations "github.com/dropDatabas3/authgate/migrations/postgres"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:   "authgate",
		Short: "Servidor de autenticación: providers sociales, JWT y sesiones",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path al YAML de configuración (opcional)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	root.AddCommand(serve)

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de esquema embebidas contra Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cfgPath)
		},
	}
	root.AddCommand(migrate)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	logger.Init(logger.Config{Env: cfg.App.Env})
	log := logger.L()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// ── Storage ──
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "postgres":
		pgs, err := pgstore.New(ctx, cfg.Storage.DSN, pgstore.Options{
			MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
			ConnMaxLifetime: config.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime, 0),
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pgs.Close()
		repo = pgs
		log.Info("storage ready", logger.String("driver", "postgres"))
	default:
		repo = memstore.New()
		log.Info("storage ready", logger.String("driver", "memory"))
	}

	// ── Cache ──
	var c cache.Cache
	switch cfg.Cache.Kind {
	case "redis":
		rc := rediscache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		c = rc
		log.Info("cache ready", logger.String("kind", "redis"))
	default:
		c = memcache.New(config.ParseDuration(cfg.Cache.Memory.DefaultTTL, 2*time.Minute))
		log.Info("cache ready", logger.String("kind", "memory"))
	}

	// ── JWT ──
	issuer, err := buildIssuer(cfg)
	if err != nil {
		return fmt.Errorf("jwt issuer: %w", err)
	}
	refresher := jwt.NewRefresher(issuer, repo,
		config.ParseDuration(cfg.JWT.RefreshTTL, jwt.DefaultRefreshTTL),
		cfg.JWT.RefreshPolicy,
	)

	// ── Providers ──
	outbound := &http.Client{Timeout: config.ParseDuration(cfg.Server.OutboundTimeout, 10*time.Second)}
	registry, err := providers.NewRegistry(cfg, c, outbound)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	log.Info("providers enabled", logger.Any("providers", registry.Names()))

	// ── Sessions + service ──
	sessions := session.NewStore(c, config.ParseDuration(cfg.Auth.Session.TTL, 24*time.Hour))
	reconciler := session.NewReconciler(repo, sessions)
	service := &svc.Service{
		Repo:       repo,
		Registry:   registry,
		Reconciler: reconciler,
		Issuer:     issuer,
		Refresher:  refresher,
		Sessions:   sessions,
	}

	controllers := authctrl.NewControllers(service, authctrl.CookieConfig{
		Name:        cfg.Auth.Session.CookieName,
		RefreshName: cfg.Auth.Session.RefreshCookieName,
		SessionName: cfg.Auth.Session.IDCookieName,
		Domain:      cfg.Auth.Session.Domain,
		SameSite:    cfg.Auth.Session.SameSite,
		Secure:      cfg.Auth.Session.Secure,
		AccessTTL:   config.ParseDuration(cfg.JWT.AccessTTL, jwt.DefaultAccessTTL),
		RefreshTTL:  config.ParseDuration(cfg.JWT.RefreshTTL, jwt.DefaultRefreshTTL),
		SessionTTL:  config.ParseDuration(cfg.Auth.Session.TTL, 24*time.Hour),
	})

	handler := httpserver.NewRouter(httpserver.RouterDeps{
		Controllers:       controllers,
		Bearer:            &providers.JwtBearer{Issuer: issuer},
		Sessions:          sessions,
		Repo:              repo,
		CookieName:        cfg.Auth.Session.CookieName,
		SessionCookieName: cfg.Auth.Session.IDCookieName,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// runMigrate aplica las migraciones embebidas en orden ascendente. Cada
// archivo es idempotente (IF NOT EXISTS), así que correrlo de nuevo es seguro.
func runMigrate(cfgPath string) error {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
	} else {
		cfg = config.Default()
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("migrate requiere storage.dsn (o AUTHGATE_DSN)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	names, err := listMigrations(migrations.FS)
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("leer %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("aplicar %s: %w", name, err)
		}
		fmt.Printf("applied %s\n", name)
	}
	fmt.Printf("%d migration(s) applied\n", len(names))
	return nil
}

// listMigrations devuelve los *.sql embebidos en orden ascendente de nombre.
func listMigrations(fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// buildIssuer arma el Issuer según el algoritmo configurado. HS256 es el
// default; los asimétricos cargan la clave privada PEM de disco.
func buildIssuer(cfg *config.Config) (*jwt.Issuer, error) {
	accessTTL := config.ParseDuration(cfg.JWT.AccessTTL, jwt.DefaultAccessTTL)

	switch cfg.JWT.Alg {
	case "", "HS256":
		if cfg.JWT.HMACSecret == "" {
			return nil, fmt.Errorf("HS256 requiere jwt.hmac_secret (o AUTHGATE_JWT_SECRET)")
		}
		iss := jwt.NewHS256(cfg.JWT.Issuer, cfg.JWT.Audience, []byte(cfg.JWT.HMACSecret))
		iss.AccessTTL = accessTTL
		return iss, nil

	case "RS256", "ES256", "EdDSA":
		pemBytes, err := os.ReadFile(cfg.JWT.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("leer key %s: %w", cfg.JWT.KeyPath, err)
		}
		var (
			method jwtv5.SigningMethod
			priv   any
			pub    any
		)
		switch cfg.JWT.Alg {
		case "RS256":
			key, err := jwtv5.ParseRSAPrivateKeyFromPEM(pemBytes)
			if err != nil {
				return nil, err
			}
			method, priv, pub = jwtv5.SigningMethodRS256, key, &key.PublicKey
		case "ES256":
			key, err := jwtv5.ParseECPrivateKeyFromPEM(pemBytes)
			if err != nil {
				return nil, err
			}
			method, priv, pub = jwtv5.SigningMethodES256, key, &key.PublicKey
		default:
			key, err := jwtv5.ParseEdPrivateKeyFromPEM(pemBytes)
			if err != nil {
				return nil, err
			}
			ed, ok := key.(ed25519.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("key en %s no es Ed25519", cfg.JWT.KeyPath)
			}
			method, priv, pub = jwtv5.SigningMethodEdDSA, ed, ed.Public()
		}
		iss := jwt.NewAsymmetric(cfg.JWT.Issuer, cfg.JWT.Audience, method, priv, pub)
		iss.AccessTTL = accessTTL
		return iss, nil

	default:
		return nil, fmt.Errorf("algoritmo JWT no soportado: %s", cfg.JWT.Alg)
	}
}
