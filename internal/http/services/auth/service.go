// Package auth implementa la lógica de los endpoints de autenticación.
// Los controllers parsean y responden; las decisiones viven acá.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/dropDatabas3/authgate/internal/http/middlewares"
	"github.com/dropDatabas3/authgate/internal/jwt"
	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/providers"
	"github.com/dropDatabas3/authgate/internal/security/password"
	"github.com/dropDatabas3/authgate/internal/session"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

var (
	ErrMissingFields      = errors.New("missing_fields")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrPasswordNotSet     = errors.New("password_not_set")
)

// LoginResult agrupa lo que el controller necesita para responder y setear
// cookies tras una autenticación exitosa.
type LoginResult struct {
	Session *session.Session
	Tokens  *jwt.TokenPair
}

// Service orquesta login, flujos de provider, refresh y logout.
type Service struct {
	Repo       core.Repository
	Registry   *providers.Registry
	Reconciler *session.Reconciler
	Issuer     *jwt.Issuer
	Refresher  *jwt.Refresher
	Sessions   *session.Store
}

// LoginPassword autentica con credenciales locales. El orden de chequeos
// evita filtrar existencia: password primero, estado de cuenta después.
func (s *Service) LoginPassword(ctx context.Context, userName, email, plain string) (*LoginResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("LoginPassword"))

	if plain == "" || (userName == "" && email == "") {
		return nil, ErrMissingFields
	}

	var (
		u   *core.User
		err error
	)
	if email != "" {
		u, err = s.Repo.GetUserByEmail(ctx, email)
	} else {
		u, err = s.Repo.GetUserByUserName(ctx, userName)
	}
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			metrics.AuthAttempts.WithLabelValues("credentials", "failure").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if u.PasswordHash == nil || *u.PasswordHash == "" {
		// Cuenta creada vía provider social, sin password local.
		return nil, ErrPasswordNotSet
	}
	if !password.Verify(plain, *u.PasswordHash) {
		metrics.AuthAttempts.WithLabelValues("credentials", "failure").Inc()
		return nil, ErrInvalidCredentials
	}
	if err := jwt.CheckAccountState(u); err != nil {
		metrics.AuthAttempts.WithLabelValues("credentials", "denied").Inc()
		return nil, err
	}

	res, err := s.issueFor(ctx, u, session.New())
	if err != nil {
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("credentials", "success").Inc()
	log.Info("password login ok", logger.UserID(u.ID))
	return res, nil
}

// StartProvider inicia el flujo redirect del provider.
func (s *Service) StartProvider(ctx context.Context, name string) (*providers.StartState, error) {
	strat, err := s.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	return strat.Start(ctx)
}

// CompleteProvider consume el callback: verifica la identidad externa con la
// estrategia, la reconcilia contra el user canónico y emite tokens.
func (s *Service) CompleteProvider(ctx context.Context, name string, ac providers.AuthContext) (*LoginResult, error) {
	strat, err := s.Registry.Get(name)
	if err != nil {
		return nil, err
	}

	res, err := strat.Complete(ctx, ac)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(name, "failure").Inc()
		return nil, err
	}

	sess := session.New()
	u, err := s.Reconciler.Reconcile(ctx, sess, res.Link, res.Claims)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(name, "denied").Inc()
		return nil, err
	}

	out, err := s.issueFor(ctx, u, sess)
	if err != nil {
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues(name, "success").Inc()
	return out, nil
}

// ExchangeToken autentica con un id_token obtenido por la app nativa.
// Las variantes token-exchange se registran como "<provider>-token".
func (s *Service) ExchangeToken(ctx context.Context, provider, idToken string) (*LoginResult, error) {
	name := provider
	if !strings.HasSuffix(name, "-token") {
		name += "-token"
	}
	return s.CompleteProvider(ctx, name, providers.AuthContext{Provider: provider, IDToken: idToken})
}

// Refresh canjea el refresh token por un access token nuevo. Tras un canje
// exitoso se re-validan (acotado por la ventana de cache) los refresh tokens
// de provider guardados en los links del usuario.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*jwt.TokenPair, error) {
	if rawRefreshToken == "" {
		return nil, jwt.ErrRefreshTokenUnknown
	}
	pair, err := s.Refresher.Refresh(ctx, rawRefreshToken)
	if err != nil {
		return nil, err
	}
	s.revalidateProviderLinks(ctx, pair.UserID)
	return pair, nil
}

// revalidateProviderLinks es best-effort: un provider caído no bloquea el
// canje de nuestros propios tokens.
func (s *Service) revalidateProviderLinks(ctx context.Context, userID string) {
	links, err := s.Repo.ListLinks(ctx, userID)
	if err != nil {
		logger.From(ctx).Warn("list links for revalidation failed", logger.Err(err), logger.UserID(userID))
		return
	}
	for _, l := range links {
		if err := s.Registry.ValidateProviderRefresh(ctx, &l); err != nil {
			logger.From(ctx).Warn("provider refresh token revalidation failed",
				logger.Provider(l.Provider), logger.UserID(userID), logger.Err(err))
		}
	}
}

// Logout invalida sesión server-side y refresh token. Idempotente.
func (s *Service) Logout(ctx context.Context) error {
	sess := middlewares.GetSession(ctx)
	if sess == nil {
		return nil
	}
	if !sess.FromToken {
		s.Sessions.Delete(ctx, sess.ID)
	}
	if sess.UserID != "" {
		return s.Refresher.Revoke(ctx, sess.UserID)
	}
	return nil
}

func (s *Service) issueFor(ctx context.Context, u *core.User, sess *session.Session) (*LoginResult, error) {
	if !sess.IsAuthenticated {
		// Login por credenciales: proyectar el user sobre la sesión.
		sess.UserID = u.ID
		sess.UserName = u.UserName
		sess.DisplayName = u.DisplayName
		sess.Email = u.Email
		sess.Roles = u.Roles
		sess.Permissions = u.Permissions
		sess.IsAuthenticated = true
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
	}

	access, exp, err := s.Issuer.Mint(u, nil)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Refresher.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Session: sess,
		Tokens:  &jwt.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp},
	}, nil
}
