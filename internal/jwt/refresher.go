package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/authgate/internal/metrics"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/authgate/internal/security/token"
	"github.com/dropDatabas3/authgate/internal/store/core"
)

// Políticas de refresh: rotar en cada uso (default) o solo extender expiry.
const (
	PolicyRotate = "rotate"
	PolicyExtend = "extend"
)

// DefaultRefreshTTL es la vida por defecto de un refresh token (30 días).
const DefaultRefreshTTL = 30 * 24 * time.Hour

const refreshTokenBytes = 32

// Refresher maneja el lado opaco del ciclo de vida: emisión, canje con
// rotación race-safe, y revocación. Los bearer tokens los firma el Issuer.
type Refresher struct {
	Issuer     *Issuer
	Repo       core.Repository
	RefreshTTL time.Duration
	Policy     string
	Now        func() time.Time
}

func NewRefresher(issuer *Issuer, repo core.Repository, refreshTTL time.Duration, policy string) *Refresher {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if policy == "" {
		policy = PolicyRotate
	}
	return &Refresher{
		Issuer:     issuer,
		Repo:       repo,
		RefreshTTL: refreshTTL,
		Policy:     policy,
		Now:        time.Now,
	}
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// TokenPair es lo que recibe el cliente tras login o refresh. UserID viaja
// para que el caller no tenga que re-resolver el dueño del canje.
type TokenPair struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IssueRefreshToken genera un refresh token opaco nuevo para el usuario y lo
// persiste hasheado, pisando cualquier token anterior (relación 1:1). Retorna
// el valor crudo: es la única vez que existe fuera del cliente.
func (r *Refresher) IssueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	now := r.now().UTC()
	rt := &core.RefreshToken{
		UserID:    userID,
		TokenHash: tokens.SHA256Hex(raw),
		ExpiresAt: now.Add(r.RefreshTTL),
		IssuedAt:  now,
	}
	if err := r.Repo.PutRefreshToken(ctx, rt); err != nil {
		return "", err
	}
	return raw, nil
}

// Refresh canjea un refresh token crudo por un bearer token nuevo. Los claims
// se reconstruyen del estado ACTUAL del usuario: cambios de roles o campos
// posteriores a la emisión original se reflejan acá.
//
// Con política rotate el token presentado se invalida atómicamente vía CAS.
// Si dos requests llegan con el mismo token, uno gana; el perdedor re-lee y
// reintenta exactamente una vez, y si vuelve a perder falla cerrado con
// ErrRotationConflict. Nunca quedan dos refresh tokens válidos para el mismo
// usuario.
func (r *Refresher) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	log := logger.From(ctx)
	now := r.now().UTC()

	hash := tokens.SHA256Hex(rawRefreshToken)
	rt, err := r.Repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrRefreshTokenUnknown
		}
		return nil, err
	}
	if !rt.Valid(now) {
		return nil, ErrRefreshTokenExpired
	}

	u, err := r.Repo.GetUserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrRefreshTokenUnknown
		}
		return nil, err
	}
	if err := CheckAccountState(u); err != nil {
		return nil, err
	}

	access, exp, err := r.Issuer.Mint(u, nil)
	if err != nil {
		return nil, err
	}

	if r.Policy == PolicyExtend {
		// Mismo token, expiry corrido. El CAS igual protege contra una
		// rotación concurrente disparada por otro camino (ej: re-login).
		ok, err := r.Repo.UpdateRefreshTokenCAS(ctx, u.ID, hash, hash, now.Add(r.RefreshTTL))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRotationConflict
		}
		return &TokenPair{UserID: u.ID, AccessToken: access, RefreshToken: rawRefreshToken, ExpiresAt: exp}, nil
	}

	newRaw, err := r.rotate(ctx, u.ID, hash)
	if err != nil {
		return nil, err
	}

	log.Debug("refresh token rotated",
		logger.Component("jwt.refresher"),
		logger.UserID(u.ID),
		logger.TokenPrefix(newRaw),
	)
	return &TokenPair{UserID: u.ID, AccessToken: access, RefreshToken: newRaw, ExpiresAt: exp}, nil
}

// rotate intenta el swap CAS; ante un conflicto re-lee el hash vigente y
// reintenta una única vez antes de fallar cerrado.
func (r *Refresher) rotate(ctx context.Context, userID, presentedHash string) (string, error) {
	now := r.now().UTC()
	expiry := now.Add(r.RefreshTTL)

	newRaw, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}

	ok, err := r.Repo.UpdateRefreshTokenCAS(ctx, userID, presentedHash, tokens.SHA256Hex(newRaw), expiry)
	if err != nil {
		return "", err
	}
	if ok {
		metrics.RefreshRotations.Inc()
		return newRaw, nil
	}
	metrics.RefreshCASConflicts.Inc()

	current, err := r.Repo.GetRefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", ErrRotationConflict
		}
		return "", err
	}
	if !current.Valid(now) {
		return "", ErrRefreshTokenExpired
	}

	retryRaw, err := tokens.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	ok, err = r.Repo.UpdateRefreshTokenCAS(ctx, userID, current.TokenHash, tokens.SHA256Hex(retryRaw), expiry)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.RefreshCASConflicts.Inc()
		return "", ErrRotationConflict
	}
	metrics.RefreshRotations.Inc()
	return retryRaw, nil
}

// Revoke invalida el refresh token del usuario. Best-effort: si otro request
// lo rotó en el medio, el token presentado ya quedó inválido igual.
func (r *Refresher) Revoke(ctx context.Context, userID string) error {
	rt, err := r.Repo.GetRefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := r.Repo.UpdateRefreshTokenCAS(ctx, userID, rt.TokenHash, "", time.Time{}); err != nil {
		return err
	}
	return nil
}

// CheckAccountState rechaza cuentas locked o disabled. Se chequea después de
// validar credenciales o tokens, nunca antes (no filtrar existencia).
func CheckAccountState(u *core.User) error {
	switch u.Status {
	case core.UserLocked:
		return ErrAccountLocked
	case core.UserDisabled:
		return ErrAccountDisabled
	case "", core.UserActive:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrAccountDisabled, u.Status)
	}
}
