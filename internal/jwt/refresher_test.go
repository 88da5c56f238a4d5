package jwt

import (
	"context"
	"errors"
	"testing"
	"time"

	tokens "github.com/dropDatabas3/authgate/internal/security/token"
	"github.com/dropDatabas3/authgate/internal/store/core"
	memstore "github.com/dropDatabas3/authgate/internal/store/memory"
)

func newTestRefresher(t *testing.T, now time.Time) (*Refresher, *memstore.Store, *core.User) {
	t.Helper()
	repo := memstore.New()
	u := testUser()
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	iss := testIssuer(now)
	r := NewRefresher(iss, repo, 30*24*time.Hour, PolicyRotate)
	r.Now = iss.Now
	return r, repo, u
}

func TestRefreshRotates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _, u := newTestRefresher(t, now)
	ctx := context.Background()

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	pair, err := r.Refresh(ctx, raw)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("par incompleto: %+v", pair)
	}
	if pair.RefreshToken == raw {
		t.Error("rotate debe emitir un refresh token nuevo")
	}

	// El token presentado quedó invalidado por la rotación.
	if _, err := r.Refresh(ctx, raw); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("want ErrRefreshTokenUnknown para el token viejo, got %v", err)
	}

	// El nuevo funciona.
	if _, err := r.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh con el token rotado: %v", err)
	}
}

func TestRefreshReflectsCurrentUserState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, repo, u := newTestRefresher(t, now)
	ctx := context.Background()

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Cambian los roles después de la emisión original.
	u.Roles = []string{"superadmin"}
	if err := repo.UpdateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	pair, err := r.Refresh(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.Issuer.Validate(pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Roles) != 1 || s.Roles[0] != "superadmin" {
		t.Errorf("el access token nuevo debe reflejar el estado actual: %v", s.Roles)
	}
}

func TestRefreshExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _, u := newTestRefresher(t, now)
	ctx := context.Background()

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}

	r.Now = func() time.Time { return now.Add(31 * 24 * time.Hour) }
	if _, err := r.Refresh(ctx, raw); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("want ErrRefreshTokenExpired, got %v", err)
	}
}

func TestRefreshUnknown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, _, _ := newTestRefresher(t, now)

	if _, err := r.Refresh(context.Background(), "never-issued"); !errors.Is(err, ErrRefreshTokenUnknown) {
		t.Fatalf("want ErrRefreshTokenUnknown, got %v", err)
	}
}

func TestRefreshLockedAccount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, repo, u := newTestRefresher(t, now)
	ctx := context.Background()

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	u.Status = core.UserLocked
	if err := repo.UpdateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Refresh(ctx, raw); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("want ErrAccountLocked, got %v", err)
	}
}

// flakyCASRepo falla el primer intento de CAS simulando un request
// concurrente que rotó primero.
type flakyCASRepo struct {
	*memstore.Store
	failures int
}

func (f *flakyCASRepo) UpdateRefreshTokenCAS(ctx context.Context, userID, oldHash, newHash string, newExpiry time.Time) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, nil
	}
	return f.Store.UpdateRefreshTokenCAS(ctx, userID, oldHash, newHash, newExpiry)
}

func TestRefreshRetriesOnceOnCASConflict(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inner := memstore.New()
	repo := &flakyCASRepo{Store: inner, failures: 1}
	u := testUser()
	ctx := context.Background()
	if err := inner.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	iss := testIssuer(now)
	r := NewRefresher(iss, repo, 30*24*time.Hour, PolicyRotate)
	r.Now = iss.Now

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Un conflicto: el retry único gana.
	pair, err := r.Refresh(ctx, raw)
	if err != nil {
		t.Fatalf("Refresh con un conflicto: %v", err)
	}
	if pair.RefreshToken == raw {
		t.Error("debería haber rotado")
	}

	// Dos conflictos seguidos: falla cerrado.
	repo.failures = 2
	if _, err := r.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("want ErrRotationConflict, got %v", err)
	}
}

func TestExtendPolicyKeepsToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memstore.New()
	u := testUser()
	ctx := context.Background()
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	iss := testIssuer(now)
	r := NewRefresher(iss, repo, 30*24*time.Hour, PolicyExtend)
	r.Now = iss.Now

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := r.Refresh(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if pair.RefreshToken != raw {
		t.Error("extend no debe rotar el token")
	}

	rt, err := repo.GetRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(30 * 24 * time.Hour); !rt.ExpiresAt.Equal(want) {
		t.Errorf("expiry extendido: %v, want %v", rt.ExpiresAt, want)
	}
}

func TestRevoke(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r, repo, u := newTestRefresher(t, now)
	ctx := context.Background()

	raw, err := r.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Revoke(ctx, u.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := r.Refresh(ctx, raw); !errors.Is(err, ErrRefreshTokenUnknown) && !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("token revocado aceptado: %v", err)
	}

	// Idempotente.
	if err := r.Revoke(ctx, u.ID); err != nil {
		t.Fatalf("Revoke repetido: %v", err)
	}

	// Hash inexistente ya no matchea nada.
	if _, err := repo.GetRefreshTokenByHash(ctx, tokens.SHA256Hex(raw)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("el hash viejo sigue resolviendo: %v", err)
	}
}
