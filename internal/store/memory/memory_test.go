package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/authgate/internal/store/core"
)

func TestUserCRUDAndUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &core.User{ID: "u1", UserName: "jo", Email: "jo@example.com", Status: core.UserActive}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	// Email único, case-insensitive.
	dup := &core.User{ID: "u2", UserName: "other", Email: "JO@example.com"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict por email, got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "Jo@Example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("GetUserByEmail: %v %+v", err, got)
	}
	if _, err := s.GetUserByID(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpsertLinkSingleOwner(t *testing.T) {
	s := New()
	ctx := context.Background()

	l := &core.ProviderLink{UserID: "u1", Provider: "google", ExternalUserID: "g1", AccessToken: "a1"}
	if err := s.UpsertLink(ctx, l); err != nil {
		t.Fatal(err)
	}

	// Mismo owner: actualiza con populate-if-missing.
	update := &core.ProviderLink{UserID: "u1", Provider: "google", ExternalUserID: "g1", AccessToken: "a2"}
	if err := s.UpsertLink(ctx, update); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetLink(ctx, "google", "g1")
	if err != nil || got.AccessToken != "a2" {
		t.Fatalf("link actualizado: %v %+v", err, got)
	}

	// Un access token vacío no borra el existente.
	blank := &core.ProviderLink{UserID: "u1", Provider: "google", ExternalUserID: "g1", ExternalUserName: "jo"}
	if err := s.UpsertLink(ctx, blank); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetLink(ctx, "google", "g1")
	if got.AccessToken != "a2" || got.ExternalUserName != "jo" {
		t.Errorf("populate-if-missing: %+v", got)
	}

	// Otro owner para la misma identidad externa: conflicto.
	stolen := &core.ProviderLink{UserID: "u2", Provider: "google", ExternalUserID: "g1"}
	if err := s.UpsertLink(ctx, stolen); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestRefreshTokenCAS(t *testing.T) {
	s := New()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := s.PutRefreshToken(ctx, &core.RefreshToken{UserID: "u1", TokenHash: "h1", ExpiresAt: exp}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.UpdateRefreshTokenCAS(ctx, "u1", "h1", "h2", exp)
	if err != nil || !ok {
		t.Fatalf("CAS con hash vigente: ok=%v err=%v", ok, err)
	}

	// El hash viejo ya no matchea.
	ok, err = s.UpdateRefreshTokenCAS(ctx, "u1", "h1", "h3", exp)
	if err != nil || ok {
		t.Fatalf("CAS con hash viejo debería perder: ok=%v err=%v", ok, err)
	}

	// Revocación: hash vacío.
	ok, err = s.UpdateRefreshTokenCAS(ctx, "u1", "h2", "", time.Time{})
	if err != nil || !ok {
		t.Fatalf("revocación: ok=%v err=%v", ok, err)
	}
	if _, err := s.GetRefreshTokenByHash(ctx, "h2"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("hash revocado sigue resolviendo: %v", err)
	}
}

// Bajo carrera, exactamente un CAS con el mismo oldHash gana.
func TestRefreshTokenCASRace(t *testing.T) {
	s := New()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := s.PutRefreshToken(ctx, &core.RefreshToken{UserID: "u1", TokenHash: "h0", ExpiresAt: exp}); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.UpdateRefreshTokenCAS(ctx, "u1", "h0", "new", exp)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("ganadores del CAS: %d, want 1", wins)
	}
}
