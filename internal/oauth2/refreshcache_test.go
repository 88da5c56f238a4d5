package oauth2

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	memcache "github.com/dropDatabas3/authgate/internal/cache/memory"
)

func TestRefreshValidationCacheOncePerWindow(t *testing.T) {
	rc := NewRefreshValidationCache("apple", memcache.New(time.Minute), time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	validate := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	for i := 0; i < 5; i++ {
		if err := rc.Validate(ctx, "u1", validate); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("validaciones contra el provider: %d, want 1", calls.Load())
	}

	// Otro usuario valida por su cuenta.
	if err := rc.Validate(ctx, "u2", validate); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("validaciones: %d, want 2", calls.Load())
	}
}

func TestRefreshValidationCacheFailureNotCached(t *testing.T) {
	rc := NewRefreshValidationCache("apple", memcache.New(time.Minute), time.Minute)
	ctx := context.Background()

	boom := errors.New("revoked")
	if err := rc.Validate(ctx, "u1", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("want error propagado, got %v", err)
	}

	// El fallo no marca la ventana: la próxima vuelve al provider.
	var called bool
	if err := rc.Validate(ctx, "u1", func(context.Context) error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("el fallo previo no debería cachearse")
	}
}

func TestRefreshValidationCacheCollapsesConcurrent(t *testing.T) {
	rc := NewRefreshValidationCache("apple", memcache.New(time.Minute), time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	gate := make(chan struct{})
	validate := func(ctx context.Context) error {
		calls.Add(1)
		<-gate
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rc.Validate(ctx, "u1", validate)
		}()
	}
	// Dar tiempo a que todos entren al vuelo antes de liberar.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("misses concurrentes colapsados en %d llamadas, want 1", calls.Load())
	}
}

func TestRefreshValidationCacheInvalidate(t *testing.T) {
	rc := NewRefreshValidationCache("apple", memcache.New(time.Minute), time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	validate := func(context.Context) error { calls.Add(1); return nil }

	_ = rc.Validate(ctx, "u1", validate)
	rc.Invalidate("u1")
	_ = rc.Validate(ctx, "u1", validate)

	if calls.Load() != 2 {
		t.Errorf("tras Invalidate debería re-validar: %d llamadas", calls.Load())
	}
}
