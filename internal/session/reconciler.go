package session

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authgate/internal/claims"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/store/core"
	"github.com/google/uuid"
)

// Errores de reconciliación. Las cuentas locked/disabled se rechazan DESPUÉS
// de resolver la identidad, nunca antes (no filtrar existencia al provider).
var (
	ErrAccountLocked   = errors.New("account_locked")
	ErrAccountDisabled = errors.New("account_disabled")
	ErrLinkConflict    = errors.New("provider_link_conflict")
)

// Hook corre tras una reconciliación exitosa, antes de persistir la sesión.
// Un error aborta la autenticación.
type Hook func(ctx context.Context, s *Session, u *core.User) error

// Reconciler convierte una identidad externa ya verificada (un ProviderLink
// más sus claims) en una sesión autenticada contra el user canónico. Es el
// único camino de escritura de users y links durante la autenticación.
type Reconciler struct {
	Repo     core.Repository
	Sessions *Store
	Hooks    []Hook
	Now      func() time.Time
}

func NewReconciler(repo core.Repository, sessions *Store, hooks ...Hook) *Reconciler {
	return &Reconciler{Repo: repo, Sessions: sessions, Hooks: hooks, Now: time.Now}
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Reconcile resuelve el user canónico para la identidad entrante, persiste el
// link, mergea claims en la sesión y la marca autenticada.
//
// Resolución, en orden: (1) la sesión ya tiene UserID; (2) existe un link
// para (provider, external id); (3) match por email o username de los claims;
// (4) se crea un user nuevo. Re-ejecutar con la misma identidad es
// idempotente: mismo user, link actualizado in place.
func (r *Reconciler) Reconcile(ctx context.Context, s *Session, link *core.ProviderLink, cs claims.Set) (*core.User, error) {
	log := logger.From(ctx)

	u, err := r.resolveUser(ctx, s, link, cs)
	if err != nil {
		return nil, err
	}

	switch u.Status {
	case core.UserLocked:
		return nil, ErrAccountLocked
	case core.UserDisabled:
		return nil, ErrAccountDisabled
	}

	link.UserID = u.ID
	if err := r.Repo.UpsertLink(ctx, link); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// La identidad externa ya pertenece a otro user local.
			return nil, ErrLinkConflict
		}
		return nil, err
	}

	if changed := r.mergeUserFromClaims(u, cs); changed {
		u.ModifiedAt = r.now().UTC()
		if err := r.Repo.UpdateUser(ctx, u); err != nil {
			return nil, err
		}
	}

	r.applyToSession(ctx, s, u, cs)

	for _, h := range r.Hooks {
		if err := h(ctx, s, u); err != nil {
			return nil, err
		}
	}

	if err := r.Sessions.Save(ctx, s); err != nil {
		return nil, err
	}

	log.Info("session reconciled",
		logger.Component("session.reconciler"),
		logger.Provider(link.Provider),
		logger.ExternalUserID(link.ExternalUserID),
		logger.UserID(u.ID),
		logger.SessionID(s.ID),
	)
	return u, nil
}

func (r *Reconciler) resolveUser(ctx context.Context, s *Session, link *core.ProviderLink, cs claims.Set) (*core.User, error) {
	if s.UserID != "" {
		u, err := r.Repo.GetUserByID(ctx, s.UserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		// Sesión apuntando a un user borrado: seguir resolviendo.
	}

	if existing, err := r.Repo.GetLink(ctx, link.Provider, link.ExternalUserID); err == nil {
		u, err := r.Repo.GetUserByID(ctx, existing.UserID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	if email := cs.First(claims.Email); email != "" {
		u, err := r.Repo.GetUserByEmail(ctx, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}
	if userName := cs.First(claims.PreferredUsername); userName != "" {
		u, err := r.Repo.GetUserByUserName(ctx, userName)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}

	return r.createUser(ctx, link, cs)
}

func (r *Reconciler) createUser(ctx context.Context, link *core.ProviderLink, cs claims.Set) (*core.User, error) {
	now := r.now().UTC()
	u := &core.User{
		ID:          uuid.NewString(),
		UserName:    cs.First(claims.PreferredUsername),
		DisplayName: cs.First(claims.DisplayName),
		Email:       cs.First(claims.Email),
		Status:      core.UserActive,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if u.UserName == "" {
		u.UserName = link.ExternalUserName
	}
	if err := r.Repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// Carrera: otro request creó el user entre el lookup y acá.
			if u.Email != "" {
				if existing, err2 := r.Repo.GetUserByEmail(ctx, u.Email); err2 == nil {
					return existing, nil
				}
			}
			if u.UserName != "" {
				if existing, err2 := r.Repo.GetUserByUserName(ctx, u.UserName); err2 == nil {
					return existing, nil
				}
			}
		}
		return nil, err
	}
	return u, nil
}

// mergeUserFromClaims aplica populate-if-missing sobre el user canónico:
// solo rellena campos vacíos, nunca pisa datos existentes.
func (r *Reconciler) mergeUserFromClaims(u *core.User, cs claims.Set) bool {
	changed := false
	if u.UserName == "" {
		if v := cs.First(claims.PreferredUsername); v != "" {
			u.UserName = v
			changed = true
		}
	}
	if u.DisplayName == "" {
		if v := cs.First(claims.DisplayName); v != "" {
			u.DisplayName = v
			changed = true
		}
	}
	if u.Email == "" {
		if v := cs.First(claims.Email); v != "" {
			u.Email = v
			changed = true
		}
	}
	return changed
}

// applyToSession proyecta user + claims sobre la sesión. Los campos de sesión
// se rellenan si faltan, salvo los tipos priority que siempre pisan.
func (r *Reconciler) applyToSession(ctx context.Context, s *Session, u *core.User, cs claims.Set) {
	s.UserID = u.ID
	s.UserName = claims.MergeValue(s.UserName, u.UserName)
	s.DisplayName = claims.MergeValue(s.DisplayName, u.DisplayName)
	s.Email = claims.MergeValue(s.Email, u.Email)

	for _, c := range cs {
		if !claims.PriorityTypes[c.Type] {
			continue
		}
		switch c.Type {
		case claims.PreferredUsername:
			s.UserName = claims.MergeValue(s.UserName, c.Value)
		}
	}

	s.Roles = claims.MergeStringSet(u.Roles, cs.Values(claims.Role))
	s.Permissions = claims.MergeStringSet(u.Permissions, cs.Values(claims.Permission))

	if links, err := r.Repo.ListLinks(ctx, u.ID); err == nil {
		s.Providers = links
	}

	s.IsAuthenticated = true
	s.LastModified = r.now().UTC()
}
