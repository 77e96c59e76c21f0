package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleService manages role records and their assignment to principals.
// Deactivating or deleting a role keeps its assignments; it only stops the
// role from contributing to new claims.
type RoleService struct {
	repo   RepositoryManager
	sink   ActivitySink
	logger Logger
	now    Clock
}

type RoleServiceOption func(*RoleService)

func WithRoleServiceActivitySink(sink ActivitySink) RoleServiceOption {
	return func(s *RoleService) {
		s.sink = normalizeActivitySink(sink)
	}
}

func WithRoleServiceLogger(logger Logger) RoleServiceOption {
	return func(s *RoleService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithRoleServiceClock injects a custom clock (useful for tests).
func WithRoleServiceClock(clock Clock) RoleServiceOption {
	return func(s *RoleService) {
		s.now = normalizeClock(clock)
	}
}

func NewRoleService(repo RepositoryManager, opts ...RoleServiceOption) *RoleService {
	s := &RoleService{
		repo:   repo,
		sink:   noopActivitySink{},
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Create adds an active role. Names are unique.
func (s *RoleService) Create(ctx context.Context, actor ActorRef, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := (RoleUpdate{Name: &name}).Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role")
	}

	now := s.now()
	var out *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = s.repo.Roles().CreateTx(ctx, tx, &Role{
			Name:      name,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, asRichError(err, "failed to create role")
	}

	s.roleChanged(ctx, actor, out, "created")
	return out, nil
}

func (s *RoleService) Get(ctx context.Context, id uuid.UUID) (*Role, error) {
	out, err := s.repo.Roles().GetByIDTx(ctx, s.repo.DB(), id)
	if err != nil {
		return nil, asRichError(err, "failed to load role")
	}
	return out, nil
}

// List returns the roles that are not deleted, ordered by name.
func (s *RoleService) List(ctx context.Context) ([]*Role, error) {
	out, err := s.repo.Roles().ListTx(ctx, s.repo.DB())
	if err != nil {
		return nil, asRichError(err, "failed to list roles")
	}
	return out, nil
}

// Update applies the non-nil fields of update.
func (s *RoleService) Update(ctx context.Context, actor ActorRef, id uuid.UUID, update RoleUpdate) (*Role, error) {
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		update.Name = &trimmed
	}
	if err := update.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role update")
	}

	now := s.now()
	var out *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		role, err := s.repo.Roles().GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.Name != nil {
			role.Name = *update.Name
		}
		if update.Active != nil {
			role.Active = *update.Active
		}
		if err := s.repo.Roles().UpdateTx(ctx, tx, role, now); err != nil {
			return err
		}
		out = role
		return nil
	})
	if err != nil {
		return nil, asRichError(err, "failed to update role")
	}

	s.roleChanged(ctx, actor, out, "updated")
	return out, nil
}

// Activate lets the role contribute to claims again.
func (s *RoleService) Activate(ctx context.Context, actor ActorRef, id uuid.UUID) (*Role, error) {
	return s.setActive(ctx, actor, id, true)
}

// Deactivate suppresses the role without touching its assignments.
func (s *RoleService) Deactivate(ctx context.Context, actor ActorRef, id uuid.UUID) (*Role, error) {
	return s.setActive(ctx, actor, id, false)
}

func (s *RoleService) setActive(ctx context.Context, actor ActorRef, id uuid.UUID, active bool) (*Role, error) {
	now := s.now()
	var out *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := s.repo.Roles().SetActiveTx(ctx, tx, id, active, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoleNotFound
		}
		out, err = s.repo.Roles().GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, asRichError(err, "failed to change role state")
	}

	action := "deactivated"
	if active {
		action = "activated"
	}
	s.roleChanged(ctx, actor, out, action)
	return out, nil
}

// Delete soft deletes the role. It disappears from List and from claims.
func (s *RoleService) Delete(ctx context.Context, actor ActorRef, id uuid.UUID) error {
	var role *Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		role, err = s.repo.Roles().GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		ok, err := s.repo.Roles().SoftDeleteTx(ctx, tx, id, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoleNotFound
		}
		return nil
	})
	if err != nil {
		return asRichError(err, "failed to delete role")
	}

	s.roleChanged(ctx, actor, role, "deleted")
	return nil
}

// Assign adds roleIDs to the principal's set. Roles already held are kept.
func (s *RoleService) Assign(ctx context.Context, actor ActorRef, principalID uuid.UUID, roleIDs []uuid.UUID) ([]*Role, error) {
	return s.changeAssignments(ctx, actor, principalID, roleIDs, "assign", func(ctx context.Context, tx bun.Tx, ids []uuid.UUID, at time.Time) error {
		return s.repo.Roles().AssignTx(ctx, tx, principalID, ids, at)
	})
}

// Remove drops roleIDs from the principal's set. Roles not held are ignored.
func (s *RoleService) Remove(ctx context.Context, actor ActorRef, principalID uuid.UUID, roleIDs []uuid.UUID) ([]*Role, error) {
	return s.changeAssignments(ctx, actor, principalID, roleIDs, "remove", func(ctx context.Context, tx bun.Tx, ids []uuid.UUID, _ time.Time) error {
		return s.repo.Roles().RemoveTx(ctx, tx, principalID, ids)
	})
}

// Replace overwrites the principal's set with roleIDs.
func (s *RoleService) Replace(ctx context.Context, actor ActorRef, principalID uuid.UUID, roleIDs []uuid.UUID) ([]*Role, error) {
	return s.changeAssignments(ctx, actor, principalID, roleIDs, "replace", func(ctx context.Context, tx bun.Tx, ids []uuid.UUID, at time.Time) error {
		if err := s.repo.Roles().ClearTx(ctx, tx, principalID); err != nil {
			return err
		}
		return s.repo.Roles().AssignTx(ctx, tx, principalID, ids, at)
	})
}

// EffectiveRoles returns the sorted names of the principal's active roles.
func (s *RoleService) EffectiveRoles(ctx context.Context, principalID uuid.UUID) ([]string, error) {
	roles, err := s.repo.Roles().EffectiveForPrincipalTx(ctx, s.repo.DB(), principalID)
	if err != nil {
		return nil, asRichError(err, "failed to load roles")
	}
	return RoleNames(roles), nil
}

type assignmentFunc func(ctx context.Context, tx bun.Tx, roleIDs []uuid.UUID, at time.Time) error

func (s *RoleService) changeAssignments(ctx context.Context, actor ActorRef, principalID uuid.UUID, roleIDs []uuid.UUID, op string, apply assignmentFunc) ([]*Role, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "role assignment cancelled")
	default:
	}

	ids := uniqueIDs(roleIDs)
	now := s.now()
	var out []*Role
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Principals().GetByIDTx(ctx, tx, principalID); err != nil {
			return err
		}

		found, err := s.repo.Roles().ListByIDsTx(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(found) != len(ids) {
			return ErrRoleNotFound
		}

		if err := apply(ctx, tx, ids, now); err != nil {
			return err
		}

		out, err = s.repo.Roles().ForPrincipalTx(ctx, tx, principalID)
		return err
	})
	if err != nil {
		return nil, asRichError(err, "role assignment transaction failed")
	}

	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType:   ActivityEventRolesChanged,
		Actor:       actor,
		PrincipalID: principalID.String(),
		Metadata: map[string]any{
			"operation": op,
			"roles":     RoleNames(out),
		},
		OccurredAt: now,
	})
	return out, nil
}

func (s *RoleService) roleChanged(ctx context.Context, actor ActorRef, role *Role, action string) {
	if role == nil {
		return
	}
	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     actor,
		Metadata: map[string]any{
			"action":  action,
			"role_id": role.ID.String(),
			"role":    role.Name,
			"active":  role.Active,
		},
		OccurredAt: s.now(),
	})
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
