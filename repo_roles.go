package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles is the store for roles and their assignment to principals.
type Roles interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name string, at time.Time) (*Role, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error)
	ListByIDsTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) ([]*Role, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *Role, at time.Time) error
	SetActiveTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool, at time.Time) (bool, error)
	SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)

	AssignTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, roleIDs []uuid.UUID, at time.Time) error
	RemoveTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, roleIDs []uuid.UUID) error
	ClearTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) error
	ForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*Role, error)
	EffectiveForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*Role, error)
}

type roles struct {
	repo repository.Repository[*Role]
	db   *bun.DB
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns the bun backed Roles store.
func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})
	return &roles{repo: repo, db: db}
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	out, err := r.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	return out, nil
}

func (r *roles) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.is_deleted = ?", false).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrRoleNotFound)
	}
	return record, nil
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Where("?TableAlias.is_deleted = ?", false).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrRoleNotFound)
	}
	return record, nil
}

// GetOrCreateByNameTx returns the named role, creating it active when missing.
// A soft deleted role of that name is revived in place, since the name stays
// reserved by the deleted row.
func (r *roles) GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name string, at time.Time) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return r.CreateTx(ctx, tx, &Role{
			Name:      name,
			Active:    true,
			CreatedAt: at,
			UpdatedAt: at,
		})
	}
	if !record.Deleted {
		return record, nil
	}

	ok, err := applied(tx.NewUpdate().
		Model((*Role)(nil)).
		Set("is_deleted = ?", false).
		Set("is_active = ?", true).
		Set("updated_at = ?", at).
		Where("id = ?", record.ID).
		Where("is_deleted = ?", true).
		Exec(ctx))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoleNotFound
	}
	record.Deleted = false
	record.Active = true
	record.UpdatedAt = at
	return record, nil
}

func (r *roles) ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error) {
	records := []*Role{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.is_deleted = ?", false).
		OrderExpr("?TableAlias.name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (r *roles) ListByIDsTx(ctx context.Context, tx bun.IDB, ids []uuid.UUID) ([]*Role, error) {
	records := []*Role{}
	if len(ids) == 0 {
		return records, nil
	}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.id IN (?)", bun.In(ids)).
		Where("?TableAlias.is_deleted = ?", false).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (r *roles) UpdateTx(ctx context.Context, tx bun.IDB, record *Role, at time.Time) error {
	ok, err := applied(tx.NewUpdate().
		Model((*Role)(nil)).
		Set("name = ?", record.Name).
		Set("is_active = ?", record.Active).
		Set("updated_at = ?", at).
		Where("id = ?", record.ID).
		Where("is_deleted = ?", false).
		Exec(ctx))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrRoleExists
		}
		return err
	}
	if !ok {
		return ErrRoleNotFound
	}
	record.UpdatedAt = at
	return nil
}

func (r *roles) SetActiveTx(ctx context.Context, tx bun.IDB, id uuid.UUID, active bool, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Role)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Exec(ctx))
}

func (r *roles) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Role)(nil)).
		Set("is_active = ?", false).
		Set("is_deleted = ?", true).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Exec(ctx))
}

// AssignTx inserts the assignments, skipping the ones already held.
func (r *roles) AssignTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, roleIDs []uuid.UUID, at time.Time) error {
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]PrincipalRole, 0, len(roleIDs))
	for _, id := range roleIDs {
		rows = append(rows, PrincipalRole{PrincipalID: principalID, RoleID: id, CreatedAt: at})
	}
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (r *roles) RemoveTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, roleIDs []uuid.UUID) error {
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := tx.NewDelete().
		Model((*PrincipalRole)(nil)).
		Where("principal_id = ?", principalID).
		Where("role_id IN (?)", bun.In(roleIDs)).
		Exec(ctx)
	return err
}

func (r *roles) ClearTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*PrincipalRole)(nil)).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	return err
}

// ForPrincipalTx returns every role assigned to the principal, including
// inactive ones.
func (r *roles) ForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*Role, error) {
	return r.assigned(ctx, tx, principalID, false)
}

// EffectiveForPrincipalTx returns the assigned roles that are active and not deleted.
func (r *roles) EffectiveForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) ([]*Role, error) {
	return r.assigned(ctx, tx, principalID, true)
}

func (r *roles) assigned(ctx context.Context, tx bun.IDB, principalID uuid.UUID, effectiveOnly bool) ([]*Role, error) {
	records := []*Role{}
	q := tx.NewSelect().
		Model(&records).
		Join("JOIN principal_roles AS prr ON prr.role_id = ?TableAlias.id").
		Where("prr.principal_id = ?", principalID).
		Where("?TableAlias.is_deleted = ?", false)
	if effectiveOnly {
		q = q.Where("?TableAlias.is_active = ?", true)
	}
	err := q.OrderExpr("?TableAlias.name ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// RoleNames returns the names of roles in order.
func RoleNames(records []*Role) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, r.Name)
		}
	}
	return out
}
