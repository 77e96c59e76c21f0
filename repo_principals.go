package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var UpdatePrincipalPasswordSQL = `UPDATE "principals"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"id" = ?
AND
	"password_hash" = ?
RETURNING *;`

// Principals is the store for owner and worker accounts. Every state change
// is a conditional update that reports whether it applied.
type Principals interface {
	Create(ctx context.Context, record *Principal) (*Principal, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Principal, error)
	GetByIdentityTx(ctx context.Context, tx bun.IDB, username, email string) (*Principal, error)
	GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*Principal, error)
	ExistsTx(ctx context.Context, tx bun.IDB, username, email string, exclude uuid.UUID) (bool, error)
	ListByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, deleted bool) ([]*Principal, error)

	ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, at time.Time) (bool, error)
	SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, at time.Time) (bool, error)
	SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	RestoreTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error)
	PurgeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)

	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, previousHash, passwordHash string, at time.Time) (bool, error)
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt, at time.Time) error
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string, at time.Time) (bool, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Principal, at time.Time) error
}

type principals struct {
	repo repository.Repository[*Principal]
	db   *bun.DB
}

var _ Principals = (*principals)(nil)

// NewPrincipalsRepository returns the bun backed Principals store.
func NewPrincipalsRepository(db *bun.DB) Principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &principals{repo: repo, db: db}
}

func (r *principals) Create(ctx context.Context, record *Principal) (*Principal, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *principals) CreateTx(ctx context.Context, tx bun.IDB, record *Principal) (*Principal, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	out, err := r.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return out, nil
}

func (r *principals) GetByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *principals) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Principal, error) {
	return r.findOne(ctx, tx, "id", id)
}

func (r *principals) GetByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	return r.GetByIdentifierTx(ctx, r.db, identifier)
}

// GetByIdentifierTx resolves a username, an email or an id.
func (r *principals) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*Principal, error) {
	for _, opt := range resolveIdentifier(identifier) {
		record, err := r.findOne(ctx, tx, opt.column, opt.value)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
	}
	return nil, ErrPrincipalNotFound
}

func (r *principals) GetByIdentityTx(ctx context.Context, tx bun.IDB, username, email string) (*Principal, error) {
	record := &Principal{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", username).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrPrincipalNotFound)
	}
	return record, nil
}

func (r *principals) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrResetTokenInvalid
	}
	record := &Principal{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.password_reset_token = ?", HashToken(token)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrResetTokenInvalid)
	}
	return record, nil
}

func (r *principals) ExistsTx(ctx context.Context, tx bun.IDB, username, email string, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*Principal)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			values := bun.In([]string{username, email})
			return q.Where("?TableAlias.username IN (?)", values).
				WhereOr("?TableAlias.email IN (?)", values)
		})
	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", exclude)
	}
	return q.Exists(ctx)
}

func (r *principals) ListByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, deleted bool) ([]*Principal, error) {
	records := []*Principal{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.kind = ?", KindWorker).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.is_deleted = ?", deleted).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// ActivateTx consumes a pending verification code.
func (r *principals) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("is_active = ?", true).
		Set("verification_code = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_deleted = ?", false).
		Where("verification_code = ?", code).
		Exec(ctx))
}

// SetVerificationCodeTx replaces the code of an account still pending verification.
func (r *principals) SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("verification_code = ?", code).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_active = ?", false).
		Where("is_deleted = ?", false).
		Exec(ctx))
}

func (r *principals) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("is_active = ?", false).
		Set("is_deleted = ?", true).
		Set("deleted_on = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Where("is_deleted = ?", false).
		Exec(ctx))
}

func (r *principals) RestoreTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("is_active = ?", true).
		Set("is_deleted = ?", false).
		Set("deleted_on = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("is_deleted = ?", true).
		Exec(ctx))
}

// PurgeTx removes a soft deleted principal together with its role
// assignments and refresh token.
func (r *principals) PurgeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	if _, err := tx.NewDelete().
		Model((*PrincipalRole)(nil)).
		Where("principal_id = ?", id).
		Exec(ctx); err != nil {
		return false, err
	}

	if _, err := tx.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("principal_id = ?", id).
		Exec(ctx); err != nil {
		return false, err
	}

	return applied(tx.NewDelete().
		Model((*Principal)(nil)).
		Where("id = ?", id).
		Where("is_deleted = ?", true).
		Exec(ctx))
}

// UpdatePasswordTx swaps the hash only while previousHash is still stored.
func (r *principals) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, previousHash, passwordHash string, at time.Time) (bool, error) {
	res, err := r.repo.RawTx(ctx, tx, UpdatePrincipalPasswordSQL, passwordHash, at, id, previousHash)
	if err != nil {
		return false, err
	}

	return len(res) > 0, nil
}

// SetResetTokenTx stores the hash of a password reset token.
func (r *principals) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt, at time.Time) error {
	ok, err := applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("password_reset_token = ?", HashToken(token)).
		Set("password_reset_expires_at = ?", expiresAt).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return ErrPrincipalNotFound
	}
	return nil
}

// ConsumeResetTokenTx swaps the password and clears the token only while the
// token is still the stored one.
func (r *principals) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_reset_token = NULL").
		Set("password_reset_expires_at = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("password_reset_token = ?", HashToken(token)).
		Exec(ctx))
}

func (r *principals) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Principal, at time.Time) error {
	ok, err := applied(tx.NewUpdate().
		Model((*Principal)(nil)).
		Set("name = ?", record.Name).
		Set("username = ?", record.Username).
		Set("email = ?", record.Email).
		Set("phone_number = ?", record.Phone).
		Set("updated_at = ?", at).
		Where("id = ?", record.ID).
		Exec(ctx))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	if !ok {
		return ErrPrincipalNotFound
	}
	record.UpdatedAt = at
	return nil
}

func (r *principals) findOne(ctx context.Context, tx bun.IDB, column string, value any) (*Principal, error) {
	record := &Principal{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrPrincipalNotFound)
	}
	return record, nil
}

type identifierOption struct {
	column string
	value  any
}

func resolveIdentifier(identifier string) []identifierOption {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	if id, err := uuid.Parse(identifier); err == nil {
		return []identifierOption{{column: "id", value: id}}
	}

	if _, err := mail.ParseAddress(identifier); err == nil {
		return []identifierOption{
			{column: "email", value: strings.ToLower(identifier)},
			{column: "username", value: identifier},
		}
	}

	return []identifierOption{{column: "username", value: identifier}}
}

func applied(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFoundAs(err, target error) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return target
	}
	return err
}
