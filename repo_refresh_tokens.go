package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens is the store behind RefreshTokenManager. The (username,
// email) pair is unique, so UpsertTx rotates in place.
type RefreshTokens interface {
	UpsertTx(ctx context.Context, tx bun.IDB, record *RefreshToken) error
	GetByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*RefreshToken, error)
	RotateTx(ctx context.Context, tx bun.IDB, previousHash, nextHash string, expiresAt, at time.Time) (bool, error)
	DeleteByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (bool, error)
	DeleteForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) error
	RenameIdentityTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, username, email string, at time.Time) error
}

type refreshTokens struct {
	db *bun.DB
}

var _ RefreshTokens = (*refreshTokens)(nil)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	return &refreshTokens{db: db}
}

func (r *refreshTokens) UpsertTx(ctx context.Context, tx bun.IDB, record *RefreshToken) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (username, email) DO UPDATE").
		Set("principal_id = EXCLUDED.principal_id").
		Set("token_hash = EXCLUDED.token_hash").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *refreshTokens) GetByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundAs(err, ErrTokenNotFound)
	}
	return record, nil
}

// RotateTx replaces the token value only if previousHash is still current.
// Of several concurrent rotations of one token exactly one applies.
func (r *refreshTokens) RotateTx(ctx context.Context, tx bun.IDB, previousHash, nextHash string, expiresAt, at time.Time) (bool, error) {
	return applied(tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("token_hash = ?", nextHash).
		Set("expires_at = ?", expiresAt).
		Set("updated_at = ?", at).
		Where("token_hash = ?", previousHash).
		Exec(ctx))
}

func (r *refreshTokens) DeleteByHashTx(ctx context.Context, tx bun.IDB, tokenHash string) (bool, error) {
	return applied(tx.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("token_hash = ?", tokenHash).
		Exec(ctx))
}

func (r *refreshTokens) DeleteForPrincipalTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	return err
}

// RenameIdentityTx keeps the identity key in sync after a profile change.
func (r *refreshTokens) RenameIdentityTx(ctx context.Context, tx bun.IDB, principalID uuid.UUID, username, email string, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("username = ?", username).
		Set("email = ?", email).
		Set("updated_at = ?", at).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	return err
}
