package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories and the transaction boundary.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	DB() bun.IDB
	Principals() Principals
	Roles() Roles
	RefreshTokens() RefreshTokens
}

type mngr struct {
	db            *bun.DB
	principals    Principals
	roles         Roles
	refreshTokens RefreshTokens
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		principals:    NewPrincipalsRepository(db),
		roles:         NewRolesRepository(db),
		refreshTokens: NewRefreshTokensRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.principals == nil {
		return errors.New("repository principals should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() bun.IDB {
	return m.db
}

func (m mngr) Principals() Principals {
	return m.principals
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}
