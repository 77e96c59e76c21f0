package main

import (
	"context"
	"database/sql"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestSeedRolesIsIdempotent(t *testing.T) {
	ctx := context.Background()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	_, err = sqldb.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, accounts.Migrate(ctx, sqldb))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	roles := accounts.NewRoleService(accounts.NewRepositoryManager(db))
	logger := newLogger(false).GetLogger("seed")
	names := []string{accounts.AdminRole, accounts.DefaultOwnerRole, accounts.AdminRole}

	created, err := seedRoles(ctx, roles, logger, names)
	require.NoError(t, err)
	assert.Equal(t, []string{accounts.AdminRole, accounts.DefaultOwnerRole}, created)

	created, err = seedRoles(ctx, roles, logger, names)
	require.NoError(t, err)
	assert.Empty(t, created)

	list, err := roles.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{accounts.AdminRole, accounts.DefaultOwnerRole}, accounts.RoleNames(list))
}

func TestSeedRolesStopsOnInvalidName(t *testing.T) {
	ctx := context.Background()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	require.NoError(t, accounts.Migrate(ctx, sqldb))
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	roles := accounts.NewRoleService(accounts.NewRepositoryManager(db))
	logger := newLogger(false).GetLogger("seed")

	created, err := seedRoles(ctx, roles, logger, []string{"ROLE_A", "  "})
	assert.Error(t, err)
	assert.Equal(t, []string{"ROLE_A"}, created)
}
