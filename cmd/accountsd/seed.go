package main

import (
	"context"
	"errors"

	accounts "github.com/goliatone/go-accounts"
		"github.com/spf13/cobra"
)

func newSeedRolesCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-roles [name...]",
		Short: "Create the admin and default roles if missing",
		Long:  "Creates the seed_roles from the config (the admin, owner and worker roles by default) plus any names given as arguments. Existing roles are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lgr, err := load(cmd)
			if err != nil {
				return err
			}

			svc, err := newServices(cmd.Context(), cfg, lgr)
			if err != nil {
				return err
			}
			defer svc.close()

			_, err = seedRoles(cmd.Context(), svc.roles, lgr.GetLogger("seed"), append(cfg.SeedRoles, args...))
			return err
		},
	}
}

// seedRoles creates each named role and returns the ones it created.
func seedRoles(ctx context.Context, roles *accounts.RoleService, logger accounts.Logger, names []string) ([]string, error) {
	var created []string
	for _, name := range names {
		role, err := roles.Create(ctx, accounts.SystemActor, name)
		if errors.Is(err, accounts.ErrRoleExists) {
			logger.Debug("role exists", "name", name)
			continue
		}
		if err != nil {
			return created, err
		}
		logger.Info("role created", "name", role.Name, "id", role.ID)
		created = append(created, role.Name)
	}
	return created, nil
}
