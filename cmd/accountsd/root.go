package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

var version = "dev"

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loader resolves the config and the logger built for it.
type loader func(cmd *cobra.Command) (*daemonConfig, *glog.BaseLogger, error)

func newRootCmd() *cobra.Command {
	var (
		envFile string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:           "accountsd",
		Short:         "Account administration service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading secrets from the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at trace level")

	load := func(cmd *cobra.Command) (*daemonConfig, *glog.BaseLogger, error) {
		lgr := newLogger(verbose)
		cfg, err := loadConfig(cmd.Context(), envFile, lgr)
		if err != nil {
			return nil, nil, err
		}
		return cfg, lgr, nil
	}

	rootCmd.AddCommand(newServeCmd(load))
	rootCmd.AddCommand(newMigrateCmd(load))
	rootCmd.AddCommand(newSeedRolesCmd(load))
	return rootCmd
}
