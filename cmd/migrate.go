package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/okian/mastery/internal/adapters/repository"
)

var errNoDatabase = errors.New("database_url is not configured")

func (c *cli) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			pool, err := repository.Connect(cmd.Context(), c.cfg.DatabaseURL, c.cfg.DatabaseMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			return repository.Migrate(cmd.Context(), pool, c.log)
		},
	}
}
