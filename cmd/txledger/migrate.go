package main

import (
	"TxLedger/internal/persistence"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema for the balance sink",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, root, func(m *persistence.Migrator) error {
					n, err := m.Up(cmd.Context())
					if err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, root, func(m *persistence.Migrator) error {
					rolled, err := m.Down(cmd.Context())
					if err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					if !rolled {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, root, func(m *persistence.Migrator) error {
					versions, err := m.Applied(cmd.Context())
					if err != nil {
						return fmt.Errorf("migrate status: %w", err)
					}
					for _, v := range versions {
						fmt.Fprintln(cmd.OutOrStdout(), v)
					}
					return nil
				})
			},
		},
	)

	return cmd
}

func withMigrator(cmd *cobra.Command, root *rootOptions, fn func(m *persistence.Migrator) error) error {
	if root.cfg.PostgresDSN == "" {
		return errors.New("migrate requires --postgres-dsn or LEDGER_POSTGRES_DSN")
	}

	ctx, rt, cleanup := newRuntime(cmd.Context(), root.cfg)
	defer cleanup()

	db, err := rt.openDB(ctx)
	if err != nil {
		return err
	}
	return fn(persistence.NewMigrator(db, rt.cfg.MigrationsDir, rt.component("migrate")))
}
