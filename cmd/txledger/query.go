package main

import (
	"TxLedger/internal/event"
	"TxLedger/internal/query"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newQueryCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read balances persisted by the Postgres sink",
	}

	var limit int
	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueryService(cmd, root, func(qs *query.QueryService) (interface{}, error) {
				return qs.ListRuns(cmd.Context(), limit)
			})
		},
	}
	runs.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	var client int
	accounts := &cobra.Command{
		Use:   "accounts <run-id>",
		Short: "Show the balances of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			return withQueryService(cmd, root, func(qs *query.QueryService) (interface{}, error) {
				if cmd.Flags().Changed("client") {
					if client < 0 || client > 65535 {
						return nil, errors.New("--client must be in 0..65535")
					}
					return qs.GetAccount(cmd.Context(), runID, event.ClientID(client))
				}
				return qs.GetRun(cmd.Context(), runID)
			})
		},
	}
	accounts.Flags().IntVar(&client, "client", 0, "show only this client")

	verify := &cobra.Command{
		Use:   "verify <run-id>",
		Short: "Re-check the balance invariants of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			var report *query.IntegrityReport
			err = withQueryService(cmd, root, func(qs *query.QueryService) (interface{}, error) {
				report, err = qs.VerifyIntegrity(cmd.Context(), runID)
				return report, err
			})
			if err != nil {
				return err
			}
			if !report.IsHealthy {
				return fmt.Errorf("run %s has %d invalid account(s)", runID, len(report.Violations))
			}
			return nil
		},
	}

	cmd.AddCommand(runs, accounts, verify)
	return cmd
}

// withQueryService opens Postgres, runs fn and prints its result as JSON.
func withQueryService(cmd *cobra.Command, root *rootOptions, fn func(qs *query.QueryService) (interface{}, error)) error {
	if root.cfg.PostgresDSN == "" {
		return errors.New("query requires --postgres-dsn or LEDGER_POSTGRES_DSN")
	}

	ctx, rt, cleanup := newRuntime(cmd.Context(), root.cfg)
	defer cleanup()

	db, err := rt.openDB(ctx)
	if err != nil {
		return err
	}

	result, err := fn(query.NewQueryService(db))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
