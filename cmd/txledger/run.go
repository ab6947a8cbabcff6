package main

import (
	"TxLedger/internal/ingestion"
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <transactions.csv>",
		Short: "Process a CSV file of events and print final balances",
		Long: `Process a CSV file of events and print the final balances to stdout.

Use "-" to read from stdin.

Example:
  txledger run transactions.csv > accounts.csv
  txledger run --postgres-dsn postgres://localhost/ledger transactions.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, rt, cleanup := newRuntime(cmd.Context(), root.cfg)
			defer cleanup()

			var src *ingestion.CSVSource
			if args[0] == "-" {
				src = ingestion.NewCSVSource(bufio.NewReader(cmd.InOrStdin()))
			} else {
				var err error
				if src, err = ingestion.OpenCSV(args[0]); err != nil {
					return err
				}
			}
			defer src.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			sinks, err := rt.sinks(ctx, out)
			if err != nil {
				return err
			}

			runErr := rt.run(ctx, src, sinks)
			if err := out.Flush(); err != nil && runErr == nil {
				return fmt.Errorf("flush output: %w", err)
			}
			return runErr
		},
	}
}

