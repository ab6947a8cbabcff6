package main

import (
	"TxLedger/internal/ingestion"

	"github.com/spf13/cobra"
)

func newPublishCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <transactions.csv>",
		Short: "Publish a CSV file of events to NATS JetStream",
		Long: `Publish every event of a CSV file to NATS JetStream in the format
"txledger consume" reads. Malformed rows are logged and skipped.

Example:
  txledger publish transactions.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, rt, cleanup := newRuntime(cmd.Context(), root.cfg)
			defer cleanup()
			logger := rt.component("publish")

			src, err := ingestion.OpenCSV(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			js, err := rt.connectNATS()
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if err := ingestion.EnsureInputStream(ctx, js, cfg.NATSStream, cfg.InputSubjectFilter()); err != nil {
				return err
			}

			pub := ingestion.NewEventPublisher(js, cfg.NATSSubject)
			n, err := pub.Forward(ctx, src, func(de *ingestion.DecodeError) {
				logger.Warn().
					Str("kind", string(de.Kind)).
					Int64("position", de.Position).
					Err(de.Err).
					Msg("skipping malformed record")
			})
			if err != nil {
				return err
			}

			logger.Info().Int("published", n).Str("subject", cfg.NATSSubject).Msg("publish complete")
			return nil
		},
	}
}
