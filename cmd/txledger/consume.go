package main

import (
	"TxLedger/internal/ingestion"
	"bufio"
	"fmt"

	"github.com/spf13/cobra"
)

func newConsumeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Consume events from NATS JetStream until interrupted or idle",
		Long: `Consume JSON events from a NATS JetStream durable consumer. Intake stops
on SIGINT/SIGTERM or after --idle-timeout without events; queued events are
then applied and the final balances written.

Example:
  txledger consume --nats-url nats://localhost:4222 --idle-timeout 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, rt, cleanup := newRuntime(cmd.Context(), root.cfg)
			defer cleanup()

			js, err := rt.connectNATS()
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if err := ingestion.EnsureInputStream(ctx, js, cfg.NATSStream, cfg.InputSubjectFilter()); err != nil {
				return err
			}

			src, err := ingestion.NewNATSSource(ctx, js, ingestion.NATSSourceConfig{
				Stream:      cfg.NATSStream,
				Subject:     cfg.InputSubjectFilter(),
				Consumer:    cfg.NATSConsumer,
				IdleTimeout: cfg.IdleTimeout,
			}, rt.component("ingestion"))
			if err != nil {
				return err
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
