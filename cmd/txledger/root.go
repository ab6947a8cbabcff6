package main

import (
	"TxLedger/internal/config"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	envFile    string
	configFile string

	// Flag values; only flags set on the command line override cfg.
	queueDepth        int
	logLevel          string
	metricsAddr       string
	postgresDSN       string
	migrationsDir     string
	natsURL           string
	natsSubject       string
	natsOutputSubject string
	idleTimeout       time.Duration

	cfg config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "txledger",
		Short: "Apply ledger transaction events and report final client balances",
		Long: `txledger applies deposit, withdrawal, dispute, resolve and chargeback
events to per-client accounts and writes the final balances as CSV to stdout.

Configuration is read from LEDGER_* environment variables (optionally from a
.env file), then an optional YAML file, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd.Flags())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	f.StringVar(&opts.configFile, "config", "", "path to YAML config")
	f.IntVar(&opts.queueDepth, "queue-depth", 50, "per-client event queue capacity")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error|off)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /readyz on this address")
	f.StringVar(&opts.postgresDSN, "postgres-dsn", "", "also write final balances to Postgres")
	f.StringVar(&opts.migrationsDir, "migrations-dir", "migrations", "directory holding SQL migrations")
	f.StringVar(&opts.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	f.StringVar(&opts.natsSubject, "nats-subject", "txledger.events", "subject prefix events are published under")
	f.StringVar(&opts.natsOutputSubject, "nats-output", "", "also publish final balances under this subject prefix")
	f.DurationVar(&opts.idleTimeout, "idle-timeout", 0, "stop consuming after this long without events (0 waits for a signal)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newConsumeCommand(opts))
	cmd.AddCommand(newPublishCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))

	return cmd
}

// resolve layers env, YAML and explicitly set flags into opts.cfg.
func (o *rootOptions) resolve(flags *pflag.FlagSet) error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}
	if o.configFile != "" {
		if cfg, err = config.LoadFile(cfg, o.configFile); err != nil {
			return err
		}
	}

	overrides := map[string]func(){
		"queue-depth":    func() { cfg.QueueDepth = o.queueDepth },
		"log-level":      func() { cfg.LogLevel = o.logLevel },
		"metrics-addr":   func() { cfg.MetricsAddr = o.metricsAddr },
		"postgres-dsn":   func() { cfg.PostgresDSN = o.postgresDSN },
		"migrations-dir": func() { cfg.MigrationsDir = o.migrationsDir },
		"nats-url":       func() { cfg.NATSURL = o.natsURL },
		"nats-subject":   func() { cfg.NATSSubject = o.natsSubject },
		"nats-output":    func() { cfg.NATSOutputSubject = o.natsOutputSubject },
		"idle-timeout":   func() { cfg.IdleTimeout = o.idleTimeout },
	}
	for name, apply := range overrides {
		if flags.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg
	return nil
}
