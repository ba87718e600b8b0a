package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wallet/internal/backend"
	"wallet/internal/cli"
	"wallet/internal/config"
	"wallet/internal/core"
	"wallet/internal/ledger"
	"wallet/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "wallet",
		Short: "Track income and expenses",
		Long: `Wallet keeps an ordered list of income and expense transactions in a
single storage slot, shows filtered views of it and computes totals.

Run "wallet serve" for the HTTP API, or use the other commands against the
configured backend directly.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $"+config.ConfigFileEnv+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		a.serveCmd(),
		a.addCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.totalsCmd(),
		a.importCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

// openBackend builds the configured slot store. Close the result when done.
func (a *app) openBackend(ctx context.Context) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(a.logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bc.Type, err)
	}
	return res, nil
}

// openLedger opens the backend and loads the ledger from it. A malformed
// slot is applied according to policy.
func (a *app) openLedger(ctx context.Context, policy string) (*ledger.Store, *backend.BackendResult, error) {
	res, err := a.openBackend(ctx)
	if err != nil {
		return nil, nil, err
	}
	store := ledger.NewStore(res.Store,
		ledger.WithKey(a.cfg.StorageKey),
		ledger.WithLogger(a.logger))
	if err := loadLedger(ctx, store, policy, a.logger); err != nil {
		_ = res.Close()
		return nil, nil, err
	}
	return store, res, nil
}

// loadLedger reads the slot. With the reset policy a malformed slot is
// replaced by an empty list; with halt the error is returned.
func loadLedger(ctx context.Context, store *ledger.Store, policy string, logger *log.Logger) error {
	err := store.Load(ctx)
	if err == nil || !errors.Is(err, core.ErrMalformedStorage) || policy != config.OnMalformedReset {
		return err
	}
	logger.Warn("Stored transactions are malformed, starting from an empty list",
		log.FieldKey, store.Key(),
		log.FieldOperation, log.OpReset,
		log.FieldError, err)
	if err := store.Reset(ctx); err != nil {
		return fmt.Errorf("reset malformed slot: %w", err)
	}
	return nil
}
