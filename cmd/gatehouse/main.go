// Command gatehouse runs the facility access-control server and its
// maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/config"
	"github.com/BrandonDHaskell/gatehouse/internal/logging"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gatehouse",
		Short:         "Facility entry/exit registry with audited corrections",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GATEHOUSE_CONFIG"), "Path to a YAML config file")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newShiftCmd(),
		newHashSecretCmd(),
	)

	return rootCmd
}

// loadConfig reads the config and builds the process logger from it.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env == "dev")
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.With(zap.String("env", cfg.Env)), nil
}
