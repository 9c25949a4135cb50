package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
)

func newMigrateCmd() *cobra.Command {
	var training bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.DBPath
			if training {
				if cfg.TrainingDBPath == "" {
					return errors.New("training_db_path is not set; the training namespace is in memory")
				}
				path = cfg.TrainingDBPath
			}

			conn, err := db.Open(cmd.Context(), db.Config{Path: path, Env: cfg.Env})
			if err != nil {
				return err
			}
			defer conn.Close()

			v, err := db.Version(cmd.Context(), conn)
			if err != nil {
				return err
			}
			logger.Info("schema up to date", zap.String("path", path), zap.Int("version", v))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", path, v)
			return nil
		},
	}

	cmd.Flags().BoolVar(&training, "training", false, "Migrate the training database instead of production")

	return cmd
}

func newShiftCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "shift",
		Short: "Print the shift on duty now or at --at",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			clk, err := shift.NewClock(cfg.Shift.Epoch, cfg.Shift.Boundary, cfg.Shift.Names, cfg.Location())
			if err != nil {
				return err
			}
			t := time.Now()
			if at != "" {
				if t, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			w := clk.For(t)
			loc := clk.Location()
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s\n",
				w.Name, w.Start.In(loc).Format(time.RFC3339), w.End.In(loc).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Instant to resolve (RFC 3339); defaults to now")

	return cmd
}

func newHashSecretCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash an operator secret for the operators section of the config",
		Long:  "Reads the secret from --secret or, when omitted, from the first line of stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("secret is empty")
			}
			hash, err := service.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Secret to hash (prefer stdin to keep it out of shell history)")

	return cmd
}
