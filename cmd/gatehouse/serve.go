package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/gatehouse/internal/config"
	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/shift"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/BrandonDHaskell/gatehouse/internal/health"
	"github.com/BrandonDHaskell/gatehouse/internal/httpapi"
)

const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health service and the overdue notifiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// sqliteBackend is an opened database plus its single writer.
type sqliteBackend struct {
	db     *sql.DB
	writer *db.Worker
	store  *sqlite.Store
}

func openSQLite(ctx context.Context, path, env string) (*sqliteBackend, error) {
	conn, err := db.Open(ctx, db.Config{Path: path, Env: env})
	if err != nil {
		return nil, err
	}
	w := db.NewWorker(conn)
	return &sqliteBackend{db: conn, writer: w, store: sqlite.NewStore(conn, w)}, nil
}

func (b *sqliteBackend) Close() {
	b.writer.Close()
	_ = b.db.Close()
}

func newDirectory(ops []config.Operator) (*service.Directory, error) {
	specs := make([]service.OperatorSpec, 0, len(ops))
	for _, op := range ops {
		specs = append(specs, service.OperatorSpec{
			ID:           op.ID,
			Name:         op.Name,
			Capabilities: op.Capabilities,
			SecretHash:   op.SecretHash,
		})
	}
	return service.NewDirectory(specs)
}

// overdueNotifiers builds one notifier per namespace, each scanning its own
// board. now may be nil.
func overdueNotifiers(namespaces map[string]*service.Services, cfg config.Overdue, now func() time.Time, logger *zap.Logger) map[string]*service.OverdueNotifier {
	out := make(map[string]*service.OverdueNotifier, len(namespaces))
	for name, svc := range namespaces {
		out[name] = service.NewOverdueNotifier(svc.Store, service.OverdueConfig{
			Threshold: cfg.Threshold,
			Interval:  cfg.Interval,
			Now:       now,
		}, logger.With(zap.String("namespace", name)))
	}
	return out
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clk, err := shift.NewClock(cfg.Shift.Epoch, cfg.Shift.Boundary, cfg.Shift.Names, cfg.Location())
	if err != nil {
		return fmt.Errorf("shift clock: %w", err)
	}
	dir, err := newDirectory(cfg.Operators)
	if err != nil {
		return fmt.Errorf("operators: %w", err)
	}
	if len(dir.IDs()) == 0 {
		logger.Warn("no operators configured; every namespaced request will be rejected")
	}

	prod, err := openSQLite(ctx, cfg.DBPath, cfg.Env)
	if err != nil {
		return fmt.Errorf("production db: %w", err)
	}
	defer prod.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, prod.db, db.SeedDevOptions{ShiftNames: cfg.Shift.Names}); err != nil {
			return fmt.Errorf("seed dev: %w", err)
		}
		logger.Info("dev roster seeded")
	}

	var (
		trainingStore store.Store = memory.New()
		training      *sqliteBackend
	)
	if cfg.TrainingDBPath != "" {
		training, err = openSQLite(ctx, cfg.TrainingDBPath, cfg.Env)
		if err != nil {
			return fmt.Errorf("training db: %w", err)
		}
		defer training.Close()
		trainingStore = training.store
	}

	set := service.Settings{
		Clock:                  clk,
		ManualJustificationMin: cfg.ManualJustificationMin,
		DepartedMarker:         cfg.DepartedMarker,
	}
	namespaces := map[string]*service.Services{
		"production": service.New("production", prod.store, set, dir, logger),
		"training":   service.New("training", trainingStore, set, dir, logger),
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Namespaces: namespaces,
		Operators:  dir,
		Clock:      clk,
		RateLimit:  httpapi.RateLimit{PerMinute: cfg.RateLimit.PerMinute, Burst: cfg.RateLimit.Burst},
	})

	notifiers := overdueNotifiers(namespaces, cfg.Overdue, nil, logger)
	stopNotifiers := func() {
		for _, n := range notifiers {
			n.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, n := range notifiers {
		n.Start(gctx)
	}

	var hs *health.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			stopNotifiers()
			return fmt.Errorf("health listen: %w", err)
		}
		hs = health.New(logger)
		hs.SetServing("", true)
		g.Go(func() error { return hs.Serve(lis) })
		g.Go(func() error {
			hs.Watch(gctx, "gatehouse.production", prod.db, 30*time.Second)
			return nil
		})
		if training != nil {
			g.Go(func() error {
				hs.Watch(gctx, "gatehouse.training", training.db, 30*time.Second)
				return nil
			})
		} else {
			hs.SetServing("gatehouse.training", true)
		}
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if hs != nil {
			hs.Stop()
		}
		stopNotifiers()
		return err
	})

	return g.Wait()
}
