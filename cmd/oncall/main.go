package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/monocle-dev/oncall/db"
	"github.com/monocle-dev/oncall/internal/ackauth"
	"github.com/monocle-dev/oncall/internal/audit"
	"github.com/monocle-dev/oncall/internal/auth"
	"github.com/monocle-dev/oncall/internal/config"
	"github.com/monocle-dev/oncall/internal/handlers"
	"github.com/monocle-dev/oncall/internal/incident"
	"github.com/monocle-dev/oncall/internal/logger"
	"github.com/monocle-dev/oncall/internal/metrics"
	"github.com/monocle-dev/oncall/internal/realtime"
	"github.com/monocle-dev/oncall/internal/router"
	"github.com/monocle-dev/oncall/internal/schedule"
	"github.com/monocle-dev/oncall/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oncall",
		Short:         "On-call rotations and incident lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newRotationCmd())

	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver == config.DriverMemory {
				return errors.New("nothing to migrate for the memory driver")
			}

			conn, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			if err := db.Migrate(conn); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Database migrated")
			return nil
		},
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openStore(cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		log.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(nil), nil
	}

	conn, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}

	return store.NewGormStore(conn), nil
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector, err := metrics.NewPrometheus(registry, "oncall")
	if err != nil {
		return err
	}

	tokens, err := auth.NewJWT(cfg.JWTSecret)
	if err != nil {
		return err
	}

	mode, err := ackauth.ParseMode(cfg.AckTokenMode)
	if err != nil {
		return err
	}

	policy, err := incident.ParsePolicy(cfg.TransitionPolicy)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.Origins(), log.Named("realtime"))

	schedules := schedule.NewService(st,
		schedule.WithLogger(log.Named("schedule")),
		schedule.WithMetrics(collector),
		schedule.WithBroadcaster(hub),
		schedule.WithHorizon(cfg.RotationHorizonDays),
	)

	authorizer := ackauth.NewAuthorizer(ackauth.NewVerifier(mode, st, time.Now), log.Named("ackauth"))
	incidents := incident.NewService(st, authorizer,
		incident.WithLogger(log.Named("incident")),
		incident.WithMetrics(collector),
		incident.WithBroadcaster(hub),
		incident.WithPolicy(policy),
		incident.WithTokenIssuer(ackauth.NewIssuer(st, ackauth.WithTTL(cfg.AckTokenTTL))),
	)

	h := handlers.New(handlers.Deps{
		Schedules: schedules,
		Incidents: incidents,
		Audit:     audit.NewAggregator(st),
		Hub:       hub,
		Directory: st,
		Log:       log,
	})

	r := router.NewRouter(h, router.Options{
		AllowedOrigins: cfg.Origins(),
		Tokens:         tokens,
		Directory:      st,
		Gatherer:       registry,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			zap.String("addr", srv.Addr),
			zap.String("driver", cfg.DatabaseDriver),
			zap.String("ack_token_mode", string(mode)),
			zap.String("transition_policy", string(policy)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
