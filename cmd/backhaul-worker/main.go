package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/backhaul/internal/activity"
	"github.com/edvin/backhaul/internal/archive"
	"github.com/edvin/backhaul/internal/config"
	"github.com/edvin/backhaul/internal/core"
	"github.com/edvin/backhaul/internal/crypto"
	"github.com/edvin/backhaul/internal/db"
	"github.com/edvin/backhaul/internal/logging"
	"github.com/edvin/backhaul/internal/mail"
	"github.com/edvin/backhaul/internal/metrics"
	"github.com/edvin/backhaul/internal/workflow"
)

const restoreTempSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	secretsKey, err := crypto.KeyFromBase64(cfg.SecretsKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid secrets key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	settings := core.NewSettingsService(pool, secretsKey)
	history := core.NewHistoryService(pool)
	backup := core.NewBackupService(pool, tc, settings, history)

	builder := archive.NewBuilder(logger, cfg.BackupDir, cfg.UploadsDir, cfg.DatabaseURL, cfg.PgDumpPath)
	mailer := mail.NewMailer(cfg)

	w := worker.New(tc, core.BackupTaskQueue, worker.Options{})
	w.RegisterActivity(activity.NewBackupActivities(logger, builder, settings, history, mailer, cfg.BackupDir))
	w.RegisterWorkflow(workflow.RunBackupWorkflow)

	// Clean up download staging files left behind by an unclean shutdown.
	core.SweepRestoreTemp(logger, restoreTempSweepInterval)
	go func() {
		ticker := time.NewTicker(restoreTempSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				core.SweepRestoreTemp(logger, restoreTempSweepInterval)
			}
		}
	}()

	go core.NewScheduler(logger, settings, backup).Run(ctx)

	if cfg.MetricsListenAddr != "" {
		ready := func() error {
			pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx)
		}
		metricsSrv := metrics.NewServer(cfg.MetricsListenAddr, ready)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.BackupTaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}
