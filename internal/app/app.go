// Package app wires configuration, infrastructure, and the Gateway's
// domain packages into the runtime modes this binary serves: the
// MCP-facing api server, the outbox worker, and the one-shot reset-dead
// maintenance path.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onlyfeng/engram-gateway/internal/artifactstore"
	"github.com/onlyfeng/engram-gateway/internal/config"
	"github.com/onlyfeng/engram-gateway/internal/gateway"
	"github.com/onlyfeng/engram-gateway/internal/httpserver"
	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/notify"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
	"github.com/onlyfeng/engram-gateway/internal/outboxworker"
	"github.com/onlyfeng/engram-gateway/internal/platform"
	"github.com/onlyfeng/engram-gateway/internal/rpc"
	"github.com/onlyfeng/engram-gateway/internal/telemetry"
	"github.com/onlyfeng/engram-gateway/internal/version"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api, worker, or
// reset-dead).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting engram-gateway",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "engram-gateway", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	lb := logbook.New(db)

	om, err := newOpenMemoryClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building openmemory client: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, lb, om)
	case "worker":
		return runWorker(ctx, cfg, logger, lb, om)
	case "reset-dead":
		return runResetDead(ctx, logger, lb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runResetDead is a one-shot maintenance path: it clears retry state on
// every dead-lettered outbox row so the worker will pick them back up on
// its next poll, then exits. Scoped to a single project via cfg in the
// future if the fleet grows multi-tenant; today it resets every dead row.
func runResetDead(ctx context.Context, logger *slog.Logger, lb logbook.Port) error {
	n, err := lb.ResetDeadOutbox(ctx, nil)
	if err != nil {
		return fmt.Errorf("resetting dead outbox rows: %w", err)
	}
	logger.Info("reset dead outbox rows", "count", n)
	return nil
}

// newOpenMemoryClient picks OAuth2 client-credentials auth when configured,
// falling back to the static API key otherwise.
func newOpenMemoryClient(ctx context.Context, cfg *config.Config) (*openmemory.Client, error) {
	timeout, err := time.ParseDuration(cfg.OpenMemoryTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing openmemory timeout %q: %w", cfg.OpenMemoryTimeout, err)
	}
	if cfg.OpenMemoryOAuth2ClientID != "" {
		return openmemory.NewOAuth2(ctx, cfg.OpenMemoryBaseURL, cfg.OpenMemoryOAuth2ClientID, cfg.OpenMemoryOAuth2ClientSecret, cfg.OpenMemoryOAuth2TokenURL, timeout), nil
	}
	return openmemory.New(cfg.OpenMemoryBaseURL, cfg.OpenMemoryAPIKey, timeout), nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, lb logbook.Port, om openmemory.Interface) error {
	artifacts, err := artifactstore.NewLocalStore(cfg.ArtifactStoreDir)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	slackNotifier := notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackReportChannel)
	if slackNotifier.IsEnabled() {
		logger.Info("slack reliability digests enabled", "channel", cfg.SlackReportChannel)
	} else {
		logger.Info("slack reliability digests disabled (SLACK_BOT_TOKEN not set)")
	}

	gw := gateway.New(gateway.Deps{
		Config: gateway.Config{
			ProjectKey:                    cfg.ProjectKey,
			DefaultTeamSpace:              cfg.DefaultTeamSpace,
			PrivateSpacePrefix:            cfg.PrivateSpacePrefix,
			UnknownActorPolicy:            cfg.UnknownActorPolicy,
			GovernanceAdminKey:            cfg.GovernanceAdminKey,
			ValidateEvidenceRefs:          cfg.ValidateEvidenceRefs,
			StrictModeEnforceValidateRefs: cfg.StrictModeEnforceValidateRefs,
		},
		Logbook:       lb,
		OpenMemory:    om,
		ArtifactStore: artifacts,
		Slack:         slackNotifier,
		Logger:        logger,
	})

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthTokens:         cfg.AuthTokens,
		MetricsPath:        cfg.MetricsPath,
	}, logger, db, rdb, metricsReg)

	rpcSrv := rpc.NewServer(gw, logger, version.Version)
	rpcSrv.Mount(srv.RPCRouter)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, lb logbook.Port, om openmemory.Interface) error {
	pollInterval, err := time.ParseDuration(cfg.WorkerPollInterval)
	if err != nil {
		return fmt.Errorf("parsing worker poll interval %q: %w", cfg.WorkerPollInterval, err)
	}

	worker := outboxworker.New(outboxworker.Config{
		WorkerID:           cfg.WorkerID,
		BatchSize:          cfg.WorkerBatchSize,
		MaxRetries:         cfg.WorkerMaxRetries,
		BaseBackoffSeconds: cfg.WorkerBaseBackoffSeconds,
		LeaseSeconds:       cfg.WorkerLeaseSeconds,
		PollInterval:       pollInterval,
	}, lb, om, logger)

	return worker.Run(ctx)
}
