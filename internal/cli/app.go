package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/monosync/internal/config"
	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/cache"
	"github.com/boddenberg/monosync/internal/infra/client"
	"github.com/boddenberg/monosync/internal/infra/observability"
	"github.com/boddenberg/monosync/internal/infra/resilience"
	"github.com/boddenberg/monosync/internal/infra/secrets"
	"github.com/boddenberg/monosync/internal/infra/store"
	"github.com/boddenberg/monosync/internal/port"
	"github.com/boddenberg/monosync/internal/service"
	"github.com/boddenberg/monosync/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the wired dependency graph shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	db      *store.SQLiteStore
	repo    *storage.Repository
	cache   *cache.InMemory[*domain.ClientInfo]

	syncSvc    *service.SyncService
	datasetSvc *service.DatasetService

	shutdownTracer func(context.Context) error
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	// --- Config ---
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg := config.Load()
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	logger.Debug("configuration loaded",
		zap.String("db_path", cfg.DBPath),
		zap.String("api_url", cfg.MonobankAPIURL),
		zap.Duration("min_request_interval", cfg.MinRequestInterval),
		zap.Int("page_limit", cfg.StatementPageLimit),
		zap.Int("max_period_days", cfg.StatementMaxPeriodDays),
		zap.Duration("client_info_cache_ttl", cfg.ClientInfoCacheTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "monosync")
	if err != nil {
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}

	// --- Storage ---
	db, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	repo := storage.NewRepository(db, cfg.StorageKey, logger)

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Bank API ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	api := client.NewMonobankClient(httpClient, cfg.MonobankAPIURL, resilience.NewCircuitBreaker("monobank"), metrics)

	// --- Cache ---
	infoCache := cache.New[*domain.ClientInfo](cfg.ClientInfoCacheTTL)

	// --- Services ---
	engine := service.NewSyncEngine(api, service.EngineConfig{
		PageLimit:     cfg.StatementPageLimit,
		MaxPeriodDays: cfg.StatementMaxPeriodDays,
		MaxIterations: cfg.PaginationMaxIterations,
	}, logger)

	syncSvc := service.NewSyncService(
		repo,
		api,
		engine,
		infoCache,
		service.NewBroadcaster(),
		resilience.SystemClock{},
		service.SyncConfig{
			MinRequestInterval: cfg.MinRequestInterval,
			WindowDays:         cfg.SyncWindowDays,
		},
		metrics,
		logger,
	)
	datasetSvc := service.NewDatasetService(repo, logger)

	a := &app{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics,
		db:             db,
		repo:           repo,
		cache:          infoCache,
		syncSvc:        syncSvc,
		datasetSvc:     datasetSvc,
		shutdownTracer: shutdown,
	}

	// Migrates the legacy token and seeds demo data on first use.
	if _, err := datasetSvc.Load(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	a.cache.Stop()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	if err := a.shutdownTracer(ctx); err != nil {
		a.logger.Warn("failed to flush traces", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// tokenStore connects to AWS Secrets Manager on demand.
func (a *app) tokenStore(ctx context.Context) (port.TokenStore, error) {
	tokens, err := secrets.NewSecretsManagerStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secrets Manager client: %w", err)
	}
	return tokens, nil
}

// runWithApp wires the app around a command body.
func runWithApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, opts)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))
		return fn(cmd, args, a)
	}
}
