package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/resilience"
	"github.com/boddenberg/monosync/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var syncTracer = otel.Tracer("service/sync")

// Statement API limits.
const (
	DefaultPageLimit     = 500
	DefaultMaxPeriodDays = 31
	DefaultMaxIterations = 2000
)

// EngineConfig bounds a sync pass.
type EngineConfig struct {
	PageLimit     int
	MaxPeriodDays int
	MaxIterations int
}

// DefaultEngineConfig returns the limits of the statement API.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PageLimit:     DefaultPageLimit,
		MaxPeriodDays: DefaultMaxPeriodDays,
		MaxIterations: DefaultMaxIterations,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.PageLimit <= 0 {
		c.PageLimit = d.PageLimit
	}
	if c.MaxPeriodDays <= 0 {
		c.MaxPeriodDays = d.MaxPeriodDays
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	return c
}

// SyncRequest is the input of one engine pass.
type SyncRequest struct {
	RunID      string
	Token      string
	ClientInfo *domain.ClientInfo
	Existing   []domain.Transaction
	Origin     domain.DataOrigin
	WindowDays int
	Scheduler  *resilience.Scheduler
	OnStatus   port.StatusFunc
	OnProgress port.ProgressFunc
}

// SyncEngine walks every account backward from its oldest cached
// transaction to the window horizon and merges the result once at the end.
type SyncEngine struct {
	api    port.MonobankAPI
	cfg    EngineConfig
	logger *zap.Logger
}

// NewSyncEngine creates an engine over api.
func NewSyncEngine(api port.MonobankAPI, cfg EngineConfig, logger *zap.Logger) *SyncEngine {
	return &SyncEngine{api: api, cfg: cfg.withDefaults(), logger: logger}
}

// Run performs one pass. Accounts are visited by balance, highest first,
// one at a time; periods most recent first. Any error other than throttling
// aborts the pass.
func (e *SyncEngine) Run(ctx context.Context, req SyncRequest) (*domain.SyncResult, error) {
	ctx, span := syncTracer.Start(ctx, "SyncEngine.Run")
	defer span.End()
	span.SetAttributes(attribute.String("sync.run_id", req.RunID))

	if req.Scheduler == nil {
		return nil, fmt.Errorf("sync engine: scheduler is required")
	}
	status := func(level domain.StatusLevel, text string) {
		if req.OnStatus != nil {
			req.OnStatus(domain.StatusUpdate{Level: level, Text: text})
		}
	}

	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = domain.DefaultSyncWindowDays
	}
	now := req.Scheduler.Clock().Now().Unix()
	window := ResolveSyncWindow(windowDays, now)
	maxPeriod := int64(e.cfg.MaxPeriodDays) * secondsPerDay

	status(domain.StatusInfo, fmt.Sprintf("Starting transaction sync for the last %d days...", windowDays))

	walker := &statementWalker{
		api:       e.api,
		token:     req.Token,
		runID:     req.RunID,
		scheduler: req.Scheduler,
		status:    req.OnStatus,
		progress:  req.OnProgress,
		pageLimit: e.cfg.PageLimit,
		maxIters:  e.cfg.MaxIterations,
		logger:    e.logger,
		seen:      newProgressSet(),
	}

	accounts := req.ClientInfo.AccountsByBalanceDesc()
	var fetched []domain.Transaction

	for i, account := range accounts {
		ref := accountRef{id: account.ID, index: i, total: len(accounts)}
		anchor := AccountAnchor(req.Existing, account.ID, window)
		periods := PlanPeriods(anchor, window.From, maxPeriod)
		if len(periods) == 0 {
			e.logger.Debug("account already covered",
				zap.String("run_id", req.RunID),
				zap.String("account_id", account.ID),
			)
			continue
		}

		for _, period := range periods {
			txs, err := walker.walkPeriod(ctx, ref, period)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			fetched = append(fetched, txs...)
		}
	}

	merged, stats := MergeByOrigin(req.Existing, fetched, req.Origin)
	status(domain.StatusSuccess, fmt.Sprintf("Sync finished: added %d, updated %d, total %d",
		stats.Added, stats.Updated, len(merged)))

	e.logger.Info("sync pass finished",
		zap.String("run_id", req.RunID),
		zap.Int("accounts", len(accounts)),
		zap.Int("fetched", len(fetched)),
		zap.Int("added", stats.Added),
		zap.Time("next_allowed_at", req.Scheduler.NextAllowedAt()),
	)

	return &domain.SyncResult{
		Transactions:         merged,
		FetchedTransactions:  len(fetched),
		MergeStats:           stats,
		SyncWindow:           window,
		NextAllowedRequestAt: req.Scheduler.NextAllowedAt(),
	}, nil
}
