package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/observability"
	"github.com/boddenberg/monosync/internal/infra/resilience"
	"github.com/boddenberg/monosync/internal/port"
	"github.com/boddenberg/monosync/internal/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultMinRequestInterval is the gap the bank API enforces between any
// two requests made with the same token.
const DefaultMinRequestInterval = 60 * time.Second

const clientInfoCache = "client-info"

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	MinRequestInterval time.Duration
	// WindowDays overrides the persisted lookback window when positive.
	WindowDays int
}

// SyncOptions are per-call options. Joining callers of an in-flight sync
// share the options of the caller that started it.
type SyncOptions struct {
	Force  bool
	Source domain.AccountSource
}

// ConnectRequest connects (or, with an empty token, disconnects) a bank
// token.
type ConnectRequest struct {
	Token      string               `json:"token"`
	ClientInfo *domain.ClientInfo   `json:"clientInfo,omitempty"`
	Source     domain.AccountSource `json:"source"`
}

// SyncView is the sync state as shown to a user: the persisted state with
// the live cooldown label applied.
type SyncView struct {
	State        domain.SyncState  `json:"state"`
	Running      bool              `json:"running"`
	Connected    bool              `json:"connected"`
	Origin       domain.DataOrigin `json:"origin"`
	Transactions int               `json:"transactions"`
}

// SyncService orchestrates sync runs: gating, state persistence, client
// info lookup, the engine pass and the final merge. At most one run is
// active at a time; concurrent callers join it.
type SyncService struct {
	repo       *storage.Repository
	api        port.MonobankAPI
	engine     *SyncEngine
	clientInfo port.Cache[*domain.ClientInfo]
	events     *Broadcaster
	clock      resilience.Clock
	cfg        SyncConfig
	metrics    *observability.Metrics
	logger     *zap.Logger

	flight  singleflight.Group
	baseCtx context.Context

	mu        sync.RWMutex
	running   bool
	scheduler *resilience.Scheduler
	live      []domain.Transaction
}

// NewSyncService creates the orchestrator with all dependencies injected.
func NewSyncService(
	repo *storage.Repository,
	api port.MonobankAPI,
	engine *SyncEngine,
	clientInfo port.Cache[*domain.ClientInfo],
	events *Broadcaster,
	clock resilience.Clock,
	cfg SyncConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SyncService {
	if clock == nil {
		clock = resilience.SystemClock{}
	}
	if cfg.MinRequestInterval <= 0 {
		cfg.MinRequestInterval = DefaultMinRequestInterval
	}
	if events == nil {
		events = NewBroadcaster()
	}
	return &SyncService{
		repo:       repo,
		api:        api,
		engine:     engine,
		clientInfo: clientInfo,
		events:     events,
		clock:      clock,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		baseCtx:    context.Background(),
	}
}

// WithBaseContext sets the context background runs are bound to.
func (s *SyncService) WithBaseContext(ctx context.Context) *SyncService {
	s.baseCtx = ctx
	return s
}

// Events returns the broadcaster status and progress are published on.
func (s *SyncService) Events() *Broadcaster { return s.events }

// Sync runs a sync, or joins the one in flight.
func (s *SyncService) Sync(ctx context.Context, opts SyncOptions) (*domain.SyncOutcome, error) {
	v, err, shared := s.flight.Do("sync", func() (any, error) {
		return s.run(ctx, opts)
	})
	if shared {
		s.logger.Debug("joined in-flight sync")
	}
	if err != nil {
		return nil, err
	}
	return v.(*domain.SyncOutcome), nil
}

// SyncInBackground starts (or joins) a sync bound to the base context and
// returns immediately.
func (s *SyncService) SyncInBackground(opts SyncOptions) {
	go func() {
		if _, err := s.Sync(s.baseCtx, opts); err != nil {
			s.logger.Warn("background sync failed", zap.Error(err))
		}
	}()
}

// Resume is called on startup. A persisted "syncing" status means the last
// run never finished, so a fresh sync is forced.
func (s *SyncService) Resume(ctx context.Context, source domain.AccountSource) (*domain.SyncOutcome, error) {
	stored, _, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	force := stored.Sync.Status == domain.SyncStatusSyncing
	if force {
		s.logger.Info("resuming interrupted sync",
			zap.Int64("started_at", stored.Sync.LastSyncStartedAt),
		)
	}
	return s.Sync(ctx, SyncOptions{Force: force, Source: source})
}

// ConnectToken validates and stores a token, then forces a sync. An empty
// token disconnects the bank and keeps the cached transactions.
func (s *SyncService) ConnectToken(ctx context.Context, req ConnectRequest) (*domain.SyncOutcome, error) {
	ctx, span := syncTracer.Start(ctx, "SyncService.ConnectToken")
	defer span.End()

	source := req.Source
	if !source.Valid() {
		source = domain.AccountSourceSettings
	}
	token := strings.TrimSpace(req.Token)

	if token == "" {
		d, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
			d.Token = ""
			d.UseRealData = false
			d.ClientInfo = nil
			d.Timestamp = s.clock.Now().UnixMilli()
			d.Sync.Status = domain.SyncStatusIdle
			d.Sync.NeedsInitialSync = false
			d.Sync.LastError = ""
			return d
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("bank token disconnected")
		return &domain.SyncOutcome{Skipped: true, Reason: "token disconnected", Origin: d.DataOrigin, Total: len(d.Transactions), State: d.Sync}, nil
	}

	info := req.ClientInfo
	if info == nil {
		stored, _, err := s.repo.Read(ctx)
		if err != nil {
			return nil, err
		}
		scheduler := s.newScheduler(ctx, "connect", stored.Sync.NextAllowedRequestTime())
		info, err = s.lookupClientInfo(ctx, token, scheduler)
		if err != nil {
			span.RecordError(err)
			s.events.Status(domain.StatusUpdate{Level: domain.StatusError, Text: "Sync error: " + err.Error()})
			return nil, fmt.Errorf("connect token: %w", err)
		}
	} else if s.clientInfo != nil {
		s.clientInfo.Set(token, info)
	}

	now := s.clock.Now().UnixMilli()
	if _, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		d.Token = token
		d.UseRealData = true
		d.ClientInfo = info
		if d.DataOrigin != domain.OriginImported {
			d.DataOrigin = domain.OriginReal
		}
		d.AccountSourceMap = d.AccountSourceMap.WithAccounts(info.Accounts, source, now)
		d.Timestamp = now
		d.Sync.Status = domain.SyncStatusIdle
		d.Sync.NeedsInitialSync = true
		d.Sync.LastError = ""
		return d
	}); err != nil {
		return nil, err
	}

	s.logger.Info("bank token connected",
		zap.Int("accounts", len(info.Accounts)),
		zap.String("source", string(source)),
	)
	return s.Sync(ctx, SyncOptions{Force: true, Source: source})
}

// State returns the persisted sync state with the live cooldown label.
func (s *SyncService) State(ctx context.Context) (*SyncView, error) {
	stored, _, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	running, scheduler := s.running, s.scheduler
	s.mu.RUnlock()

	state := stored.Sync
	if running && scheduler != nil && scheduler.Waiting() {
		state.Status = domain.SyncStatusCooldown
	}
	return &SyncView{
		State:        state,
		Running:      running,
		Connected:    stored.HasToken(),
		Origin:       stored.DataOrigin,
		Transactions: len(stored.Transactions),
	}, nil
}

// Running reports whether a sync is in progress.
func (s *SyncService) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LiveTransactions returns the merged view of cached and already fetched
// transactions while a sync runs.
func (s *SyncService) LiveTransactions() ([]domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil, false
	}
	out := make([]domain.Transaction, len(s.live))
	copy(out, s.live)
	return out, true
}

// Metrics returns a snapshot of the sync counters.
func (s *SyncService) Metrics() *domain.SyncMetrics {
	return s.metrics.Snapshot()
}

func shouldSync(state domain.SyncState, force bool) bool {
	return force ||
		state.NeedsInitialSync ||
		state.LastSuccessfulSyncAt == 0 ||
		state.Status == domain.SyncStatusSyncing
}

func (s *SyncService) run(ctx context.Context, opts SyncOptions) (*domain.SyncOutcome, error) {
	runID := uuid.NewString()
	ctx, span := syncTracer.Start(ctx, "SyncService.Sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.run_id", runID),
		attribute.Bool("sync.force", opts.Force),
	)

	stored, _, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	if !stored.HasToken() {
		s.metrics.IncrSyncRun("skipped")
		return &domain.SyncOutcome{RunID: runID, Skipped: true, Reason: "no token connected", Origin: stored.DataOrigin, Total: len(stored.Transactions), State: stored.Sync}, nil
	}
	if !shouldSync(stored.Sync, opts.Force) {
		s.metrics.IncrSyncRun("skipped")
		return &domain.SyncOutcome{RunID: runID, Skipped: true, Reason: "already synced", Origin: stored.DataOrigin, Total: len(stored.Transactions), State: stored.Sync}, nil
	}

	source := opts.Source
	if !source.Valid() {
		source = domain.AccountSourceSettings
	}
	token := strings.TrimSpace(stored.Token)
	origin := stored.SyncOrigin()
	windowDays := stored.Sync.WindowDays
	if s.cfg.WindowDays > 0 {
		windowDays = s.cfg.WindowDays
	}
	startedAt := s.clock.Now().UnixMilli()

	if _, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		if d.DataOrigin != domain.OriginImported {
			d.DataOrigin = domain.OriginReal
		}
		d.Sync.Status = domain.SyncStatusSyncing
		d.Sync.NeedsInitialSync = false
		d.Sync.LastSyncStartedAt = startedAt
		d.Sync.LastError = ""
		return d
	}); err != nil {
		return nil, err
	}

	scheduler := s.newScheduler(ctx, runID, stored.Sync.NextAllowedRequestTime())
	s.begin(scheduler, stored.Transactions)
	defer s.end()

	s.logger.Info("sync started",
		zap.String("run_id", runID),
		zap.String("origin", string(origin)),
		zap.Bool("force", opts.Force),
		zap.Int("window_days", windowDays),
	)

	info := stored.ClientInfo
	if info == nil || info.Accounts == nil {
		info, err = s.lookupClientInfo(ctx, token, scheduler)
		if err != nil {
			return nil, s.fail(ctx, runID, startedAt, err)
		}
	}

	result, err := s.engine.Run(ctx, SyncRequest{
		RunID:      runID,
		Token:      token,
		ClientInfo: info,
		Existing:   stored.Transactions,
		Origin:     origin,
		WindowDays: windowDays,
		Scheduler:  scheduler,
		OnStatus:   s.events.Status,
		OnProgress: s.onProgress(origin),
	})
	if err != nil {
		return nil, s.fail(ctx, runID, startedAt, err)
	}

	finishedAt := s.clock.Now().UnixMilli()
	final, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		merged, _ := MergeByOrigin(d.Transactions, result.Transactions, origin)
		d.Token = token
		d.UseRealData = true
		d.ClientInfo = info
		d.Transactions = merged
		d.DataOrigin = origin
		d.AccountSourceMap = d.AccountSourceMap.WithAccounts(info.Accounts, source, finishedAt)
		d.Timestamp = finishedAt
		d.Sync.Status = domain.SyncStatusIdle
		d.Sync.NeedsInitialSync = false
		d.Sync.LastSyncStartedAt = startedAt
		d.Sync.LastSyncFinishedAt = finishedAt
		d.Sync.LastSuccessfulSyncAt = finishedAt
		if !result.NextAllowedRequestAt.IsZero() {
			d.Sync.NextAllowedRequestAt = result.NextAllowedRequestAt.UnixMilli()
		}
		d.Sync.LastError = ""
		return d
	})
	if err != nil {
		return nil, s.fail(ctx, runID, startedAt, err)
	}

	s.metrics.IncrSyncRun("success")
	s.metrics.RecordSyncTransactions(result.FetchedTransactions, result.MergeStats.Added)
	s.metrics.SetLastSuccessfulSync(time.UnixMilli(finishedAt))

	s.logger.Info("sync finished",
		zap.String("run_id", runID),
		zap.Int("fetched", result.FetchedTransactions),
		zap.Int("added", result.MergeStats.Added),
		zap.Int("total", len(final.Transactions)),
	)

	return &domain.SyncOutcome{
		RunID:      runID,
		Origin:     origin,
		Fetched:    result.FetchedTransactions,
		MergeStats: result.MergeStats,
		Total:      len(final.Transactions),
		State:      final.Sync,
	}, nil
}

// fail records a terminal error. A cancelled context is an interruption,
// not a failure: the "syncing" marker stays so the next start resumes.
func (s *SyncService) fail(ctx context.Context, runID string, startedAt int64, cause error) error {
	if ctx.Err() != nil {
		s.logger.Warn("sync interrupted", zap.String("run_id", runID), zap.Error(cause))
		return cause
	}

	s.metrics.IncrSyncRun("error")
	s.logger.Error("sync failed", zap.String("run_id", runID), zap.Error(cause))

	msg := cause.Error()
	if _, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		d.Sync.Status = domain.SyncStatusError
		d.Sync.NeedsInitialSync = true
		if d.Sync.LastSyncStartedAt == 0 {
			d.Sync.LastSyncStartedAt = startedAt
		}
		d.Sync.LastSyncFinishedAt = s.clock.Now().UnixMilli()
		d.Sync.LastError = msg
		return d
	}); err != nil {
		s.logger.Error("failed to persist sync error", zap.String("run_id", runID), zap.Error(err))
	}

	s.events.Status(domain.StatusUpdate{Level: domain.StatusError, Text: "Sync error: " + msg})
	return cause
}

// newScheduler builds a scheduler that persists every move of
// nextAllowedRequestAt, even when ctx is cancelled mid-run.
func (s *SyncService) newScheduler(ctx context.Context, runID string, next time.Time) *resilience.Scheduler {
	scheduler := resilience.NewScheduler(s.clock, s.cfg.MinRequestInterval, next)
	persistCtx := context.WithoutCancel(ctx)
	scheduler.OnReschedule(func(next time.Time) {
		if _, err := s.repo.Update(persistCtx, func(d domain.StoredData) domain.StoredData {
			d.Sync.NextAllowedRequestAt = next.UnixMilli()
			return d
		}); err != nil {
			s.logger.Warn("failed to persist next allowed request time",
				zap.String("run_id", runID),
				zap.Error(err),
			)
		}
	})
	scheduler.OnWait(func(reason string, waited time.Duration) {
		s.metrics.ObserveRateLimitWait(reason, waited)
		if reason == resilience.WaitReasonThrottled {
			s.logger.Warn("bank API throttled the sync",
				zap.String("run_id", runID),
				zap.Duration("wait", waited),
			)
		}
	})
	return scheduler
}

// lookupClientInfo returns cached client info for token or fetches it
// through the scheduler.
func (s *SyncService) lookupClientInfo(ctx context.Context, token string, scheduler *resilience.Scheduler) (*domain.ClientInfo, error) {
	if s.clientInfo != nil {
		if cached, ok := s.clientInfo.Get(token); ok {
			s.metrics.IncrCacheHit(clientInfoCache)
			return cached, nil
		}
	}
	s.metrics.IncrCacheMiss(clientInfoCache)

	s.events.Status(domain.StatusUpdate{Level: domain.StatusInfo, Text: "Bank sync: checking token..."})
	info, err := resilience.CallRateLimited(ctx, scheduler, resilience.Range{Label: "client info"}, s.events.Status,
		func(ctx context.Context) (*domain.ClientInfo, error) {
			return s.api.FetchClientInfo(ctx, token)
		})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("bank API returned empty client info")
	}
	scheduler.Defer()

	if s.clientInfo != nil {
		s.clientInfo.Set(token, info)
	}
	return info, nil
}

func (s *SyncService) onProgress(origin domain.DataOrigin) port.ProgressFunc {
	return func(p domain.SyncProgress) {
		s.mu.Lock()
		s.live, _ = MergeByOrigin(s.live, p.TransactionsSnapshot, origin)
		s.mu.Unlock()

		s.events.Progress(p)
		s.events.Status(domain.StatusUpdate{
			Level: domain.StatusInfo,
			Text: fmt.Sprintf("Received %s for period %s (account %d/%d)",
				domain.FormatTransactionCount(p.FetchedCount),
				domain.FormatShortRange(p.PeriodFrom, p.PeriodTo),
				p.AccountIndex+1, p.AccountsTotal),
		})
	}
}

func (s *SyncService) begin(scheduler *resilience.Scheduler, base []domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.scheduler = scheduler
	s.live = append([]domain.Transaction(nil), base...)
}

func (s *SyncService) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.scheduler = nil
	s.live = nil
}
