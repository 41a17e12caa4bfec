package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/port"

	"go.uber.org/zap"
)

const (
	// DefaultKey is the blob key of the dataset.
	DefaultKey = "monobankData"
	// LegacyTokenKey held the token before it moved into the dataset.
	LegacyTokenKey = "onboarding-token"
	// OnboardingSeenKey marks that the onboarding flow was shown.
	OnboardingSeenKey = "hasSeenOnboarding"
)

// Repository reads and writes the single dataset blob. Update is a
// read-modify-write under a process-wide lock.
type Repository struct {
	store  port.BlobStore
	key    string
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

// NewRepository creates a repository over store. An empty key selects
// DefaultKey.
func NewRepository(store port.BlobStore, key string, logger *zap.Logger) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{store: store, key: key, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for default timestamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Read returns the normalized dataset and whether one was stored.
func (r *Repository) Read(ctx context.Context) (domain.StoredData, bool, error) {
	raw, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return domain.StoredData{}, false, fmt.Errorf("failed to read dataset: %w", err)
	}
	if !ok || len(strings.TrimSpace(string(raw))) == 0 {
		return NormalizeValue(nil, r.now().UnixMilli()), false, nil
	}
	return Normalize(raw, r.now().UnixMilli()), true, nil
}

// Write normalizes and stores d, replacing whatever was there.
func (r *Repository) Write(ctx context.Context, d domain.StoredData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(ctx, d)
}

func (r *Repository) write(ctx context.Context, d domain.StoredData) error {
	raw, err := json.Marshal(NormalizeData(d))
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := r.store.Put(ctx, r.key, raw); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return nil
}

// Update applies fn to the current dataset (defaults when nothing is
// stored) and writes the result.
func (r *Repository) Update(ctx context.Context, fn func(domain.StoredData) domain.StoredData) (domain.StoredData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, _, err := r.Read(ctx)
	if err != nil {
		return domain.StoredData{}, err
	}
	next := NormalizeData(fn(current))
	if err := r.write(ctx, next); err != nil {
		return domain.StoredData{}, err
	}
	return next, nil
}

// Clear removes the dataset and the onboarding keys.
func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range []string{r.key, OnboardingSeenKey, LegacyTokenKey} {
		if err := r.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	return nil
}

// MigrateLegacyToken moves a token stored under LegacyTokenKey into the
// dataset and schedules an initial sync. It reports whether a token moved.
func (r *Repository) MigrateLegacyToken(ctx context.Context) (bool, error) {
	raw, ok, err := r.store.Get(ctx, LegacyTokenKey)
	if err != nil {
		return false, fmt.Errorf("failed to read legacy token: %w", err)
	}
	legacy := strings.TrimSpace(string(raw))
	if !ok || legacy == "" {
		return false, nil
	}

	_, err = r.Update(ctx, func(current domain.StoredData) domain.StoredData {
		if current.DataOrigin != domain.OriginImported {
			current.DataOrigin = domain.OriginReal
		}
		if current.Token == "" {
			current.Token = legacy
		}
		current.UseRealData = true
		current.Timestamp = r.now().UnixMilli()
		current.Sync.Status = domain.SyncStatusIdle
		current.Sync.NeedsInitialSync = true
		current.Sync.LastError = ""
		return current
	})
	if err != nil {
		return false, err
	}

	if err := r.store.Delete(ctx, LegacyTokenKey); err != nil {
		return true, fmt.Errorf("failed to remove legacy token: %w", err)
	}
	r.logger.Info("migrated legacy token into dataset")
	return true, nil
}
