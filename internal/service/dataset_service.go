package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/monosync/internal/demo"
	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/storage"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var datasetTracer = otel.Tracer("service/dataset")

// DatasetService covers everything done to the local dataset outside a
// sync: loading, sample data, import/export, clearing and categories.
type DatasetService struct {
	repo   *storage.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewDatasetService creates a dataset service over repo.
func NewDatasetService(repo *storage.Repository, logger *zap.Logger) *DatasetService {
	return &DatasetService{repo: repo, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *DatasetService) WithClock(now func() time.Time) *DatasetService {
	s.now = now
	return s
}

// Load returns the stored dataset, migrating a legacy token first. When
// nothing is stored yet a demo dataset is written and returned.
func (s *DatasetService) Load(ctx context.Context) (domain.StoredData, error) {
	ctx, span := datasetTracer.Start(ctx, "DatasetService.Load")
	defer span.End()

	if _, err := s.repo.MigrateLegacyToken(ctx); err != nil {
		return domain.StoredData{}, err
	}

	d, ok, err := s.repo.Read(ctx)
	if err != nil {
		return domain.StoredData{}, err
	}
	if ok {
		return d, nil
	}

	s.logger.Info("no stored dataset, generating demo data")
	return s.LoadSampleData(ctx)
}

// LoadSampleData replaces the dataset with freshly generated demo data.
func (s *DatasetService) LoadSampleData(ctx context.Context) (domain.StoredData, error) {
	d := storage.NormalizeData(demo.StoredData(s.now()))
	if err := s.repo.Write(ctx, d); err != nil {
		return domain.StoredData{}, err
	}
	return d, nil
}

// Import replaces transactions and categories with data and marks the
// dataset as imported. The token, client info and account sources are
// kept; with a token present the next sync runs from scratch.
func (s *DatasetService) Import(ctx context.Context, data domain.AppData) (domain.StoredData, error) {
	ctx, span := datasetTracer.Start(ctx, "DatasetService.Import")
	defer span.End()

	now := s.now().UnixMilli()
	d, err := s.repo.Update(ctx, func(current domain.StoredData) domain.StoredData {
		hasToken := current.HasToken()

		next := domain.StoredData{
			Token:            current.Token,
			Transactions:     data.Transactions,
			Timestamp:        now,
			UseRealData:      hasToken,
			Categories:       data.Categories,
			ClientInfo:       current.ClientInfo,
			DataOrigin:       domain.OriginImported,
			AccountSourceMap: current.AccountSourceMap,
			Sync:             current.Sync,
		}
		next.Sync.Status = domain.SyncStatusIdle
		next.Sync.NeedsInitialSync = hasToken
		next.Sync.LastError = ""
		return next
	})
	if err != nil {
		return domain.StoredData{}, err
	}

	s.logger.Info("dataset imported",
		zap.Int("transactions", len(d.Transactions)),
		zap.Int("categories", len(d.Categories)),
	)
	return d, nil
}

// Export returns the user-owned part of the dataset.
func (s *DatasetService) Export(ctx context.Context) (domain.AppData, error) {
	d, _, err := s.repo.Read(ctx)
	if err != nil {
		return domain.AppData{}, err
	}
	return domain.AppData{Transactions: d.Transactions, Categories: d.Categories}, nil
}

// Clear removes everything stored locally.
func (s *DatasetService) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("local dataset cleared")
	return nil
}

// Transactions returns stored transactions, newest first, at most limit
// when limit is positive.
func (s *DatasetService) Transactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	d, _, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	txs := d.Transactions
	domain.SortByTimeDesc(txs)
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Accounts returns the cached accounts ordered by balance, highest first.
func (s *DatasetService) Accounts(ctx context.Context) ([]domain.Account, error) {
	d, _, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	accounts := d.ClientInfo.AccountsByBalanceDesc()
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}

// AssignCategory sets category key on every transaction in ids; an empty
// key removes the category. Categories no longer used by any transaction
// are dropped. It returns the number of transactions changed.
func (s *DatasetService) AssignCategory(ctx context.Context, ids []string, key, label string) (int, error) {
	ctx, span := datasetTracer.Start(ctx, "DatasetService.AssignCategory")
	defer span.End()

	key = strings.TrimSpace(key)
	if len(ids) == 0 {
		return 0, &domain.ErrValidation{Field: "ids", Message: "at least one transaction id is required"}
	}
	if label = strings.TrimSpace(label); label == "" {
		label = key
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	var (
		changed int
		missing error
	)
	_, err := s.repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		present := make(map[string]struct{}, len(d.Transactions))
		for _, tx := range d.Transactions {
			present[tx.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := present[id]; !ok {
				missing = &domain.ErrNotFound{Resource: "transaction", ID: id}
				return d
			}
		}

		for i := range d.Transactions {
			if _, ok := wanted[d.Transactions[i].ID]; !ok {
				continue
			}
			if d.Transactions[i].Category != key {
				d.Transactions[i].Category = key
				changed++
			}
		}

		if key != "" {
			if d.Categories == nil {
				d.Categories = map[string]string{}
			}
			d.Categories[key] = label
		}
		d.Categories = d.UsedCategories()
		d.Timestamp = s.now().UnixMilli()
		return d
	})
	if err != nil {
		return 0, err
	}
	if missing != nil {
		return 0, fmt.Errorf("assign category: %w", missing)
	}
	return changed, nil
}
