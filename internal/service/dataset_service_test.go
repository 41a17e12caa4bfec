package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/monosync/internal/demo"
	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/store"
	"github.com/boddenberg/monosync/internal/service"
	"github.com/boddenberg/monosync/internal/storage"

	"go.uber.org/zap"
)

func newDataset(t *testing.T) (*service.DatasetService, *storage.Repository, *store.MemoryStore) {
	t.Helper()
	blobs := store.NewMemoryStore()
	repo := storage.NewRepository(blobs, "", zap.NewNop())
	return service.NewDatasetService(repo, zap.NewNop()), repo, blobs
}

func TestDataset_LoadGeneratesDemoWhenEmpty(t *testing.T) {
	svc, repo, _ := newDataset(t)
	svc.WithClock(func() time.Time { return epoch })

	d, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DataOrigin != domain.OriginDemo || len(d.Transactions) == 0 {
		t.Fatalf("expected demo dataset, got origin %s with %d transactions", d.DataOrigin, len(d.Transactions))
	}
	if d.Transactions[0].AccountID != demo.AccountID {
		t.Errorf("unexpected account %s", d.Transactions[0].AccountID)
	}

	_, ok, err := repo.Read(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected demo dataset to be persisted, ok=%v err=%v", ok, err)
	}
}

func TestDataset_LoadKeepsStoredData(t *testing.T) {
	svc, repo, _ := newDataset(t)
	if err := repo.Write(context.Background(), domain.StoredData{Token: "tok", DataOrigin: domain.OriginReal}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Token != "tok" || len(d.Transactions) != 0 {
		t.Errorf("stored dataset must be returned as is, got %+v", d)
	}
}

func TestDataset_LoadMigratesLegacyToken(t *testing.T) {
	svc, _, blobs := newDataset(t)
	if err := blobs.Put(context.Background(), storage.LegacyTokenKey, []byte("legacy")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Token != "legacy" || !d.Sync.NeedsInitialSync {
		t.Errorf("expected migrated token awaiting sync, got %+v", d)
	}
}

func TestDataset_ImportKeepsConnection(t *testing.T) {
	svc, repo, _ := newDataset(t)
	ctx := context.Background()
	if err := repo.Write(ctx, domain.StoredData{
		Token:            "tok",
		ClientInfo:       oneAccount("acc-1"),
		AccountSourceMap: domain.AccountSourceMap{"acc-1": {Source: domain.AccountSourceSettings, AddedAt: 1}},
		DataOrigin:       domain.OriginReal,
		Transactions:     []domain.Transaction{tx("gone", 5)},
		Sync:             domain.SyncState{Status: domain.SyncStatusError, WindowDays: 365, LastError: "boom", LastSuccessfulSyncAt: 7},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := svc.Import(ctx, domain.AppData{
		Transactions: []domain.Transaction{tx("imported", 10)},
		Categories:   map[string]string{"food": "Food"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.DataOrigin != domain.OriginImported || d.Token != "tok" || !d.UseRealData {
		t.Errorf("unexpected header %+v", d)
	}
	if d.ClientInfo == nil || len(d.AccountSourceMap) != 1 {
		t.Error("client info and account sources must survive an import")
	}
	if len(d.Transactions) != 1 || d.Transactions[0].ID != "imported" {
		t.Errorf("expected imported transactions only, got %v", ids(d.Transactions))
	}
	if d.Sync.Status != domain.SyncStatusIdle || !d.Sync.NeedsInitialSync || d.Sync.LastError != "" {
		t.Errorf("unexpected sync state %+v", d.Sync)
	}
	if d.Sync.LastSuccessfulSyncAt != 7 {
		t.Error("sync history must be kept")
	}
}

func TestDataset_ImportWithoutToken(t *testing.T) {
	svc, _, _ := newDataset(t)

	d, err := svc.Import(context.Background(), domain.AppData{Transactions: []domain.Transaction{tx("a", 1)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.UseRealData || d.Sync.NeedsInitialSync {
		t.Errorf("import without a token must not schedule a sync, got %+v", d.Sync)
	}
}

func TestDataset_AssignCategory(t *testing.T) {
	svc, repo, _ := newDataset(t)
	ctx := context.Background()
	a, b := tx("a", 1), tx("b", 2)
	b.Category = "old"
	if err := repo.Write(ctx, domain.StoredData{
		Transactions: []domain.Transaction{a, b},
		Categories:   map[string]string{"old": "Old", "unused": "Unused"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed, err := svc.AssignCategory(ctx, []string{"a", "b"}, "food", "Food")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 changes, got %d", changed)
	}

	d, _, _ := repo.Read(ctx)
	for _, got := range d.Transactions {
		if got.Category != "food" {
			t.Errorf("expected food on %s, got %q", got.ID, got.Category)
		}
	}
	if len(d.Categories) != 1 || d.Categories["food"] != "Food" {
		t.Errorf("expected unused categories dropped, got %v", d.Categories)
	}

	changed, err = svc.AssignCategory(ctx, []string{"a"}, "", "")
	if err != nil || changed != 1 {
		t.Fatalf("expected category removal, changed=%d err=%v", changed, err)
	}
}

func TestDataset_AssignCategoryUnknownID(t *testing.T) {
	svc, repo, _ := newDataset(t)
	ctx := context.Background()
	if err := repo.Write(ctx, domain.StoredData{Transactions: []domain.Transaction{tx("a", 1)}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := svc.AssignCategory(ctx, []string{"a", "missing"}, "food", "")

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) || notFound.ID != "missing" {
		t.Fatalf("expected not found for missing, got %v", err)
	}
	d, _, _ := repo.Read(ctx)
	if d.Transactions[0].Category != "" {
		t.Error("nothing must change when an id is unknown")
	}

	_, err = svc.AssignCategory(ctx, nil, "food", "")
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for empty ids, got %v", err)
	}
}

func TestDataset_ExportTransactionsAccountsClear(t *testing.T) {
	svc, repo, blobs := newDataset(t)
	ctx := context.Background()
	info := &domain.ClientInfo{Accounts: []domain.Account{{ID: "low", Balance: 1}, {ID: "high", Balance: 9}}}
	if err := repo.Write(ctx, domain.StoredData{
		Transactions: []domain.Transaction{tx("a", 1), tx("b", 3), tx("c", 2)},
		Categories:   map[string]string{"x": "X"},
		ClientInfo:   info,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	exported, err := svc.Export(ctx)
	if err != nil || len(exported.Transactions) != 3 || exported.Categories["x"] != "X" {
		t.Fatalf("unexpected export %+v err=%v", exported, err)
	}

	latest, err := svc.Transactions(ctx, 2)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if got := ids(latest); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("expected newest two, got %v", got)
	}

	accounts, err := svc.Accounts(ctx)
	if err != nil || len(accounts) != 2 || accounts[0].ID != "high" {
		t.Errorf("expected accounts by balance, got %+v err=%v", accounts, err)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := blobs.Get(ctx, storage.DefaultKey); ok {
		t.Error("expected dataset removed")
	}
}
