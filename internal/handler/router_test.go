package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/handler"
	"github.com/boddenberg/monosync/internal/infra/cache"
	"github.com/boddenberg/monosync/internal/infra/observability"
	"github.com/boddenberg/monosync/internal/infra/resilience"
	"github.com/boddenberg/monosync/internal/infra/store"
	"github.com/boddenberg/monosync/internal/service"
	"github.com/boddenberg/monosync/internal/storage"

	"go.uber.org/zap"
)

// --- Mocks ---

type stubAPI struct {
	clientInfo    *domain.ClientInfo
	clientInfoErr error
}

func (s *stubAPI) FetchClientInfo(_ context.Context, _ string) (*domain.ClientInfo, error) {
	return s.clientInfo, s.clientInfoErr
}

func (s *stubAPI) FetchStatement(_ context.Context, _, _ string, _, _ int64) ([]domain.StatementItem, error) {
	return []domain.StatementItem{}, nil
}

type bridge struct {
	api     *stubAPI
	repo    *storage.Repository
	router  http.Handler
	metrics *observability.Metrics
}

func newBridge(t *testing.T) *bridge {
	t.Helper()
	clock := resilience.NewManualClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	api := &stubAPI{}
	repo := storage.NewRepository(store.NewMemoryStore(), "", zap.NewNop()).WithClock(clock.Now)
	metrics := observability.NewMetrics()

	syncSvc := service.NewSyncService(
		repo,
		api,
		service.NewSyncEngine(api, service.EngineConfig{}, zap.NewNop()),
		cache.New[*domain.ClientInfo](time.Hour, cache.WithNow(clock.Now), cache.WithoutJanitor()),
		service.NewBroadcaster(),
		clock,
		service.SyncConfig{WindowDays: 1},
		metrics,
		zap.NewNop(),
	)
	datasetSvc := service.NewDatasetService(repo, zap.NewNop()).WithClock(clock.Now)

	return &bridge{
		api:     api,
		repo:    repo,
		router:  handler.NewRouter(syncSvc, datasetSvc, nil, metrics, zap.NewNop()),
		metrics: metrics,
	}
}

func (b *bridge) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	return rec
}

func (b *bridge) seed(t *testing.T, d domain.StoredData) {
	t.Helper()
	if err := b.repo.Write(context.Background(), d); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func tx(id string, t int64) domain.Transaction {
	return domain.Transaction{ID: id, Time: t, Amount: -100, Description: id}
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	ready := func(context.Context) error { return errors.New("database is locked") }
	router := handler.NewRouter(nil, nil, ready, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.IncrSyncRun("success")
	router := handler.NewRouter(nil, nil, nil, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sync_runs_total") {
		t.Errorf("expected sync counters in exposition, got %s", rec.Body.String())
	}
}

// --- Sync ---

func TestSyncState(t *testing.T) {
	b := newBridge(t)
	b.seed(t, domain.StoredData{
		DataOrigin:   domain.OriginDemo,
		Transactions: []domain.Transaction{tx("a", 1)},
		Sync:         domain.SyncState{Status: domain.SyncStatusIdle, WindowDays: 365},
	})

	rec := b.do(http.MethodGet, "/v1/sync/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view service.SyncView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Connected || view.Running || view.Transactions != 1 || view.Origin != domain.OriginDemo {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestTriggerSync_WaitWithoutToken(t *testing.T) {
	b := newBridge(t)
	b.seed(t, domain.StoredData{Sync: domain.SyncState{NeedsInitialSync: true, WindowDays: 365}})

	rec := b.do(http.MethodPost, "/v1/sync/?wait=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome domain.SyncOutcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !outcome.Skipped || outcome.Reason != "no token connected" {
		t.Errorf("expected skipped run, got %+v", outcome)
	}
}

func TestTriggerSync_Background(t *testing.T) {
	b := newBridge(t)

	rec := b.do(http.MethodPost, "/v1/sync/", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestSyncMetricsSnapshot(t *testing.T) {
	b := newBridge(t)
	b.metrics.IncrCacheHit("client-info")

	rec := b.do(http.MethodGet, "/v1/sync/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snapshot domain.SyncMetrics
	if err := json.NewDecoder(rec.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestConnectToken(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		apiErr   error
		expected int
	}{
		{name: "malformed body", body: "{", expected: http.StatusBadRequest},
		{name: "rejected token", body: `{"token":"bad"}`, apiErr: domain.NewAPIError(http.StatusUnauthorized), expected: http.StatusUnauthorized},
		{name: "bank unavailable", body: `{"token":"tok"}`, apiErr: domain.NewAPIError(http.StatusInternalServerError), expected: http.StatusBadGateway},
		{name: "disconnect", body: `{"token":""}`, expected: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBridge(t)
			b.api.clientInfoErr = tt.apiErr

			rec := b.do(http.MethodPost, "/v1/token", []byte(tt.body))
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
		})
	}
}

// --- Dataset ---

func TestListTransactions(t *testing.T) {
	b := newBridge(t)
	b.seed(t, domain.StoredData{Transactions: []domain.Transaction{tx("old", 1), tx("new", 3), tx("mid", 2)}})

	rec := b.do(http.MethodGet, "/v1/transactions?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Live         bool                 `json:"live"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Live {
		t.Error("no sync is running, expected stored view")
	}
	if len(body.Transactions) != 2 || body.Transactions[0].ID != "new" || body.Transactions[1].ID != "mid" {
		t.Errorf("expected newest two, got %+v", body.Transactions)
	}
}

func TestListAccounts(t *testing.T) {
	b := newBridge(t)
	b.seed(t, domain.StoredData{ClientInfo: &domain.ClientInfo{Accounts: []domain.Account{
		{ID: "low", Balance: 100},
		{ID: "high", Balance: 900},
	}}})

	rec := b.do(http.MethodGet, "/v1/accounts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var accounts []domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&accounts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "high" {
		t.Errorf("expected accounts by balance, got %+v", accounts)
	}
}

func TestAssignCategory(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "assigned", body: `{"ids":["a"],"category":"food","label":"Food"}`, expected: http.StatusOK},
		{name: "unknown id", body: `{"ids":["missing"],"category":"food"}`, expected: http.StatusNotFound},
		{name: "no ids", body: `{"ids":[],"category":"food"}`, expected: http.StatusBadRequest},
		{name: "malformed body", body: `[`, expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBridge(t)
			b.seed(t, domain.StoredData{Transactions: []domain.Transaction{tx("a", 1)}})

			rec := b.do(http.MethodPost, "/v1/transactions/category", []byte(tt.body))
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLoadDemo(t *testing.T) {
	b := newBridge(t)

	rec := b.do(http.MethodPost, "/v1/dataset/demo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	d, ok, err := b.repo.Read(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected stored dataset, ok=%v err=%v", ok, err)
	}
	if d.DataOrigin != domain.OriginDemo || len(d.Transactions) == 0 {
		t.Errorf("expected demo dataset, got %s with %d transactions", d.DataOrigin, len(d.Transactions))
	}
}

func TestExportThenImport(t *testing.T) {
	source := newBridge(t)
	source.seed(t, domain.StoredData{
		Transactions: []domain.Transaction{tx("a", 1), tx("b", 2)},
		Categories:   map[string]string{"food": "Food"},
	})

	exported := source.do(http.MethodGet, "/v1/dataset/export", nil)
	if exported.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", exported.Code)
	}
	if cd := exported.Header().Get("Content-Disposition"); !strings.Contains(cd, "monobank-export-") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}

	target := newBridge(t)
	imported := target.do(http.MethodPost, "/v1/dataset/import", exported.Body.Bytes())
	if imported.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", imported.Code, imported.Body.String())
	}

	d, _, err := target.repo.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.DataOrigin != domain.OriginImported || len(d.Transactions) != 2 || d.Categories["food"] != "Food" {
		t.Errorf("unexpected imported dataset %+v", d)
	}
}

func TestImport_InvalidFile(t *testing.T) {
	b := newBridge(t)

	rec := b.do(http.MethodPost, "/v1/dataset/import", []byte(`{"version":"1.0"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
