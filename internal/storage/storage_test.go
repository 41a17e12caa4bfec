package storage_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/store"
	"github.com/boddenberg/monosync/internal/storage"
)

const nowMillis = int64(1_700_000_000_000)

func TestNormalize_EmptyAndGarbage(t *testing.T) {
	for _, raw := range []string{``, `null`, `42`, `"text"`, `{not json`, `[]`} {
		d := storage.Normalize([]byte(raw), nowMillis)

		assert.Empty(t, d.Token, raw)
		assert.Empty(t, d.Transactions, raw)
		assert.NotNil(t, d.Categories, raw)
		assert.Equal(t, nowMillis, d.Timestamp, raw)
		assert.Equal(t, domain.OriginDemo, d.DataOrigin, raw)
		assert.Nil(t, d.ClientInfo, raw)
		assert.Equal(t, domain.DefaultSyncState(), d.Sync, raw)
	}
}

func TestNormalize_FieldByField(t *testing.T) {
	raw := `{
		"token": "tok",
		"timestamp": 123,
		"useRealData": 1,
		"dataOrigin": "bogus",
		"categories": {"food": "Food", "bad": 5},
		"clientInfo": {"clientId": "c1", "name": "N", "accounts": [{"id": "a1", "balance": 10}]},
		"accountSourceMap": {
			"a1": {"source": "settings", "addedAt": 99},
			"a2": {"source": "elsewhere", "addedAt": 1},
			"a3": {"source": "onboarding"},
			"a4": "nope"
		},
		"sync": {"status": "paused", "windowDays": 30, "needsInitialSync": "yes", "nextAllowedRequestAt": 5000, "lastError": "  "},
		"transactions": [
			{"id": 7, "time": 100, "mcc": 5411, "amount": -250},
			"not-an-object",
			{"id": "t2", "accountId": "a1", "time": 50, "mcc": 1, "originalMcc": 2, "amount": 3, "operationAmount": 4, "currencyCode": 840, "hold": 0, "category": "food"}
		]
	}`

	d := storage.Normalize([]byte(raw), nowMillis)

	assert.Equal(t, "tok", d.Token)
	assert.Equal(t, int64(123), d.Timestamp)
	assert.True(t, d.UseRealData)
	assert.Equal(t, domain.OriginReal, d.DataOrigin, "invalid origin falls back on useRealData")
	assert.Equal(t, map[string]string{"food": "Food"}, d.Categories)
	require.NotNil(t, d.ClientInfo)
	assert.Equal(t, "c1", d.ClientInfo.ClientID)
	assert.Equal(t, domain.AccountSourceMap{"a1": {Source: domain.AccountSourceSettings, AddedAt: 99}}, d.AccountSourceMap)

	assert.Equal(t, domain.SyncStatusIdle, d.Sync.Status)
	assert.Equal(t, domain.DefaultSyncWindowDays, d.Sync.WindowDays, "window below minimum is reset")
	assert.True(t, d.Sync.NeedsInitialSync)
	assert.Equal(t, int64(5000), d.Sync.NextAllowedRequestAt)
	assert.Empty(t, d.Sync.LastError)

	require.Len(t, d.Transactions, 2)
	legacy := d.Transactions[0]
	assert.Equal(t, "7", legacy.ID)
	assert.Equal(t, storage.LegacyAccountID, legacy.AccountID)
	assert.Equal(t, 5411, legacy.OriginalMCC)
	assert.Equal(t, int64(-250), legacy.OperationAmount)
	assert.Equal(t, domain.DefaultCurrencyCode, legacy.CurrencyCode)

	full := d.Transactions[1]
	assert.Equal(t, 2, full.OriginalMCC)
	assert.Equal(t, int64(4), full.OperationAmount)
	assert.Equal(t, 840, full.CurrencyCode)
	assert.False(t, full.Hold)
	assert.Equal(t, "food", full.Category)
}

func TestNormalize_KeepsLargeWindow(t *testing.T) {
	d := storage.Normalize([]byte(`{"sync":{"windowDays":730.9,"status":"syncing"}}`), nowMillis)
	assert.Equal(t, 730, d.Sync.WindowDays)
	assert.Equal(t, domain.SyncStatusSyncing, d.Sync.Status)
}

func newRepo(t *testing.T) (*storage.Repository, *store.MemoryStore) {
	t.Helper()
	blobs := store.NewMemoryStore()
	repo := storage.NewRepository(blobs, "", zap.NewNop()).
		WithClock(func() time.Time { return time.UnixMilli(nowMillis) })
	return repo, blobs
}

func TestRepository_ReadMissing(t *testing.T) {
	repo, _ := newRepo(t)

	d, ok, err := repo.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.OriginDemo, d.DataOrigin)
}

func TestRepository_UpdateRoundTrip(t *testing.T) {
	repo, blobs := newRepo(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, func(d domain.StoredData) domain.StoredData {
		d.Token = "tok"
		d.DataOrigin = domain.OriginReal
		d.Transactions = []domain.Transaction{{ID: "t1", AccountID: "a1", Time: 10, Amount: -5, OperationAmount: -5, CurrencyCode: 980}}
		d.Sync.NeedsInitialSync = true
		return d
	})
	require.NoError(t, err)

	raw, ok, err := blobs.Get(ctx, storage.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "real", generic["dataOrigin"])

	d, ok, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", d.Token)
	assert.True(t, d.Sync.NeedsInitialSync)
	require.Len(t, d.Transactions, 1)
	assert.Equal(t, "t1", d.Transactions[0].ID)
}

func TestRepository_MigrateLegacyToken(t *testing.T) {
	repo, blobs := newRepo(t)
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, storage.LegacyTokenKey, []byte("  legacy-token \n")))

	moved, err := repo.MigrateLegacyToken(ctx)
	require.NoError(t, err)
	assert.True(t, moved)

	d, _, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", d.Token)
	assert.Equal(t, domain.OriginReal, d.DataOrigin)
	assert.True(t, d.UseRealData)
	assert.True(t, d.Sync.NeedsInitialSync)

	_, ok, _ := blobs.Get(ctx, storage.LegacyTokenKey)
	assert.False(t, ok, "legacy key must be removed")

	moved, err = repo.MigrateLegacyToken(ctx)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestRepository_MigrateKeepsExistingTokenAndImportedOrigin(t *testing.T) {
	repo, blobs := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Write(ctx, domain.StoredData{Token: "current", DataOrigin: domain.OriginImported}))
	require.NoError(t, blobs.Put(ctx, storage.LegacyTokenKey, []byte("legacy")))

	_, err := repo.MigrateLegacyToken(ctx)
	require.NoError(t, err)

	d, _, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "current", d.Token)
	assert.Equal(t, domain.OriginImported, d.DataOrigin)
}

func TestRepository_Clear(t *testing.T) {
	repo, blobs := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Write(ctx, domain.StoredData{Token: "tok"}))
	require.NoError(t, blobs.Put(ctx, storage.OnboardingSeenKey, []byte("true")))

	require.NoError(t, repo.Clear(ctx))

	for _, key := range []string{storage.DefaultKey, storage.OnboardingSeenKey, storage.LegacyTokenKey} {
		_, ok, err := blobs.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
}

type failingStore struct{ store.MemoryStore }

func (*failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func TestRepository_ReadError(t *testing.T) {
	repo := storage.NewRepository(&failingStore{}, "", zap.NewNop())

	_, _, err := repo.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestExport_RoundTrip(t *testing.T) {
	data := domain.AppData{
		Transactions: []domain.Transaction{
			{ID: "a", AccountID: "acc", Time: 300, Amount: -1, OperationAmount: -1, CurrencyCode: 980, Category: "food"},
			{ID: "b", AccountID: "acc", Time: 100, Amount: 2, OperationAmount: 2, CurrencyCode: 980},
		},
		Categories: map[string]string{"food": "Food", "fun": "Fun"},
	}
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, storage.EncodeExport(&buf, data, now))

	var file storage.ExportFile
	require.NoError(t, json.Unmarshal(buf.Bytes(), &file))
	assert.Equal(t, "1.0", file.Version)
	assert.Equal(t, "2024-05-06T07:08:09.000Z", file.ExportDate)
	assert.Equal(t, 2, file.Metadata.TotalTransactions)
	assert.Equal(t, storage.DateRange{From: 100, To: 300}, file.Metadata.DateRange)
	assert.Equal(t, []string{"food", "fun"}, file.Metadata.Categories)

	decoded, err := storage.DecodeExport(&buf)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestExport_EmptyDateRange(t *testing.T) {
	file := storage.BuildExport(domain.AppData{}, time.Unix(0, 0))
	assert.Equal(t, storage.DateRange{}, file.Metadata.DateRange)
	assert.NotNil(t, file.Data.Transactions)
	assert.Equal(t, "monobank-export-2024-05-06.json", storage.ExportFileName(time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)))
}

func TestDecodeExport_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"not json", `{oops`, "file"},
		{"missing data", `{"version":"1.0"}`, "data"},
		{"transactions not array", `{"data":{"transactions":{"a":1}}}`, "transactions"},
		{"categories not object", `{"data":{"transactions":[],"categories":"food"}}`, "categories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.DecodeExport(strings.NewReader(tt.input))
			var validation *domain.ErrValidation
			require.True(t, errors.As(err, &validation), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, validation.Field)
		})
	}
}

func TestDecodeExport_DefaultsMissingCollections(t *testing.T) {
	decoded, err := storage.DecodeExport(strings.NewReader(`{"data":{}}`))
	require.NoError(t, err)
	assert.Empty(t, decoded.Transactions)
	assert.Empty(t, decoded.Categories)
}
