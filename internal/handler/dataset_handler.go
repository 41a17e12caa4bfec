package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/service"
	"github.com/boddenberg/monosync/internal/storage"

	"go.uber.org/zap"
)

// ============================================================
// Dataset Handlers
// ============================================================

const (
	defaultTransactionLimit = 100
	maxImportBytes          = 64 << 20
)

type datasetSummary struct {
	Origin       domain.DataOrigin `json:"origin"`
	Transactions int               `json:"transactions"`
	Categories   int               `json:"categories"`
	Sync         domain.SyncState  `json:"sync"`
}

func summarize(d domain.StoredData) datasetSummary {
	return datasetSummary{
		Origin:       d.DataOrigin,
		Transactions: len(d.Transactions),
		Categories:   len(d.Categories),
		Sync:         d.Sync,
	}
}

// listTransactionsHandler serves the live merged view while a sync runs and
// the stored set otherwise.
func listTransactionsHandler(syncSvc *service.SyncService, svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		limit := queryInt(r, "limit", defaultTransactionLimit)

		if live, ok := syncSvc.LiveTransactions(); ok {
			if limit > 0 && len(live) > limit {
				live = live[:limit]
			}
			writeJSON(w, http.StatusOK, map[string]any{"live": true, "transactions": live})
			return
		}

		txs, err := svc.Transactions(ctx, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"live": false, "transactions": txs})
	}
}

func listAccountsHandler(svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		accounts, err := svc.Accounts(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

type assignCategoryRequest struct {
	IDs      []string `json:"ids"`
	Category string   `json:"category"`
	Label    string   `json:"label"`
}

func assignCategoryHandler(svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/category")
		defer span.End()

		var req assignCategoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		changed, err := svc.AssignCategory(ctx, req.IDs, req.Category, req.Label)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
	}
}

func loadDemoHandler(svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dataset/demo")
		defer span.End()

		d, err := svc.LoadSampleData(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summarize(d))
	}
}

func importHandler(svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dataset/import")
		defer span.End()

		data, err := storage.DecodeExport(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		d, err := svc.Import(ctx, data)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summarize(d))
	}
}

func exportHandler(svc *service.DatasetService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dataset/export")
		defer span.End()

		data, err := svc.Export(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		now := time.Now()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ExportFileName(now)))
		w.WriteHeader(http.StatusOK)
		if err := storage.EncodeExport(w, data, now); err != nil {
			logger.Error("failed to write export", zap.Error(err))
		}
	}
}
