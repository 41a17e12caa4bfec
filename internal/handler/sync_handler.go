package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Sync Handlers
// ============================================================

const (
	sseBuffer    = 256
	sseKeepAlive = 15 * time.Second
)

func syncStateHandler(svc *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/sync/state")
		defer span.End()

		view, err := svc.State(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// triggerSyncHandler starts or joins the single sync run. Without wait=true
// the run continues in the background and 202 is returned.
func triggerSyncHandler(svc *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sync")
		defer span.End()

		opts := service.SyncOptions{
			Force:  queryBool(r, "force"),
			Source: domain.AccountSource(r.URL.Query().Get("source")),
		}
		wait := queryBool(r, "wait")
		span.SetAttributes(attribute.Bool("sync.force", opts.Force), attribute.Bool("sync.wait", wait))

		if !wait {
			svc.SyncInBackground(opts)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
			return
		}

		// A disconnecting client must not interrupt the run it joined.
		outcome, err := svc.Sync(context.WithoutCancel(ctx), opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func syncMetricsHandler(svc *service.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Metrics())
	}
}

func connectTokenHandler(svc *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/token")
		defer span.End()

		var req service.ConnectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		outcome, err := svc.ConnectToken(context.WithoutCancel(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

// ============================================================
// Server-Sent Events
// ============================================================

type statusEvent struct {
	Time  time.Time          `json:"time"`
	Level domain.StatusLevel `json:"level"`
	Text  string             `json:"text"`
}

// progressEvent omits the transaction snapshot; the live view is served by
// GET /v1/transactions.
type progressEvent struct {
	Time          time.Time `json:"time"`
	RunID         string    `json:"runId"`
	FetchedCount  int       `json:"fetchedCount"`
	PeriodFrom    int64     `json:"periodFrom"`
	PeriodTo      int64     `json:"periodTo"`
	AccountID     string    `json:"accountId"`
	AccountIndex  int       `json:"accountIndex"`
	AccountsTotal int       `json:"accountsTotal"`
	SnapshotSize  int       `json:"snapshotSize"`
}

type sseEvent struct {
	name string
	data any
}

// syncEventsHandler streams status lines and progress events as separate
// SSE event types. Slow clients drop events rather than stall the sync.
func syncEventsHandler(svc *service.SyncService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		events := make(chan sseEvent, sseBuffer)
		push := func(e sseEvent) {
			select {
			case events <- e:
			default:
			}
		}

		unsubscribeStatus := svc.Events().SubscribeStatus(func(u domain.StatusUpdate) {
			push(sseEvent{name: "status", data: statusEvent{Time: time.Now().UTC(), Level: u.Level, Text: u.Text}})
		})
		defer unsubscribeStatus()
		unsubscribeProgress := svc.Events().SubscribeProgress(func(p domain.SyncProgress) {
			push(sseEvent{name: "progress", data: progressEvent{
				Time:          time.Now().UTC(),
				RunID:         p.RunID,
				FetchedCount:  p.FetchedCount,
				PeriodFrom:    p.PeriodFrom,
				PeriodTo:      p.PeriodTo,
				AccountID:     p.AccountID,
				AccountIndex:  p.AccountIndex,
				AccountsTotal: p.AccountsTotal,
				SnapshotSize:  len(p.TransactionsSnapshot),
			}})
		})
		defer unsubscribeProgress()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case e := <-events:
				payload, err := json.Marshal(e.data)
				if err != nil {
					logger.Error("failed to encode event", zap.String("event", e.name), zap.Error(err))
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
