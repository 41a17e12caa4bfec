package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/observability"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("client")

const serviceName = "monobank"

// Endpoint labels used in metrics and spans.
const (
	EndpointClientInfo = "client-info"
	EndpointStatement  = "statement"
)

// MonobankClient talks to the personal Monobank API. It does not retry:
// throttling is handled by the caller's scheduler.
type MonobankClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
}

// NewMonobankClient creates a new MonobankClient.
func NewMonobankClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics) *MonobankClient {
	return &MonobankClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		metrics:    metrics,
	}
}

// FetchClientInfo returns the client and its accounts.
func (c *MonobankClient) FetchClientInfo(ctx context.Context, token string) (*domain.ClientInfo, error) {
	ctx, span := tracer.Start(ctx, "MonobankClient.FetchClientInfo")
	defer span.End()

	body, err := c.get(ctx, EndpointClientInfo, "/personal/client-info", token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var info domain.ClientInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: fmt.Errorf("decode client info: %w", err)}
	}
	span.SetAttributes(attribute.Int("accounts.count", len(info.Accounts)))
	return &info, nil
}

// FetchStatement returns at most one page of statement items for
// [from, to], newest first. A body that is not a JSON array counts as empty.
func (c *MonobankClient) FetchStatement(ctx context.Context, token, accountID string, from, to int64) ([]domain.StatementItem, error) {
	ctx, span := tracer.Start(ctx, "MonobankClient.FetchStatement")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.Int64("period.from", from),
		attribute.Int64("period.to", to),
	)

	path := fmt.Sprintf("/personal/statement/%s/%d/%d", url.PathEscape(accountID), from, to)
	body, err := c.get(ctx, EndpointStatement, path, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []domain.StatementItem{}, nil
	}

	var items []domain.StatementItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: fmt.Errorf("decode statement: %w", err)}
	}
	span.SetAttributes(attribute.Int("statement.items", len(items)))
	return items, nil
}

func (c *MonobankClient) get(ctx context.Context, endpoint, path, token string) ([]byte, error) {
	start := time.Now()

	result, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Token", token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return nil, domain.NewAPIError(resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})

	c.metrics.ObserveRemoteRequest(endpoint, requestOutcome(err), time.Since(start))

	if err != nil {
		var apiErr *domain.APIError
		switch {
		case errors.As(err, &apiErr):
			return nil, apiErr
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, &domain.ErrCircuitOpen{Service: serviceName}
		default:
			return nil, &domain.ErrExternalService{Service: serviceName, Err: err}
		}
	}
	return result.([]byte), nil
}

func requestOutcome(err error) string {
	var apiErr *domain.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		return "rate_limited"
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return "unauthorized"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "transport_error"
	}
}
