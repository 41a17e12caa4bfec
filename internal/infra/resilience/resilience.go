// Package resilience provides the fault-tolerance patterns used in front of
// the bank API: a global request scheduler, retry on throttling, and a
// circuit breaker.
package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/port"

	"github.com/sony/gobreaker"
)

// CallRateLimited runs fn behind the scheduler. A rate-limited answer is
// never returned: the scheduler is pushed forward, an error-level countdown
// is shown, and fn is retried with no attempt limit. Any other error is
// returned as is. The caller is expected to record the completed range.
func CallRateLimited[T any](ctx context.Context, s *Scheduler, upcoming Range, status port.StatusFunc, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for {
		if err := s.Wait(ctx, upcoming, status); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			s.Reschedule()
			return result, nil
		}
		if !domain.IsRateLimited(err) {
			return zero, err
		}

		s.Reschedule()
		if err := s.WaitThrottled(ctx, status); err != nil {
			return zero, err
		}
	}
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
// Client errors (4xx, including 401 and 429) are answers, not outages, and
// never count as failures.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *domain.APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return errors.Is(err, context.Canceled)
		},
	})
}
