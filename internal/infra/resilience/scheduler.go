package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/port"
)

// Wait reasons reported to the wait observer.
const (
	WaitReasonInterval  = "interval"
	WaitReasonThrottled = "throttled"
)

// Range describes one remote request for status text.
type Range struct {
	Label string // account label, or the request name when From and To are zero
	From  int64
	To    int64
}

type completedRange struct {
	Range
	fetched int
}

// Scheduler is the single global gate in front of the bank API. Every call,
// whatever account or endpoint, waits for NextAllowedAt and pushes it
// forward by the minimum interval once it completes.
type Scheduler struct {
	clock    Clock
	interval time.Duration

	mu           sync.Mutex
	next         time.Time
	last         *completedRange
	onReschedule func(time.Time)
	onWait       func(reason string, waited time.Duration)

	waiting atomic.Bool
}

// NewScheduler creates a scheduler whose first request is allowed at next.
// A zero next means "immediately".
func NewScheduler(clock Clock, interval time.Duration, next time.Time) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock, interval: interval, next: next}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// Interval returns the minimum gap between requests.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// OnReschedule registers fn to be called with the new NextAllowedAt every
// time it moves.
func (s *Scheduler) OnReschedule(fn func(time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReschedule = fn
}

// OnWait registers fn to be called after every completed wait.
func (s *Scheduler) OnWait(fn func(reason string, waited time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWait = fn
}

// NextAllowedAt is the earliest time the next request may start.
func (s *Scheduler) NextAllowedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Waiting reports whether a caller is currently blocked in a wait.
func (s *Scheduler) Waiting() bool {
	return s.waiting.Load()
}

// Reschedule sets NextAllowedAt to now plus the interval. Called after every
// exchange with the API, successful or throttled.
func (s *Scheduler) Reschedule() {
	s.setNext(s.clock.Now().Add(s.interval), false)
}

// Defer moves NextAllowedAt to now plus the interval unless it is already
// later.
func (s *Scheduler) Defer() {
	s.setNext(s.clock.Now().Add(s.interval), true)
}

func (s *Scheduler) setNext(next time.Time, keepLater bool) {
	s.mu.Lock()
	if keepLater && s.next.After(next) {
		s.mu.Unlock()
		return
	}
	s.next = next
	hook := s.onReschedule
	s.mu.Unlock()

	if hook != nil {
		hook(next)
	}
}

// Complete records the last finished statement range; it is quoted in the
// countdown text of the next wait.
func (s *Scheduler) Complete(r Range, fetched int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &completedRange{Range: r, fetched: fetched}
}

func (s *Scheduler) remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.next.Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks until NextAllowedAt, emitting an info-level countdown about
// once per second.
func (s *Scheduler) Wait(ctx context.Context, upcoming Range, status port.StatusFunc) error {
	return s.countdown(ctx, WaitReasonInterval, status, func(seconds int) domain.StatusUpdate {
		return domain.StatusUpdate{Level: domain.StatusInfo, Text: s.waitText(upcoming, seconds)}
	})
}

// WaitThrottled blocks until NextAllowedAt after the API answered 429,
// emitting an error-level countdown.
func (s *Scheduler) WaitThrottled(ctx context.Context, status port.StatusFunc) error {
	return s.countdown(ctx, WaitReasonThrottled, status, func(seconds int) domain.StatusUpdate {
		return domain.StatusUpdate{
			Level: domain.StatusError,
			Text:  fmt.Sprintf("Sync error: too many requests, do not restart the sync. Retrying in %d seconds", seconds),
		}
	})
}

func (s *Scheduler) countdown(ctx context.Context, reason string, status port.StatusFunc, text func(int) domain.StatusUpdate) error {
	remaining := s.remaining()
	if remaining <= 0 {
		return ctx.Err()
	}

	s.waiting.Store(true)
	defer s.waiting.Store(false)

	started := s.clock.Now()
	for remaining > 0 {
		if status != nil {
			status(text(ceilSeconds(remaining)))
		}
		if err := s.clock.Sleep(ctx, min(time.Second, remaining)); err != nil {
			return err
		}
		remaining = s.remaining()
	}

	s.mu.Lock()
	observe := s.onWait
	s.mu.Unlock()
	if observe != nil {
		observe(reason, s.clock.Now().Sub(started))
	}
	return nil
}

func (s *Scheduler) waitText(upcoming Range, seconds int) string {
	target := domain.FormatRange(upcoming.From, upcoming.To)
	if upcoming.From == 0 && upcoming.To == 0 && upcoming.Label != "" {
		target = upcoming.Label
	}
	next := fmt.Sprintf("Next sync %s in %ds", target, seconds)

	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return next
	}
	return fmt.Sprintf("Last sync: account %s, %s - %s. %s",
		last.Label,
		domain.FormatRange(last.From, last.To),
		domain.FormatTransactionCount(last.fetched),
		next,
	)
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
