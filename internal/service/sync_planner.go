package service

import (
	"time"

	"github.com/boddenberg/monosync/internal/domain"
)

const secondsPerDay = int64(24 * time.Hour / time.Second)

// ResolveSyncWindow returns the horizon [now - windowDays, now] in unix
// seconds. A non-positive windowDays selects the default horizon.
func ResolveSyncWindow(windowDays int, now int64) domain.SyncWindow {
	if windowDays <= 0 {
		windowDays = domain.DefaultSyncWindowDays
	}
	return domain.SyncWindow{From: now - int64(windowDays)*secondsPerDay, To: now}
}

// AccountAnchor is where backward planning starts for an account: its
// oldest cached transaction, or the end of the window when nothing is
// cached. It never lies past the window end.
func AccountAnchor(existing []domain.Transaction, accountID string, window domain.SyncWindow) int64 {
	oldest, ok := domain.OldestTime(existing, accountID)
	if !ok || oldest > window.To {
		return window.To
	}
	return oldest
}

// PlanPeriods splits (lowerBound, anchor] into descending, non-overlapping
// periods no wider than maxPeriod seconds, most recent first. It returns
// nil when the anchor is already at or before the lower bound.
func PlanPeriods(anchor, lowerBound, maxPeriod int64) []domain.Period {
	if anchor <= lowerBound || maxPeriod <= 0 {
		return nil
	}

	var periods []domain.Period
	for to := anchor; to > lowerBound; {
		from := max(lowerBound, to-maxPeriod)
		periods = append(periods, domain.Period{From: from, To: to})
		to = from - 1
	}
	return periods
}
