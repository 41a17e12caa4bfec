package service_test

import (
	"testing"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/service"
)

const day = int64(86400)

func TestPlanPeriods_WindowCorrectness(t *testing.T) {
	now := epoch.Unix()
	maxPeriod := 31 * day

	for _, windowDays := range []int{1, 30, 31, 32, 62, 365, 400} {
		window := service.ResolveSyncWindow(windowDays, now)
		periods := service.PlanPeriods(now, window.From, maxPeriod)

		if len(periods) == 0 {
			t.Fatalf("W=%d: expected periods", windowDays)
		}
		if periods[0].To != now {
			t.Errorf("W=%d: first period must end at the anchor, got %d", windowDays, periods[0].To)
		}
		last := periods[len(periods)-1]
		if last.From != now-int64(windowDays)*day {
			t.Errorf("W=%d: last period must start at the horizon, got %d", windowDays, last.From)
		}
		for i, p := range periods {
			if p.From > p.To {
				t.Errorf("W=%d: period %d inverted: %+v", windowDays, i, p)
			}
			if p.To-p.From > maxPeriod {
				t.Errorf("W=%d: period %d wider than the API allows: %+v", windowDays, i, p)
			}
			if p.From < window.From {
				t.Errorf("W=%d: period %d reaches past the horizon: %+v", windowDays, i, p)
			}
			if i > 0 {
				if p.To >= periods[i-1].To {
					t.Errorf("W=%d: period ends must strictly decrease at %d", windowDays, i)
				}
				if p.To != periods[i-1].From-1 {
					t.Errorf("W=%d: periods %d and %d overlap or leave a gap", windowDays, i-1, i)
				}
			}
		}
	}
}

func TestPlanPeriods_CountIsMinimal(t *testing.T) {
	now := epoch.Unix()
	periods := service.PlanPeriods(now, now-365*day, 31*day)
	// 365 days in spans of 31 days (+1s for the inclusive bound each).
	if len(periods) != 12 {
		t.Errorf("expected 12 periods, got %d", len(periods))
	}
}

func TestPlanPeriods_AnchorAtOrBeforeLowerBound(t *testing.T) {
	if got := service.PlanPeriods(100, 100, 31*day); got != nil {
		t.Errorf("expected no periods at the bound, got %+v", got)
	}
	if got := service.PlanPeriods(50, 100, 31*day); got != nil {
		t.Errorf("expected no periods before the bound, got %+v", got)
	}
}

func TestResolveSyncWindow_DefaultsNonPositive(t *testing.T) {
	w := service.ResolveSyncWindow(0, 1000*day)
	if w.To != 1000*day || w.From != 1000*day-365*day {
		t.Errorf("unexpected default window %+v", w)
	}
}

func TestAccountAnchor(t *testing.T) {
	window := domain.SyncWindow{From: 1000, To: 5000}
	existing := []domain.Transaction{
		{ID: "a", AccountID: "acc-1", Time: 3000},
		{ID: "b", AccountID: "acc-1", Time: 2000},
		{ID: "c", AccountID: "acc-2", Time: 9000},
	}

	tests := []struct {
		name    string
		account string
		want    int64
	}{
		{"oldest cached transaction", "acc-1", 2000},
		{"uncached account uses window end", "acc-3", 5000},
		{"cached beyond now is capped", "acc-2", 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.AccountAnchor(existing, tt.account, window); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
