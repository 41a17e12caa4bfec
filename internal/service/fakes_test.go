package service_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/resilience"
)

// 2024-06-15 12:00:00 UTC
var epoch = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type statementCall struct {
	accountID string
	from, to  int64
	at        time.Time
}

type fakeAPI struct {
	clock *resilience.ManualClock

	mu              sync.Mutex
	clientInfo      *domain.ClientInfo
	clientInfoErr   error
	clientInfoCalls int
	statement       func(n int, call statementCall) ([]domain.StatementItem, error)
	calls           []statementCall
}

func (f *fakeAPI) FetchClientInfo(_ context.Context, _ string) (*domain.ClientInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientInfoCalls++
	if f.clientInfoErr != nil {
		return nil, f.clientInfoErr
	}
	return f.clientInfo, nil
}

func (f *fakeAPI) FetchStatement(_ context.Context, _ string, accountID string, from, to int64) ([]domain.StatementItem, error) {
	f.mu.Lock()
	call := statementCall{accountID: accountID, from: from, to: to, at: f.clock.Now()}
	f.calls = append(f.calls, call)
	n := len(f.calls)
	handler := f.statement
	f.mu.Unlock()

	if handler == nil {
		return []domain.StatementItem{}, nil
	}
	return handler(n, call)
}

func (f *fakeAPI) statementCalls() []statementCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]statementCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func item(id string, t int64) domain.StatementItem {
	amount := int64(-100)
	return domain.StatementItem{ID: id, Time: &t, Amount: &amount}
}

type statusLog struct {
	mu      sync.Mutex
	updates []domain.StatusUpdate
}

func (l *statusLog) record(u domain.StatusUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *statusLog) contains(level domain.StatusLevel, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range l.updates {
		if u.Level == level && strings.Contains(u.Text, substr) {
			return true
		}
	}
	return false
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
