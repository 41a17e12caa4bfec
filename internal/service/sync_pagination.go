package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/infra/resilience"
	"github.com/boddenberg/monosync/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// accountRef identifies the account being walked and its place in the
// priority order.
type accountRef struct {
	id    string
	index int
	total int
}

func (a accountRef) label() string {
	return domain.AccountLabel(a.id, a.index)
}

// progressSet accumulates every transaction fetched during one run, across
// all accounts, in first-seen order. A later copy of an id replaces the
// earlier one in place.
type progressSet struct {
	index map[string]int
	items []domain.Transaction
}

func newProgressSet() *progressSet {
	return &progressSet{index: make(map[string]int)}
}

func (p *progressSet) add(tx domain.Transaction) {
	if i, ok := p.index[tx.ID]; ok {
		p.items[i] = tx
		return
	}
	p.index[tx.ID] = len(p.items)
	p.items = append(p.items, tx)
}

func (p *progressSet) snapshot() []domain.Transaction {
	out := make([]domain.Transaction, len(p.items))
	copy(out, p.items)
	domain.SortByTimeDesc(out)
	return out
}

// statementWalker pages through the statement endpoint for one period at a
// time. It is single-use per sync run.
type statementWalker struct {
	api       port.MonobankAPI
	token     string
	runID     string
	scheduler *resilience.Scheduler
	status    port.StatusFunc
	progress  port.ProgressFunc
	pageLimit int
	maxIters  int
	logger    *zap.Logger

	seen *progressSet
}

func (w *statementWalker) emitStatus(level domain.StatusLevel, text string) {
	if w.status != nil {
		w.status(domain.StatusUpdate{Level: level, Text: text})
	}
}

// walkPeriod fetches [period.From, period.To] for account. A full page
// means there may be more: the next query starts at the time of the oldest
// item of that page, nudged by one second when it would not advance.
func (w *statementWalker) walkPeriod(ctx context.Context, account accountRef, period domain.Period) ([]domain.Transaction, error) {
	ctx, span := syncTracer.Start(ctx, "SyncEngine.walkPeriod")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", account.id),
		attribute.Int64("period.from", period.From),
		attribute.Int64("period.to", period.To),
	)

	if period.From > period.To {
		return nil, nil
	}

	w.emitStatus(domain.StatusInfo, fmt.Sprintf("Syncing account %s, period %s",
		account.label(), domain.FormatShortRange(period.From, period.To)))

	collected := newProgressSet()
	queryFrom := period.From

	for iteration := 1; queryFrom <= period.To; iteration++ {
		if iteration > w.maxIters {
			w.logger.Warn("pagination iteration limit reached",
				zap.String("run_id", w.runID),
				zap.String("account_id", account.id),
				zap.Int64("period_from", period.From),
				zap.Int64("period_to", period.To),
			)
			break
		}

		from := queryFrom
		upcoming := resilience.Range{Label: account.label(), From: from, To: period.To}
		items, err := resilience.CallRateLimited(ctx, w.scheduler, upcoming, w.status,
			func(ctx context.Context) ([]domain.StatementItem, error) {
				return w.api.FetchStatement(ctx, w.token, account.id, from, period.To)
			})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		w.scheduler.Complete(upcoming, len(items))

		for _, item := range items {
			tx := item.Normalize(account.id)
			collected.add(tx)
			w.seen.add(tx)
		}

		w.logger.Debug("statement page fetched",
			zap.String("run_id", w.runID),
			zap.String("account_id", account.id),
			zap.Int64("period_from", from),
			zap.Int64("period_to", period.To),
			zap.Int("fetched", len(items)),
		)

		if w.progress != nil {
			w.progress(domain.SyncProgress{
				RunID:                w.runID,
				FetchedCount:         len(collected.items),
				PeriodFrom:           period.From,
				PeriodTo:             period.To,
				AccountID:            account.id,
				AccountIndex:         account.index,
				AccountsTotal:        account.total,
				TransactionsSnapshot: w.seen.snapshot(),
			})
		}

		if len(items) < w.pageLimit {
			break
		}
		last := items[len(items)-1]
		if last.Time == nil {
			break
		}

		next := min(max(*last.Time, period.From), period.To)
		if next <= queryFrom {
			if queryFrom+1 > period.To {
				break
			}
			next = queryFrom + 1
		}
		queryFrom = next
	}

	return DedupeByID(collected.items), nil
}
