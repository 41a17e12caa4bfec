package service

import (
	"github.com/boddenberg/monosync/internal/domain"
)

// DedupeByID collapses transactions sharing an id, keeping the one with the
// greatest time. First-seen position is kept.
func DedupeByID(txs []domain.Transaction) []domain.Transaction {
	index := make(map[string]int, len(txs))
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if i, ok := index[tx.ID]; ok {
			if tx.Time >= out[i].Time {
				out[i] = tx
			}
			continue
		}
		index[tx.ID] = len(out)
		out = append(out, tx)
	}
	return out
}

// MergeByOrigin folds fetched into existing under the policy of origin and
// returns a new slice sorted newest first.
//
// Demo data is replaced wholesale by a non-empty fetch. Real and imported
// data only gain ids they do not have yet; a cached record is never
// overwritten, so user edits such as categories survive.
func MergeByOrigin(existing, fetched []domain.Transaction, origin domain.DataOrigin) ([]domain.Transaction, domain.MergeStats) {
	incoming := DedupeByID(fetched)

	var (
		merged []domain.Transaction
		stats  domain.MergeStats
	)
	switch origin {
	case domain.OriginDemo:
		if len(incoming) == 0 {
			merged = append([]domain.Transaction(nil), existing...)
			break
		}
		merged = incoming
		stats.Added = len(incoming)

	case domain.OriginReal, domain.OriginImported:
		seen := make(map[string]struct{}, len(existing)+len(incoming))
		merged = make([]domain.Transaction, 0, len(existing)+len(incoming))
		for _, tx := range existing {
			seen[tx.ID] = struct{}{}
			merged = append(merged, tx)
		}
		for _, tx := range incoming {
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			merged = append(merged, tx)
			stats.Added++
		}

	default:
		merged = append([]domain.Transaction(nil), existing...)
	}

	if merged == nil {
		merged = []domain.Transaction{}
	}
	domain.SortByTimeDesc(merged)
	return merged, stats
}
