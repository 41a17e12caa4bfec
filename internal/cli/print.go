package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/boddenberg/monosync/internal/port"

	"github.com/shopspring/decimal"
)

var currencies = map[int]string{
	980: "UAH",
	840: "USD",
	978: "EUR",
	985: "PLN",
	826: "GBP",
}

// formatAmount renders minor units as a fixed two-decimal amount.
func formatAmount(minor int64, currencyCode int) string {
	amount := decimal.New(minor, -2).StringFixed(2)
	if code, ok := currencies[currencyCode]; ok {
		return amount + " " + code
	}
	return fmt.Sprintf("%s (%d)", amount, currencyCode)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6] + "..."
	}
	return id
}

// statusPrinter writes status lines as "HH:MM:SS [level] text".
func statusPrinter(w io.Writer, now func() time.Time) port.StatusFunc {
	var mu sync.Mutex
	return func(u domain.StatusUpdate) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s [%s] %s\n", now().Format("15:04:05"), u.Level, u.Text)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printOutcome(w io.Writer, outcome *domain.SyncOutcome) {
	if outcome.Skipped {
		fmt.Fprintf(w, "Sync skipped: %s\n", outcome.Reason)
		return
	}
	fmt.Fprintf(w, "Fetched %s, added %d, updated %d, total %d (%s data)\n",
		domain.FormatTransactionCount(outcome.Fetched),
		outcome.MergeStats.Added,
		outcome.MergeStats.Updated,
		outcome.Total,
		outcome.Origin,
	)
}

func printTransactions(w io.Writer, txs []domain.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tACCOUNT\tAMOUNT\tDESCRIPTION\tCATEGORY\tID")
	for _, t := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			time.Unix(t.Time, 0).Local().Format("2006-01-02 15:04"),
			shortID(t.AccountID),
			formatAmount(t.Amount, t.CurrencyCode),
			strings.TrimSpace(t.Description),
			t.Category,
			t.ID,
		)
	}
	return tw.Flush()
}

func printAccounts(w io.Writer, accounts []domain.Account) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTYPE\tBALANCE\tIBAN")
	for i, a := range accounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, shortID(a.ID), a.Type, formatAmount(a.Balance, a.CurrencyCode), a.IBAN)
	}
	return tw.Flush()
}
