package domain

import (
	"fmt"
	"time"
)

// FormatRange renders an inclusive unix-seconds range as
// "[YYYY-MM-DD; YYYY-MM-DD]" in UTC.
func FormatRange(from, to int64) string {
	return fmt.Sprintf("[%s; %s]", isoDate(from), isoDate(to))
}

// FormatShortRange renders a range as "02 Jan-31 Jan".
func FormatShortRange(from, to int64) string {
	return fmt.Sprintf("%s-%s", time.Unix(from, 0).UTC().Format("02 Jan"), time.Unix(to, 0).UTC().Format("02 Jan"))
}

func isoDate(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("2006-01-02")
}

// FormatTransactionCount renders "1 transaction" or "N transactions".
func FormatTransactionCount(n int) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d transaction", n)
	}
	return fmt.Sprintf("%d transactions", n)
}

// AccountLabel is the short user-facing name of the account at index in the
// sync order: "#1 (abcdef...)".
func AccountLabel(accountID string, index int) string {
	prefix := accountID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return fmt.Sprintf("#%d (%s...)", index+1, prefix)
}
