package domain

import (
	"fmt"
	"sort"
	"time"
)

// DefaultCurrencyCode is the ISO 4217 numeric code for UAH.
const DefaultCurrencyCode = 980

// ============================================================
// Transactions
// ============================================================

// Transaction is a single normalized statement record as kept in the local
// dataset. Amounts are signed minor units: positive is income, negative is
// expense. Time is Unix seconds.
type Transaction struct {
	ID              string `json:"id"`
	AccountID       string `json:"accountId"`
	Time            int64  `json:"time"`
	Description     string `json:"description"`
	MCC             int    `json:"mcc"`
	OriginalMCC     int    `json:"originalMcc"`
	Hold            bool   `json:"hold"`
	Amount          int64  `json:"amount"`
	OperationAmount int64  `json:"operationAmount"`
	CurrencyCode    int    `json:"currencyCode"`
	CommissionRate  int64  `json:"commissionRate"`
	CashbackAmount  int64  `json:"cashbackAmount"`
	Balance         int64  `json:"balance"`
	Comment         string `json:"comment"`
	ReceiptID       string `json:"receiptId"`
	InvoiceID       string `json:"invoiceId"`
	CounterEdrpou   string `json:"counterEdrpou"`
	CounterIban     string `json:"counterIban"`
	Category        string `json:"category,omitempty"`
}

// OccurredAt returns the transaction time as a time.Time.
func (t Transaction) OccurredAt() time.Time {
	return time.Unix(t.Time, 0)
}

// IsIncome reports whether the transaction credits the account.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// StatementItem is a transaction exactly as the statement endpoint returns it.
// Every field except time may be missing, hence the pointers.
type StatementItem struct {
	ID              string  `json:"id"`
	Time            *int64  `json:"time"`
	Description     *string `json:"description,omitempty"`
	MCC             *int    `json:"mcc,omitempty"`
	OriginalMCC     *int    `json:"originalMcc,omitempty"`
	Hold            *bool   `json:"hold,omitempty"`
	Amount          *int64  `json:"amount,omitempty"`
	OperationAmount *int64  `json:"operationAmount,omitempty"`
	CurrencyCode    *int    `json:"currencyCode,omitempty"`
	CommissionRate  *int64  `json:"commissionRate,omitempty"`
	CashbackAmount  *int64  `json:"cashbackAmount,omitempty"`
	Balance         *int64  `json:"balance,omitempty"`
	Comment         *string `json:"comment,omitempty"`
	ReceiptID       *string `json:"receiptId,omitempty"`
	InvoiceID       *string `json:"invoiceId,omitempty"`
	CounterEdrpou   *string `json:"counterEdrpou,omitempty"`
	CounterIban     *string `json:"counterIban,omitempty"`
}

// TimeOrZero returns the item time, or 0 when the API omitted it.
func (s StatementItem) TimeOrZero() int64 {
	if s.Time == nil {
		return 0
	}
	return *s.Time
}

// Normalize converts a raw statement item into a Transaction owned by
// accountID. Items without an id get a synthetic one built from the fields
// that are most likely to identify the operation.
func (s StatementItem) Normalize(accountID string) Transaction {
	mcc := derefOr(s.MCC, 0)
	amount := derefOr(s.Amount, 0)

	id := s.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d-%d-%d-%d", accountID, s.TimeOrZero(), mcc, amount, derefOr(s.OperationAmount, 0))
	}

	return Transaction{
		ID:              id,
		AccountID:       accountID,
		Time:            s.TimeOrZero(),
		Description:     derefOr(s.Description, ""),
		MCC:             mcc,
		OriginalMCC:     derefOr(s.OriginalMCC, mcc),
		Hold:            derefOr(s.Hold, false),
		Amount:          amount,
		OperationAmount: derefOr(s.OperationAmount, amount),
		CurrencyCode:    derefOr(s.CurrencyCode, DefaultCurrencyCode),
		CommissionRate:  derefOr(s.CommissionRate, 0),
		CashbackAmount:  derefOr(s.CashbackAmount, 0),
		Balance:         derefOr(s.Balance, 0),
		Comment:         derefOr(s.Comment, ""),
		ReceiptID:       derefOr(s.ReceiptID, ""),
		InvoiceID:       derefOr(s.InvoiceID, ""),
		CounterEdrpou:   derefOr(s.CounterEdrpou, ""),
		CounterIban:     derefOr(s.CounterIban, ""),
	}
}

func derefOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

// SortByTimeDesc sorts transactions newest first, in place. Ties keep their
// relative order.
func SortByTimeDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Time > txs[j].Time
	})
}

// OldestTime returns the earliest transaction time for accountID, if any.
func OldestTime(txs []Transaction, accountID string) (int64, bool) {
	var (
		oldest int64
		found  bool
	)
	for _, tx := range txs {
		if tx.AccountID != accountID {
			continue
		}
		if !found || tx.Time < oldest {
			oldest = tx.Time
			found = true
		}
	}
	return oldest, found
}

// TimeRange returns the earliest and latest transaction times.
func TimeRange(txs []Transaction) (from, to int64) {
	for i, tx := range txs {
		if i == 0 || tx.Time < from {
			from = tx.Time
		}
		if i == 0 || tx.Time > to {
			to = tx.Time
		}
	}
	return from, to
}
