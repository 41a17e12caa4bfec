// Package demo generates the deterministic sample dataset shown before a
// bank token is connected.
package demo

import (
	"fmt"
	"math"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
)

// AccountID owns every generated transaction.
const AccountID = "demo"

const (
	days            = 30
	minPerDay       = 3
	maxPerDay       = 6
	startingBalance = 1_800_000
	dayStartSeconds = 7 * 3600
	dayEndSeconds   = 22*3600 + 45*60
	incomeEdrpou    = "12345678"
	incomeIban      = "UA123456789012345678901234567"
	secondsPerDay   = 24 * 3600
)

type kind int

const (
	expense kind = iota
	income
)

type template struct {
	description string
	mcc         int
	category    string
	kind        kind
	minAmount   int
	maxAmount   int
	comment     string
	cashbackBps int
}

var templates = []template{
	{"Silpo", 5411, "groceries", expense, 15000, 120000, "", 100},
	{"ATB", 5411, "groceries", expense, 8000, 60000, "", 100},
	{"Novus", 5411, "groceries", expense, 20000, 150000, "", 100},
	{"Aroma Kava", 5814, "cafe", expense, 6000, 18000, "", 200},
	{"McDonald's", 5814, "cafe", expense, 12000, 40000, "", 200},
	{"Puzata Hata", 5812, "restaurants", expense, 18000, 60000, "", 150},
	{"Uber", 4121, "transport", expense, 9000, 45000, "", 50},
	{"Bolt", 4121, "transport", expense, 8000, 40000, "", 50},
	{"WOG", 5541, "fuel", expense, 80000, 250000, "", 100},
	{"Rozetka", 5732, "shopping", expense, 50000, 600000, "", 100},
	{"Netflix", 4899, "subscriptions", expense, 25900, 25900, "Monthly subscription", 0},
	{"Kyivstar", 4814, "utilities", expense, 15000, 30000, "Mobile top-up", 0},
	{"Apteka ANC", 5912, "health", expense, 7000, 80000, "", 100},
	{"Multiplex", 7832, "entertainment", expense, 15000, 50000, "", 200},
	{"Transfer from Olena", 4829, "transfers", income, 50000, 300000, "For dinner", 0},
	{"Salary", 4829, "salary", income, 4500000, 6500000, "Monthly salary", 0},
}

type rng struct {
	state uint32
}

func newRNG(seed int64) *rng {
	return &rng{state: uint32(seed)}
}

func (r *rng) next() float64 {
	r.state = r.state*1664525 + 1013904223
	return float64(r.state) / 4294967296
}

func (r *rng) intn(min, max int) int {
	return int(math.Floor(float64(max-min+1)*r.next())) + min
}

// Generate returns 30 days of sample transactions ending on base's UTC day,
// newest first. The same day always yields the same transactions.
func Generate(base time.Time) []domain.Transaction {
	y, m, d := base.UTC().Date()
	todayStamp := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay

	balance := int64(startingBalance)
	sequence := 0
	out := make([]domain.Transaction, 0, days*maxPerDay)

	for offset := days - 1; offset >= 0; offset-- {
		dayStamp := todayStamp - int64(offset)
		r := newRNG(dayStamp)
		count := r.intn(minPerDay, maxPerDay)

		for idx := 0; idx < count; idx++ {
			tpl := templates[r.intn(0, len(templates)-1)]
			amount := int64(r.intn(tpl.minAmount, tpl.maxAmount))
			if tpl.kind == expense {
				amount = -amount
			}
			txTime := dayStamp*secondsPerDay + int64(r.intn(dayStartSeconds, dayEndSeconds))
			id := fmt.Sprintf("%d_%d_%d", dayStamp, idx, sequence)

			var cashback int64
			if amount < 0 && tpl.cashbackBps > 0 {
				cashback = -amount * int64(tpl.cashbackBps) / 10000
			}
			balance += amount

			tx := domain.Transaction{
				ID:              id,
				AccountID:       AccountID,
				Time:            txTime,
				Description:     tpl.description,
				MCC:             tpl.mcc,
				OriginalMCC:     tpl.mcc,
				Amount:          amount,
				OperationAmount: amount,
				CurrencyCode:    domain.DefaultCurrencyCode,
				CashbackAmount:  cashback,
				Balance:         balance,
				Comment:         tpl.comment,
				Category:        tpl.category,
			}
			if r.next() > 0.5 {
				tx.ReceiptID = "receipt_" + id
			}
			if r.next() > 0.8 {
				tx.InvoiceID = "invoice_" + id
			}
			if tpl.kind == income {
				tx.CounterEdrpou = incomeEdrpou
				tx.CounterIban = incomeIban
			}

			out = append(out, tx)
			sequence++
		}
	}

	domain.SortByTimeDesc(out)
	return out
}

// StoredData wraps freshly generated transactions into a demo dataset with
// default sync state.
func StoredData(base time.Time) domain.StoredData {
	return domain.StoredData{
		Transactions:     Generate(base),
		Timestamp:        base.UnixMilli(),
		Categories:       map[string]string{},
		DataOrigin:       domain.OriginDemo,
		AccountSourceMap: domain.AccountSourceMap{},
		Sync:             domain.DefaultSyncState(),
	}
}
