package demo_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/monosync/internal/demo"
	"github.com/boddenberg/monosync/internal/domain"
)

var base = time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

func TestGenerate_Deterministic(t *testing.T) {
	a := demo.Generate(base)
	b := demo.Generate(base.Add(3 * time.Hour)) // same UTC day

	if len(a) != len(b) {
		t.Fatalf("expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("transaction %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerate_Shape(t *testing.T) {
	txs := demo.Generate(base)

	if len(txs) < 30*3 || len(txs) > 30*6 {
		t.Fatalf("expected 90..180 transactions, got %d", len(txs))
	}

	dayStart := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	oldest := dayStart.AddDate(0, 0, -29).Unix()
	perDay := map[int64]int{}
	ids := map[string]bool{}

	for i, tx := range txs {
		if i > 0 && txs[i-1].Time < tx.Time {
			t.Fatalf("not sorted newest first at %d", i)
		}
		if ids[tx.ID] {
			t.Fatalf("duplicate id %s", tx.ID)
		}
		ids[tx.ID] = true

		if tx.Time < oldest || tx.Time >= dayStart.Unix()+86400 {
			t.Errorf("time %d outside the 30 day window", tx.Time)
		}
		secondOfDay := tx.Time % 86400
		if secondOfDay < 7*3600 || secondOfDay > 22*3600+45*60 {
			t.Errorf("time of day %d outside 07:00-22:45", secondOfDay)
		}
		perDay[tx.Time/86400]++

		if tx.AccountID != demo.AccountID || tx.CurrencyCode != domain.DefaultCurrencyCode {
			t.Errorf("unexpected account/currency: %+v", tx)
		}
		if tx.Amount != tx.OperationAmount || tx.MCC != tx.OriginalMCC {
			t.Errorf("operation amount and original mcc must mirror: %+v", tx)
		}
		if tx.IsIncome() {
			if tx.CounterEdrpou == "" || tx.CounterIban == "" || tx.CashbackAmount != 0 {
				t.Errorf("income must carry counterparty and no cashback: %+v", tx)
			}
		} else if tx.CounterEdrpou != "" {
			t.Errorf("expense must not carry counterparty: %+v", tx)
		}
		if tx.ReceiptID != "" && !strings.HasPrefix(tx.ReceiptID, "receipt_") {
			t.Errorf("unexpected receipt id %q", tx.ReceiptID)
		}
		if tx.InvoiceID != "" && tx.InvoiceID != "invoice_"+tx.ID {
			t.Errorf("unexpected invoice id %q", tx.InvoiceID)
		}
	}

	if len(perDay) != 30 {
		t.Errorf("expected transactions on 30 days, got %d", len(perDay))
	}
	for day, n := range perDay {
		if n < 3 || n > 6 {
			t.Errorf("day %d has %d transactions", day, n)
		}
	}
}

func TestGenerate_RunningBalance(t *testing.T) {
	txs := demo.Generate(base)

	var (
		total  int64
		last   domain.Transaction
		maxSeq = -1
	)
	for _, tx := range txs {
		total += tx.Amount
		parts := strings.Split(tx.ID, "_")
		seq, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			t.Fatalf("unexpected id %q", tx.ID)
		}
		if seq > maxSeq {
			maxSeq, last = seq, tx
		}
	}

	if want := int64(1_800_000) + total; last.Balance != want {
		t.Errorf("expected final balance %d, got %d", want, last.Balance)
	}
}

func TestStoredData(t *testing.T) {
	d := demo.StoredData(base)

	if d.DataOrigin != domain.OriginDemo || d.Token != "" || d.UseRealData {
		t.Errorf("unexpected demo dataset header: %+v", d)
	}
	if d.Sync != domain.DefaultSyncState() {
		t.Errorf("expected default sync state, got %+v", d.Sync)
	}
	if len(d.Transactions) == 0 {
		t.Error("expected generated transactions")
	}
}
