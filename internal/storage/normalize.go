// Package storage reads and writes the persisted dataset blob. Everything
// read from disk goes through Normalize; the stored shape is never trusted.
package storage

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/boddenberg/monosync/internal/domain"
)

// LegacyAccountID owns transactions stored before accounts were tracked.
const LegacyAccountID = "legacy"

// Normalize decodes a stored blob field by field. Missing or malformed
// fields fall back to their defaults; it never fails. nowMillis is used
// when the blob carries no timestamp.
func Normalize(raw []byte, nowMillis int64) domain.StoredData {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = nil
	}
	return NormalizeValue(decoded, nowMillis)
}

// NormalizeValue is Normalize over an already decoded JSON value.
func NormalizeValue(value any, nowMillis int64) domain.StoredData {
	obj, _ := value.(map[string]any)

	token, _ := obj["token"].(string)
	useRealData := truthy(obj["useRealData"])

	timestamp := nowMillis
	if ts, ok := finite(obj["timestamp"]); ok {
		timestamp = int64(ts)
	}

	return domain.StoredData{
		Token:            token,
		Transactions:     normalizeTransactions(obj["transactions"]),
		Timestamp:        timestamp,
		UseRealData:      useRealData,
		Categories:       normalizeCategories(obj["categories"]),
		ClientInfo:       normalizeClientInfo(obj["clientInfo"]),
		DataOrigin:       inferOrigin(obj["dataOrigin"], useRealData),
		AccountSourceMap: normalizeAccountSourceMap(obj["accountSourceMap"]),
		Sync:             normalizeSyncState(obj["sync"]),
	}
}

// NormalizeData re-normalizes an in-memory dataset, so values written by
// the application obey the same rules as values read from disk.
func NormalizeData(d domain.StoredData) domain.StoredData {
	raw, err := json.Marshal(d)
	if err != nil {
		return NormalizeValue(nil, d.Timestamp)
	}
	return Normalize(raw, d.Timestamp)
}

func inferOrigin(value any, useRealData bool) domain.DataOrigin {
	if s, ok := value.(string); ok && domain.DataOrigin(s).Valid() {
		return domain.DataOrigin(s)
	}
	if useRealData {
		return domain.OriginReal
	}
	return domain.OriginDemo
}

func normalizeSyncState(value any) domain.SyncState {
	obj, _ := value.(map[string]any)
	state := domain.DefaultSyncState()

	if s, ok := obj["status"].(string); ok && domain.SyncStatus(s).Valid() {
		state.Status = domain.SyncStatus(s)
	}
	if days, ok := finite(obj["windowDays"]); ok && days >= domain.DefaultSyncWindowDays {
		state.WindowDays = int(math.Floor(days))
	}
	state.NeedsInitialSync = truthy(obj["needsInitialSync"])

	state.LastSyncStartedAt = millis(obj["lastSyncStartedAt"])
	state.LastSyncFinishedAt = millis(obj["lastSyncFinishedAt"])
	state.LastSuccessfulSyncAt = millis(obj["lastSuccessfulSyncAt"])
	state.NextAllowedRequestAt = millis(obj["nextAllowedRequestAt"])

	if msg, ok := obj["lastError"].(string); ok && strings.TrimSpace(msg) != "" {
		state.LastError = msg
	}
	return state
}

func normalizeTransactions(value any) []domain.Transaction {
	items, _ := value.([]any)
	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, normalizeTransaction(obj))
	}
	return out
}

func normalizeTransaction(obj map[string]any) domain.Transaction {
	accountID, _ := obj["accountId"].(string)
	if strings.TrimSpace(accountID) == "" {
		accountID = LegacyAccountID
	}

	mcc, hasMCC := finite(obj["mcc"])
	amount, hasAmount := finite(obj["amount"])

	originalMCC := mcc
	if v, ok := finite(obj["originalMcc"]); ok {
		originalMCC = v
	} else if !hasMCC {
		originalMCC = 0
	}

	operationAmount := amount
	if v, ok := finite(obj["operationAmount"]); ok {
		operationAmount = v
	} else if !hasAmount {
		operationAmount = 0
	}

	currency := float64(domain.DefaultCurrencyCode)
	if v, ok := finite(obj["currencyCode"]); ok {
		currency = v
	}

	category, _ := obj["category"].(string)

	return domain.Transaction{
		ID:              stringify(obj["id"]),
		AccountID:       accountID,
		Time:            int64(numberOr(obj["time"], 0)),
		Description:     stringOr(obj["description"]),
		MCC:             int(mcc),
		OriginalMCC:     int(originalMCC),
		Hold:            truthy(obj["hold"]),
		Amount:          int64(amount),
		OperationAmount: int64(operationAmount),
		CurrencyCode:    int(currency),
		CommissionRate:  int64(numberOr(obj["commissionRate"], 0)),
		CashbackAmount:  int64(numberOr(obj["cashbackAmount"], 0)),
		Balance:         int64(numberOr(obj["balance"], 0)),
		Comment:         stringOr(obj["comment"]),
		ReceiptID:       stringOr(obj["receiptId"]),
		InvoiceID:       stringOr(obj["invoiceId"]),
		CounterEdrpou:   stringOr(obj["counterEdrpou"]),
		CounterIban:     stringOr(obj["counterIban"]),
		Category:        category,
	}
}

func normalizeCategories(value any) map[string]string {
	obj, _ := value.(map[string]any)
	out := make(map[string]string, len(obj))
	for key, v := range obj {
		if s, ok := v.(string); ok {
			out[key] = s
		}
	}
	return out
}

func normalizeAccountSourceMap(value any) domain.AccountSourceMap {
	obj, _ := value.(map[string]any)
	out := make(domain.AccountSourceMap, len(obj))
	for accountID, entry := range obj {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		source, _ := fields["source"].(string)
		addedAt, ok := finite(fields["addedAt"])
		if !ok || !domain.AccountSource(source).Valid() {
			continue
		}
		out[accountID] = domain.AccountSourceInfo{Source: domain.AccountSource(source), AddedAt: int64(addedAt)}
	}
	return out
}

func normalizeClientInfo(value any) *domain.ClientInfo {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var info domain.ClientInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	return &info
}

// truthy mirrors loose boolean coercion of stored flags: absent, false, 0,
// NaN and "" are false; everything else is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

func finite(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(v any, fallback float64) float64 {
	if f, ok := finite(v); ok {
		return f
	}
	return fallback
}

func millis(v any) int64 {
	if f, ok := finite(v); ok {
		return int64(f)
	}
	return 0
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
