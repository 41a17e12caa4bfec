package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/boddenberg/monosync/internal/domain"
)

// ExportVersion is the version written into export files.
const ExportVersion = "1.0"

// ExportFile is the on-disk export format.
type ExportFile struct {
	Version    string         `json:"version"`
	ExportDate string         `json:"exportDate"`
	Metadata   ExportMetadata `json:"metadata"`
	Data       ExportData     `json:"data"`
}

type ExportMetadata struct {
	TotalTransactions int       `json:"totalTransactions"`
	DateRange         DateRange `json:"dateRange"`
	Categories        []string  `json:"categories"`
}

type DateRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ExportData is the importable payload. Rules are carried through
// untouched; categorization rules are not evaluated here.
type ExportData struct {
	Transactions []domain.Transaction `json:"transactions"`
	Categories   map[string]string    `json:"categories"`
	Rules        []json.RawMessage    `json:"rules"`
}

// BuildExport assembles an export file for data.
func BuildExport(data domain.AppData, now time.Time) ExportFile {
	transactions := data.Transactions
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	categories := data.Categories
	if categories == nil {
		categories = map[string]string{}
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	from, to := domain.TimeRange(transactions)
	return ExportFile{
		Version:    ExportVersion,
		ExportDate: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		Metadata: ExportMetadata{
			TotalTransactions: len(transactions),
			DateRange:         DateRange{From: from, To: to},
			Categories:        names,
		},
		Data: ExportData{
			Transactions: transactions,
			Categories:   categories,
			Rules:        []json.RawMessage{},
		},
	}
}

// EncodeExport writes data as an indented export file.
func EncodeExport(w io.Writer, data domain.AppData, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildExport(data, now)); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// ExportFileName is the suggested file name for an export made at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("monobank-export-%s.json", now.UTC().Format("2006-01-02"))
}

// DecodeExport reads an export file. The data object is required; missing
// transactions or categories count as empty, wrong types are rejected.
// Transactions are normalized like stored ones.
func DecodeExport(r io.Reader) (domain.AppData, error) {
	var parsed map[string]any
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return domain.AppData{}, &domain.ErrValidation{Field: "file", Message: "failed to parse JSON file"}
	}

	data, ok := parsed["data"].(map[string]any)
	if !ok || !truthy(parsed["data"]) {
		return domain.AppData{}, &domain.ErrValidation{Field: "data", Message: "invalid file format: missing data"}
	}

	rawTransactions := data["transactions"]
	if !truthy(rawTransactions) {
		rawTransactions = []any{}
	}
	if _, ok := rawTransactions.([]any); !ok {
		return domain.AppData{}, &domain.ErrValidation{Field: "transactions", Message: "invalid file format: transactions must be an array"}
	}

	rawCategories := data["categories"]
	if !truthy(rawCategories) {
		rawCategories = map[string]any{}
	}
	switch rawCategories.(type) {
	case map[string]any, []any:
	default:
		return domain.AppData{}, &domain.ErrValidation{Field: "categories", Message: "invalid file format: categories must be an object"}
	}

	return domain.AppData{
		Transactions: normalizeTransactions(rawTransactions),
		Categories:   normalizeCategories(rawCategories),
	}, nil
}
