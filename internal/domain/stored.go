package domain

import "strings"

// ============================================================
// Persisted dataset
// ============================================================

// StoredData is the single blob holding everything the dashboard keeps
// locally. It is always produced by normalization, never trusted raw.
type StoredData struct {
	Token            string            `json:"token"`
	Transactions     []Transaction     `json:"transactions"`
	Timestamp        int64             `json:"timestamp"` // unix millis
	UseRealData      bool              `json:"useRealData"`
	Categories       map[string]string `json:"categories"`
	ClientInfo       *ClientInfo       `json:"clientInfo"`
	DataOrigin       DataOrigin        `json:"dataOrigin"`
	AccountSourceMap AccountSourceMap  `json:"accountSourceMap"`
	Sync             SyncState         `json:"sync"`
}

// HasToken reports whether a non-blank token is connected.
func (d StoredData) HasToken() bool {
	return strings.TrimSpace(d.Token) != ""
}

// SyncOrigin resolves the origin a sync should merge under: imported data
// stays imported, a connected token means real data.
func (d StoredData) SyncOrigin() DataOrigin {
	if d.DataOrigin == OriginImported {
		return OriginImported
	}
	if d.HasToken() {
		return OriginReal
	}
	if d.DataOrigin.Valid() {
		return d.DataOrigin
	}
	if d.UseRealData {
		return OriginReal
	}
	return OriginDemo
}

// UsedCategories returns categories that at least one transaction still
// references.
func (d StoredData) UsedCategories() map[string]string {
	used := make(map[string]struct{})
	for _, tx := range d.Transactions {
		if strings.TrimSpace(tx.Category) != "" {
			used[tx.Category] = struct{}{}
		}
	}
	cleaned := make(map[string]string, len(used))
	for key, value := range d.Categories {
		if _, ok := used[key]; ok {
			cleaned[key] = value
		}
	}
	return cleaned
}

// AppData is the user-owned part of the dataset that can be exported and
// imported.
type AppData struct {
	Transactions []Transaction     `json:"transactions"`
	Categories   map[string]string `json:"categories"`
}
