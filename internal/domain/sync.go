package domain

import "time"

// DefaultSyncWindowDays is the default and minimum persisted lookback horizon.
const DefaultSyncWindowDays = 365

// ============================================================
// Sync state
// ============================================================

// SyncStatus is the persisted phase of the synchronization engine.
type SyncStatus string

const (
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusCooldown SyncStatus = "cooldown"
	SyncStatusError    SyncStatus = "error"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusCooldown, SyncStatusError:
		return true
	}
	return false
}

// DataOrigin tags the whole cached dataset with where it came from. It
// decides the merge policy.
type DataOrigin string

const (
	OriginDemo     DataOrigin = "demo"
	OriginReal     DataOrigin = "real"
	OriginImported DataOrigin = "imported"
)

// Valid reports whether o is a known origin.
func (o DataOrigin) Valid() bool {
	return o == OriginDemo || o == OriginReal || o == OriginImported
}

// SyncState is the persisted singleton describing synchronization progress.
// All timestamps are unix millis; zero means "never".
type SyncState struct {
	Status               SyncStatus `json:"status"`
	WindowDays           int        `json:"windowDays"`
	NeedsInitialSync     bool       `json:"needsInitialSync"`
	LastSyncStartedAt    int64      `json:"lastSyncStartedAt,omitempty"`
	LastSyncFinishedAt   int64      `json:"lastSyncFinishedAt,omitempty"`
	LastSuccessfulSyncAt int64      `json:"lastSuccessfulSyncAt,omitempty"`
	NextAllowedRequestAt int64      `json:"nextAllowedRequestAt,omitempty"`
	LastError            string     `json:"lastError,omitempty"`
}

// DefaultSyncState is the state used when nothing has been persisted yet.
func DefaultSyncState() SyncState {
	return SyncState{
		Status:     SyncStatusIdle,
		WindowDays: DefaultSyncWindowDays,
	}
}

// NextAllowedRequestTime returns NextAllowedRequestAt as a time.Time.
func (s SyncState) NextAllowedRequestTime() time.Time {
	if s.NextAllowedRequestAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.NextAllowedRequestAt)
}

// ============================================================
// Status and progress events
// ============================================================

// StatusLevel is the severity of a user-facing status message.
type StatusLevel string

const (
	StatusInfo    StatusLevel = "info"
	StatusSuccess StatusLevel = "success"
	StatusError   StatusLevel = "error"
)

// StatusUpdate is one user-facing status line. Receivers add timestamps.
type StatusUpdate struct {
	Level StatusLevel `json:"level"`
	Text  string      `json:"text"`
}

// SyncProgress is emitted after every fetched statement batch.
type SyncProgress struct {
	RunID                string        `json:"runId"`
	FetchedCount         int           `json:"fetchedCount"`
	PeriodFrom           int64         `json:"periodFrom"`
	PeriodTo             int64         `json:"periodTo"`
	AccountID            string        `json:"accountId"`
	AccountIndex         int           `json:"accountIndex"`
	AccountsTotal        int           `json:"accountsTotal"`
	TransactionsSnapshot []Transaction `json:"transactionsSnapshot"`
}

// ============================================================
// Sync planning and results
// ============================================================

// Period is an inclusive [From, To] range of unix seconds.
type Period struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// SyncWindow is the overall horizon of a sync pass.
type SyncWindow struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// MergeStats counts what a merge changed.
type MergeStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// SyncResult is what one engine pass produced.
type SyncResult struct {
	Transactions         []Transaction `json:"transactions"`
	FetchedTransactions  int           `json:"fetchedTransactions"`
	MergeStats           MergeStats    `json:"mergeStats"`
	SyncWindow           SyncWindow    `json:"syncWindow"`
	NextAllowedRequestAt time.Time     `json:"nextAllowedRequestAt"`
}

// SyncOutcome is returned by the orchestrator to its callers.
type SyncOutcome struct {
	RunID      string     `json:"runId,omitempty"`
	Skipped    bool       `json:"skipped"`
	Reason     string     `json:"reason,omitempty"`
	Origin     DataOrigin `json:"origin,omitempty"`
	Fetched    int        `json:"fetched"`
	MergeStats MergeStats `json:"mergeStats"`
	Total      int        `json:"total"`
	State      SyncState  `json:"state"`
}
