package domain

// SyncMetrics is a point-in-time view of the process counters, served by
// `status` and the dashboard bridge.
type SyncMetrics struct {
	RemoteRequests      int64   `json:"remoteRequests"`
	RateLimitedRequests int64   `json:"rateLimitedRequests"`
	FailedRequests      int64   `json:"failedRequests"`
	RateLimitWaitSecs   float64 `json:"rateLimitWaitSeconds"`
	ThrottleWaitSecs    float64 `json:"throttleWaitSeconds"`
	SyncRunsSucceeded   int64   `json:"syncRunsSucceeded"`
	SyncRunsFailed      int64   `json:"syncRunsFailed"`
	SyncRunsSkipped     int64   `json:"syncRunsSkipped"`
	FetchedTransactions int64   `json:"fetchedTransactions"`
	AddedTransactions   int64   `json:"addedTransactions"`
	CacheHitRate        float64 `json:"cacheHitRate"`
}
