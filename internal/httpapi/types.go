// Package httpapi provides the daemon's HTTP surface: health, status,
// session listing, and sync-queue inspection, for the operator CLI and
// Prometheus scraping.
package httpapi

import "time"

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Status  string         `json:"status"`
	Session *SessionStatus `json:"session,omitempty"`
}

// SessionStatus reports the active session's compression-relevant usage.
type SessionStatus struct {
	SessionID        string `json:"sessionId"`
	ProjectHash      string `json:"projectHash"`
	LifecycleStatus  string `json:"lifecycleStatus"`
	TokenCount       int    `json:"tokenCount"`
	MaxContextTokens int    `json:"maxContextTokens"`
	UsagePercent     int    `json:"usagePercent"`
	FCCount          int    `json:"fcCount"`
}

// SessionSummary is one entry in the GET /sessions response.
type SessionSummary struct {
	ID          string     `json:"id"`
	ProjectHash string     `json:"projectHash"`
	ProjectPath string     `json:"projectPath"`
	Status      string     `json:"status"`
	TokenCount  int        `json:"tokenCount"`
	FCCount     int        `json:"fcCount"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// SessionsResponse is the response body for GET /sessions.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SyncResponse is the response body for GET /sync.
type SyncResponse struct {
	Stats SyncStats   `json:"stats"`
	Items []SyncItem  `json:"items,omitempty"`
}

// SyncStats mirrors syncqueue.Stats for the wire format.
type SyncStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// SyncItem is one entry in the GET /sync response's item listing.
type SyncItem struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	Status    string     `json:"status"`
	Retries   int        `json:"retries"`
	LastError string     `json:"lastError,omitempty"`
	NextRetry *time.Time `json:"nextRetry,omitempty"`
}

// StatsResponse is the response body for GET /stats.
type StatsResponse struct {
	SessionCount int   `json:"sessionCount"`
	TotalBytes   int64 `json:"totalBytes"`
	ProjectCount int   `json:"projectCount"`
}

// CleanupRequest is the request body for POST /cleanup.
type CleanupRequest struct {
	MaxAgeDays int `json:"maxAgeDays"`
}

// CleanupResponse is the response body for POST /cleanup.
type CleanupResponse struct {
	Removed    int      `json:"removed"`
	BytesFreed int64    `json:"bytesFreed"`
	IDs        []string `json:"ids,omitempty"`
}
