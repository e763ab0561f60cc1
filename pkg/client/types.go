package client

import "time"

// StatusResponse is returned by GET {base}/status.
type StatusResponse struct {
	Status        string     `json:"status"` // UP, DOWN or NONE
	UptimeSeconds int64      `json:"uptime_seconds"`
	Since         *time.Time `json:"since,omitempty"`
	Message       string     `json:"message"`
}

// OperationResponse is returned by POST {base}/up and POST {base}/down.
type OperationResponse struct {
	ID      string `json:"id,omitempty"`
	Skipped bool   `json:"skipped"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HistoryQuery represents query parameters for the history endpoint.
// Empty fields are omitted.
type HistoryQuery struct {
	From   string
	To     string
	Status string
	Sort   string
}

// HistoryEntry is one event of a history listing.
type HistoryEntry struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
}

// HistoryResponse is returned by GET {base}/history.
type HistoryResponse struct {
	Events  []HistoryEntry `json:"events"`
	Message string         `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenResponse is returned by POST {base}/auth/login.
type TokenResponse struct {
	Type      string    `json:"type"` // "Bearer"
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
