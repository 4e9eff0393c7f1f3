// Package httpapi provides the HTTP API for sessiond.
package httpapi

import (
	"github.com/hinteval/sessiond/internal/session"
)

// ImportResponse is the response body for POST /save_and_load/import.
type ImportResponse struct {
	Status    string        `json:"status"`
	SessionID string        `json:"session_id"`
	Import    ImportSummary `json:"import"`
	// Cleared is present only when the import replaced existing contents.
	Cleared *ClearedBlock `json:"cleared,omitempty"`
}

// ImportSummary describes what an import brought in.
type ImportSummary struct {
	Format string         `json:"format"`
	Info   string         `json:"info"`
	Counts session.Counts `json:"counts"`
	// AutoGenerated is set when at least one imported answer awaits
	// downstream generation.
	AutoGenerated bool `json:"auto_generated"`
}

// ClearedBlock describes contents removed from a session.
type ClearedBlock struct {
	Cleared bool           `json:"cleared"`
	Message string         `json:"message"`
	Counts  session.Counts `json:"counts"`
}

// ClearResponse is the response body for DELETE /save_and_load/clear.
type ClearResponse struct {
	Status    string         `json:"status"`
	SessionID string         `json:"session_id"`
	Cleared   bool           `json:"cleared"`
	Message   string         `json:"message"`
	Counts    session.Counts `json:"counts"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Services      map[string]string `json:"services"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
