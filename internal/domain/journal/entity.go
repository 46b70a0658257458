package journal

import (
	"time"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// ID tipe untuk Record
type RecordID string

// Status enum
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusRejected  Status = "rejected"
)

// Record is one submitted operation as seen by the gateway.
type Record struct {
	ID           RecordID       `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Kind         operation.Kind `json:"kind"`
	Target       string         `json:"target"`
	Handle       string         `json:"handle,omitempty"`
	Status       Status         `json:"status"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Page is one offset-paginated slice of records.
type Page struct {
	Data       []*Record `json:"data"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"total_pages"`
}
