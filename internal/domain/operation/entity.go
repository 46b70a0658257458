package operation

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Handle is the Operation-Location URL returned by the service for an in-flight job.
type Handle string

func (h Handle) String() string { return string(h) }

// OperationID is the last path segment of the handle, used to address
// result files produced by the operation.
func (h Handle) OperationID() string {
	u, err := url.Parse(string(h))
	if err != nil || u.Path == "" {
		return ""
	}
	id := path.Base(u.Path)
	if id == "/" || id == "." {
		return ""
	}
	return id
}

// Status enum
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ParseStatus maps the service status field onto the client state machine.
// Matching is case-insensitive; anything that is not terminal (notStarted,
// inProgress, unknown values) counts as running.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Kind names the action that started an operation.
type Kind string

const (
	KindCreateAnalyzer   Kind = "create-analyzer"
	KindCreateClassifier Kind = "create-classifier"
	KindAnalyze          Kind = "analyze"
	KindClassify         Kind = "classify"
)

// Envelope is a polled operation document. Raw keeps the body exactly as
// the service sent it; the other fields are decoded views over it.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// State returns the normalized status of the envelope.
func (e *Envelope) State() Status {
	return ParseStatus(e.Status)
}

// MarshalJSON returns the untouched service payload when it is available.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain Envelope
	return json.Marshal(plain(e))
}
