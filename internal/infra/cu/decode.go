package cu

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// DecodeEnvelope reads a polled operation body. The returned envelope keeps
// the body untouched in Raw.
func DecodeEnvelope(body []byte) (*operation.Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty operation body")
	}
	var env operation.Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode operation body: %w", err)
	}
	env.Raw = append(json.RawMessage(nil), body...)
	return &env, nil
}

// DecodeErrorDetail extracts {"error": {...}} from a service body. When the
// body carries no recognizable error object the first part of it is kept in Raw.
func DecodeErrorDetail(body []byte) operation.ErrorDetail {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return operation.ErrorDetail{}
	}

	var wrapped struct {
		Error *operation.ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err == nil && wrapped.Error != nil && !wrapped.Error.Empty() {
		return *wrapped.Error
	}

	// some gateways answer with a bare {code, message}
	var bare operation.ErrorDetail
	if err := json.Unmarshal(trimmed, &bare); err == nil && (bare.Code != "" || bare.Message != "") {
		return bare
	}
	return operation.ErrorDetail{Raw: operation.TruncateBody(trimmed)}
}

// failureDetail picks the error object of a failed envelope, falling back to its raw body.
func failureDetail(env *operation.Envelope) operation.ErrorDetail {
	if env.Error != nil && !env.Error.Empty() {
		return *env.Error
	}
	return DecodeErrorDetail(env.Raw)
}
