package operation

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every typed error below matches exactly one of these via errors.Is.
var (
	ErrPrecondition    = errors.New("precondition failed")
	ErrAuth            = errors.New("authentication failed")
	ErrSubmission      = errors.New("submission rejected")
	ErrOperationFailed = errors.New("operation failed")
	ErrTimeout         = errors.New("operation timed out")
	ErrTransport       = errors.New("transport failure")
)

// AuthError wraps a token acquisition failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("acquire credentials: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// SubmissionError is a non-2xx answer (or a malformed 2xx) from the service.
type SubmissionError struct {
	Phase      string // "submit" or "poll"
	Method     string
	URL        string
	StatusCode int
	Detail     ErrorDetail
	Reason     string
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("%s %s %s: status %d", e.Phase, e.Method, e.URL, e.StatusCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if d := e.Detail.Describe(); d != "" {
		msg += ": " + d
	}
	return msg
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// OperationFailedError means the service reported a terminal failed status.
type OperationFailedError struct {
	Handle   Handle
	Detail   ErrorDetail
	Envelope *Envelope
}

func (e *OperationFailedError) Error() string {
	msg := fmt.Sprintf("operation %s failed", e.Handle)
	if d := e.Detail.Describe(); d != "" {
		msg += ": " + d
	}
	return msg
}

func (e *OperationFailedError) Is(target error) bool { return target == ErrOperationFailed }

// TimeoutError is injected by the poller when no terminal status was seen in time.
type TimeoutError struct {
	Handle  Handle
	Polls   int
	Elapsed time.Duration
	Last    Status
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s not finished after %s (%d polls, last status %q)",
		e.Handle, e.Elapsed.Round(time.Millisecond), e.Polls, e.Last)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// TransportError is a network-level failure talking to the service.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
