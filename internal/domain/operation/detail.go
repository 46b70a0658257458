package operation

import (
	"fmt"
	"strings"
)

// rawBodyLimit caps how much of an unparseable body is kept for diagnostics.
const rawBodyLimit = 500

// ErrorDetail is the service error object: code/message plus an optional
// innererror chain and details list.
type ErrorDetail struct {
	Code       string        `json:"code,omitempty"`
	Message    string        `json:"message,omitempty"`
	Target     string        `json:"target,omitempty"`
	InnerError *InnerError   `json:"innererror,omitempty"`
	Details    []ErrorDetail `json:"details,omitempty"`

	// Raw holds the leading part of a body that could not be parsed.
	Raw string `json:"-"`
}

// InnerError is a nested, more specific error code.
type InnerError struct {
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
	InnerError *InnerError `json:"innererror,omitempty"`
}

// Empty reports whether nothing at all was decoded.
func (d ErrorDetail) Empty() bool {
	return d.Code == "" && d.Message == "" && d.InnerError == nil && len(d.Details) == 0 && d.Raw == ""
}

// Describe renders the code/message chain as one diagnostic line, e.g.
// "InvalidRequest: bad input (inner InvalidFieldSchema: unknown type)".
func (d ErrorDetail) Describe() string {
	var b strings.Builder
	writePair(&b, d.Code, d.Message)

	for inner := d.InnerError; inner != nil; inner = inner.InnerError {
		if inner.Code == "" && inner.Message == "" {
			continue
		}
		b.WriteString(" (inner ")
		writePair(&b, inner.Code, inner.Message)
		b.WriteString(")")
	}

	for _, det := range d.Details {
		if s := det.Describe(); s != "" {
			b.WriteString("; ")
			b.WriteString(s)
		}
	}

	if b.Len() == 0 && d.Raw != "" {
		b.WriteString("body: ")
		b.WriteString(d.Raw)
	}
	return b.String()
}

func writePair(b *strings.Builder, code, msg string) {
	switch {
	case code != "" && msg != "":
		fmt.Fprintf(b, "%s: %s", code, msg)
	case code != "":
		b.WriteString(code)
	case msg != "":
		b.WriteString(msg)
	}
}

// TruncateBody keeps the first 500 characters of a body for error reports.
func TruncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	r := []rune(s)
	if len(r) > rawBodyLimit {
		return string(r[:rawBodyLimit])
	}
	return s
}
