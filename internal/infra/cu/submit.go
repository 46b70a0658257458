package cu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// Payload is a request body variant.
type Payload interface {
	encode() (io.Reader, string, error)
}

// JSONPayload sends a built document.
type JSONPayload struct {
	Body *Object
}

func (p JSONPayload) encode() (io.Reader, string, error) {
	b, err := p.Body.MarshalJSON()
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(b), "application/json", nil
}

// BinaryPayload streams raw file bytes.
type BinaryPayload struct {
	Data        io.Reader
	ContentType string
}

func (p BinaryPayload) encode() (io.Reader, string, error) {
	if p.Data == nil {
		return nil, "", errors.New("binary payload has no data")
	}
	ct := p.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return p.Data, ct, nil
}

// URLPayload asks the service to fetch the input itself: {"url": ...}.
type URLPayload struct {
	URL string
}

func (p URLPayload) encode() (io.Reader, string, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, "", errors.New("url payload is empty")
	}
	return JSONPayload{Body: NewObject().Set("url", String(p.URL))}.encode()
}

// BatchPayload analyzes several remote inputs in one operation: {"inputs":[{"url":...}]}.
type BatchPayload struct {
	URLs []string
}

func (p BatchPayload) encode() (io.Reader, string, error) {
	if len(p.URLs) == 0 {
		return nil, "", errors.New("batch payload has no inputs")
	}
	inputs := make(Array, 0, len(p.URLs))
	for _, u := range p.URLs {
		inputs = append(inputs, NewObject().Set("url", String(u)))
	}
	return JSONPayload{Body: NewObject().Set("inputs", inputs)}.encode()
}

// Request is one long-running action to submit.
type Request struct {
	Kind    operation.Kind
	Method  string
	Path    string
	Query   url.Values
	Payload Payload
}

// Submission is the accepted answer to a Request.
type Submission struct {
	Kind       operation.Kind
	Handle     operation.Handle
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Submit sends req once. Success requires a 2xx status and an Operation-Location header.
func (c *Client) Submit(ctx context.Context, req Request) (*Submission, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	target := c.resourceURL(req.Path, req.Query)

	ctx, span := c.tel.tracer.Start(ctx, "cu.submit", trace.WithAttributes(
		attribute.String("cu.kind", string(req.Kind)),
		attribute.String("http.method", method),
	))
	defer span.End()

	var (
		body        io.Reader
		contentType string
	)
	if req.Payload != nil {
		var err error
		body, contentType, err = req.Payload.encode()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "encode payload")
			return nil, &operation.SubmissionError{Phase: "submit", Method: method, URL: redact(target), Reason: err.Error()}
		}
	}

	start := c.clock.Now()
	c.log.Info("cu.submit.request", "kind", req.Kind, "method", method, "url", redact(target))

	resp, err := c.send(ctx, method, target, body, contentType)
	if err != nil {
		c.tel.submission(ctx, req.Kind, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "send")
		c.log.Error("cu.submit.error", "kind", req.Kind, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if !resp.ok() {
		serr := c.rejected("submit", resp, "")
		c.tel.submission(ctx, req.Kind, "rejected")
		span.SetStatus(codes.Error, "rejected")
		c.log.Warn("cu.submit.rejected", "kind", req.Kind, "status", resp.StatusCode, "detail", serr.Detail.Describe())
		return nil, serr
	}

	loc := strings.TrimSpace(resp.Header.Get(HeaderOperationLocation))
	if loc == "" {
		serr := c.rejected("submit", resp, "accepted response has no "+HeaderOperationLocation+" header")
		c.tel.submission(ctx, req.Kind, "rejected")
		span.SetStatus(codes.Error, "missing operation location")
		c.log.Warn("cu.submit.rejected", "kind", req.Kind, "status", resp.StatusCode, "reason", serr.Reason)
		return nil, serr
	}

	c.tel.submission(ctx, req.Kind, "accepted")
	c.log.Info("cu.submit.accepted",
		"kind", req.Kind,
		"status", resp.StatusCode,
		"operation", operation.Handle(loc).OperationID(),
		"duration_ms", c.clock.Now().Sub(start).Milliseconds(),
	)
	return &Submission{
		Kind:       req.Kind,
		Handle:     operation.Handle(loc),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Run submits req and polls the returned handle until a terminal state or timeout.
func (c *Client) Run(ctx context.Context, req Request, timeout time.Duration) (*operation.Envelope, error) {
	sub, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	env, err := c.poller.Wait(ctx, sub.Handle, timeout)
	c.tel.outcome(ctx, req.Kind, err)
	return env, err
}
