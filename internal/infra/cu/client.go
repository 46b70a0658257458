// Package cu is the HTTP adapter for the Content Understanding service:
// request building, submission, long-running operation polling and result
// decoding.
package cu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bryanwahyu/cu-orchestrator/internal/application"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

const (
	DefaultAPIVersion = "2025-05-01-preview"
	DefaultUserAgent  = "cu-orchestrator"

	// DefaultTimeout bounds ordinary operations; LongTimeout is used for
	// video inputs and pro-mode analyzers.
	DefaultTimeout = 5 * time.Minute
	LongTimeout    = 20 * time.Minute

	HeaderSubscriptionKey   = "Ocp-Apim-Subscription-Key"
	HeaderOperationLocation = "Operation-Location"
	HeaderUserAgent         = "x-ms-useragent"
	HeaderClientRequestID   = "x-ms-client-request-id"

	basePath = "contentunderstanding"
)

var ErrNoCredentials = errors.New("cu: either a subscription key or a token provider is required")

// Config is everything a Client needs. Nothing is read from the environment.
type Config struct {
	Endpoint        string
	APIVersion      string
	SubscriptionKey string
	Tokens          operation.TokenProvider
	UserAgent       string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Clock      application.Clock

	Policy      PollPolicy
	Timeout     time.Duration
	LongTimeout time.Duration

	// RequestsPerSecond paces every outbound call (submits and polls). Zero disables pacing.
	RequestsPerSecond float64
}

type Client struct {
	endpoint    string
	apiVersion  string
	key         string
	tokens      operation.TokenProvider
	userAgent   string
	http        *http.Client
	log         *slog.Logger
	clock       application.Clock
	limiter     *rate.Limiter
	timeout     time.Duration
	longTimeout time.Duration
	tel         *telemetry
	poller      *Poller
}

func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	u, err := url.Parse(endpoint)
	if err != nil || endpoint == "" || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("cu: invalid endpoint %q", cfg.Endpoint)
	}
	if cfg.SubscriptionKey == "" && cfg.Tokens == nil {
		return nil, ErrNoCredentials
	}

	c := &Client{
		endpoint:    endpoint,
		apiVersion:  cfg.APIVersion,
		key:         cfg.SubscriptionKey,
		tokens:      cfg.Tokens,
		userAgent:   cfg.UserAgent,
		http:        cfg.HTTPClient,
		log:         cfg.Logger,
		clock:       cfg.Clock,
		timeout:     cfg.Timeout,
		longTimeout: cfg.LongTimeout,
		tel:         newTelemetry(),
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.clock == nil {
		c.clock = application.SystemClock{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.longTimeout <= 0 {
		c.longTimeout = LongTimeout
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	policy := cfg.Policy
	if policy == nil {
		policy = FixedInterval{Interval: DefaultPollInterval}
	}
	c.poller = &Poller{client: c, Policy: policy, Clock: c.clock}
	return c, nil
}

// Poller returns the poller bound to this client.
func (c *Client) Poller() *Poller { return c.poller }

// Timeouts returns the default and long operation timeouts.
func (c *Client) Timeouts() (normal, long time.Duration) { return c.timeout, c.longTimeout }

// resourceURL builds {endpoint}/contentunderstanding/{path}?api-version=...
func (c *Client) resourceURL(p string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("api-version", c.apiVersion)
	return c.endpoint + "/" + basePath + "/" + strings.TrimLeft(p, "/") + "?" + q.Encode()
}

func analyzerPath(id, action string) string {
	return "analyzers/" + url.PathEscape(id) + action
}

func classifierPath(id, action string) string {
	return "classifiers/" + url.PathEscape(id) + action
}

type response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *response) ok() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// authorize sets the credential header. A subscription key wins over a token provider.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.key != "" {
		req.Header.Set(HeaderSubscriptionKey, c.key)
		return nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return &operation.AuthError{Err: err}
	}
	if tok == "" {
		return &operation.AuthError{Err: errors.New("token provider returned an empty token")}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// send performs exactly one HTTP exchange and reads the whole body.
func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &operation.TransportError{Op: method + " " + target, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &operation.TransportError{Op: "build request", Err: err}
	}
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderUserAgent, c.userAgent)
	req.Header.Set(HeaderClientRequestID, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &operation.TransportError{Op: method + " " + redact(target), Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, &operation.TransportError{Op: "read " + redact(target), Err: err}
	}
	return &response{
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       buf.Bytes(),
	}, nil
}

// redact drops the query string so presigned tokens never reach logs or errors.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func (c *Client) rejected(phase string, r *response, reason string) *operation.SubmissionError {
	return &operation.SubmissionError{
		Phase:      phase,
		Method:     r.Method,
		URL:        redact(r.URL),
		StatusCode: r.StatusCode,
		Detail:     DecodeErrorDetail(r.Body),
		Reason:     reason,
	}
}
