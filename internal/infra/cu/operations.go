package cu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

type callOptions struct {
	timeout time.Duration
	long    bool
}

// CallOption tunes a single submit-and-poll call.
type CallOption func(*callOptions)

// WithTimeout overrides the polling timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// WithLongTimeout selects the long timeout (video inputs, pro-mode analyzers).
func WithLongTimeout() CallOption {
	return func(o *callOptions) { o.long = true }
}

func (c *Client) resolveTimeout(opts []CallOption, long bool) time.Duration {
	o := callOptions{long: long}
	for _, opt := range opts {
		opt(&o)
	}
	switch {
	case o.timeout > 0:
		return o.timeout
	case o.long:
		return c.longTimeout
	default:
		return c.timeout
	}
}

// needsLongTimeout reports pro-mode bodies: mode "pro" or a knowledgeSources block.
func needsLongTimeout(body *Object) bool {
	if body.Has("knowledgeSources") {
		return true
	}
	mode, _ := body.StringField("mode")
	return strings.EqualFold(mode, "pro")
}

func isVideo(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "video/")
}

// CreateAnalyzer PUTs body as analyzer id and waits for the build to finish.
func (c *Client) CreateAnalyzer(ctx context.Context, id string, body *Object, opts ...CallOption) (*operation.Envelope, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("create analyzer: empty analyzer id")
	}
	return c.Run(ctx, Request{
		Kind:    operation.KindCreateAnalyzer,
		Method:  http.MethodPut,
		Path:    analyzerPath(id, ""),
		Payload: JSONPayload{Body: body},
	}, c.resolveTimeout(opts, needsLongTimeout(body)))
}

func (c *Client) CreateClassifier(ctx context.Context, id string, body *Object, opts ...CallOption) (*operation.Envelope, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("create classifier: empty classifier id")
	}
	return c.Run(ctx, Request{
		Kind:    operation.KindCreateClassifier,
		Method:  http.MethodPut,
		Path:    classifierPath(id, ""),
		Payload: JSONPayload{Body: body},
	}, c.resolveTimeout(opts, false))
}

// AnalyzeBinary uploads the file bytes directly in the request body.
func (c *Client) AnalyzeBinary(ctx context.Context, analyzerID string, data io.Reader, contentType string, opts ...CallOption) (*operation.Envelope, error) {
	return c.Run(ctx, Request{
		Kind:    operation.KindAnalyze,
		Method:  http.MethodPost,
		Path:    analyzerPath(analyzerID, ":analyze"),
		Payload: BinaryPayload{Data: data, ContentType: contentType},
	}, c.resolveTimeout(opts, isVideo(contentType)))
}

// AnalyzeURL lets the service download the input from a (presigned) URL.
func (c *Client) AnalyzeURL(ctx context.Context, analyzerID, inputURL string, opts ...CallOption) (*operation.Envelope, error) {
	return c.Run(ctx, Request{
		Kind:    operation.KindAnalyze,
		Method:  http.MethodPost,
		Path:    analyzerPath(analyzerID, ":analyze"),
		Payload: URLPayload{URL: inputURL},
	}, c.resolveTimeout(opts, false))
}

func (c *Client) AnalyzeBatch(ctx context.Context, analyzerID string, inputURLs []string, opts ...CallOption) (*operation.Envelope, error) {
	return c.Run(ctx, Request{
		Kind:    operation.KindAnalyze,
		Method:  http.MethodPost,
		Path:    analyzerPath(analyzerID, ":analyze"),
		Payload: BatchPayload{URLs: inputURLs},
	}, c.resolveTimeout(opts, false))
}

func (c *Client) Classify(ctx context.Context, classifierID, inputURL string, opts ...CallOption) (*operation.Envelope, error) {
	return c.Run(ctx, Request{
		Kind:    operation.KindClassify,
		Method:  http.MethodPost,
		Path:    classifierPath(classifierID, ":classify"),
		Payload: URLPayload{URL: inputURL},
	}, c.resolveTimeout(opts, false))
}

// GetAnalyzer returns the analyzer definition as stored by the service.
func (c *Client) GetAnalyzer(ctx context.Context, id string) (*Object, error) {
	resp, err := c.send(ctx, http.MethodGet, c.resourceURL(analyzerPath(id, ""), nil), nil, "")
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, c.rejected("get", resp, "")
	}
	return ParseObject(resp.Body)
}

// DeleteAnalyzer removes an analyzer. Deleting an absent analyzer is not an error.
func (c *Client) DeleteAnalyzer(ctx context.Context, id string) error {
	return c.delete(ctx, analyzerPath(id, ""))
}

func (c *Client) DeleteClassifier(ctx context.Context, id string) error {
	return c.delete(ctx, classifierPath(id, ""))
}

func (c *Client) delete(ctx context.Context, p string) error {
	resp, err := c.send(ctx, http.MethodDelete, c.resourceURL(p, nil), nil, "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound || resp.ok() {
		c.log.Info("cu.delete", "path", p, "status", resp.StatusCode)
		return nil
	}
	return c.rejected("delete", resp, "")
}

func (c *Client) ListAnalyzers(ctx context.Context) ([]*Object, error) {
	return c.list(ctx, "analyzers")
}

func (c *Client) ListClassifiers(ctx context.Context) ([]*Object, error) {
	return c.list(ctx, "classifiers")
}

type listPage struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"nextLink"`
}

// list follows nextLink until the service stops returning one.
func (c *Client) list(ctx context.Context, collection string) ([]*Object, error) {
	var out []*Object
	seen := map[string]bool{}
	next := c.resourceURL(collection, nil)
	for next != "" {
		if seen[next] {
			return nil, fmt.Errorf("list %s: nextLink loop at %s", collection, redact(next))
		}
		seen[next] = true

		resp, err := c.send(ctx, http.MethodGet, next, nil, "")
		if err != nil {
			return nil, err
		}
		if !resp.ok() {
			return nil, c.rejected("list", resp, "")
		}
		var page listPage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, c.rejected("list", resp, "undecodable page: "+err.Error())
		}
		for _, raw := range page.Value {
			obj, err := ParseObject(raw)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", collection, err)
			}
			out = append(out, obj)
		}
		next, err = c.resolveLink(page.NextLink)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolveLink turns a relative nextLink into an absolute URL on the endpoint.
func (c *Client) resolveLink(link string) (string, error) {
	if link == "" {
		return "", nil
	}
	base, err := url.Parse(c.endpoint + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid nextLink %q: %w", link, err)
	}
	u := base.ResolveReference(ref)
	if u.Query().Get("api-version") == "" {
		q := u.Query()
		q.Set("api-version", c.apiVersion)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ResultFile is a binary artifact (keyframe, figure) produced by an analyze run.
type ResultFile struct {
	ContentType string
	Data        []byte
}

func (c *Client) GetResultFile(ctx context.Context, operationID, filePath string) (*ResultFile, error) {
	if operationID == "" || strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("get result file: operation id and path are required")
	}
	p := "analyzerResults/" + url.PathEscape(operationID) + "/files/" + strings.TrimLeft(filePath, "/")
	resp, err := c.send(ctx, http.MethodGet, c.resourceURL(p, nil), nil, "")
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, c.rejected("get", resp, "")
	}
	return &ResultFile{ContentType: resp.Header.Get("Content-Type"), Data: resp.Body}, nil
}
