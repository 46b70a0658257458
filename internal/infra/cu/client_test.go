package cu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// fakeClock advances instantly on After and records every requested delay.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
	onWait func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	hook := f.onWait
	ch := make(chan time.Time, 1)
	if hook == nil {
		f.now = f.now.Add(d)
		ch <- f.now
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ch
}

func (f *fakeClock) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) (*Client, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg := Config{
		Endpoint:        srv.URL,
		SubscriptionKey: "test-key",
		HTTPClient:      srv.Client(),
		Logger:          quietLogger(),
		Clock:           clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c, clock
}

// statusSequence answers successive polls with the given statuses; the last one repeats.
func statusSequence(polls *int32, statuses ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(polls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"123","status":%q}`, statuses[n])
	}
}

func TestCreateAnalyzer_SubmitsThenPollsUntilSucceeded(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/contentunderstanding/analyzers/demo-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, DefaultAPIVersion, r.URL.Query().Get("api-version"))
		assert.Equal(t, "test-key", r.Header.Get(HeaderSubscriptionKey))
		assert.Equal(t, DefaultUserAgent, r.Header.Get(HeaderUserAgent))
		assert.NotEmpty(t, r.Header.Get(HeaderClientRequestID))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"baseAnalyzerId":"prebuilt-documentAnalyzer"}`, string(body))

		w.Header().Set(HeaderOperationLocation, srv.URL+"/ops/123")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/ops/123", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&polls, 1)
		status := "running"
		if n == 1 {
			status = "notStarted"
		}
		if n >= 3 {
			fmt.Fprint(w, `{"id":"123","status":"Succeeded","result":{"analyzerId":"demo-1"}}`)
			return
		}
		fmt.Fprintf(w, `{"id":"123","status":%q}`, status)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	c, clock := newTestClient(t, srv, nil)
	body := NewObject().Set("baseAnalyzerId", String("prebuilt-documentAnalyzer"))

	env, err := c.CreateAnalyzer(context.Background(), "demo-1", body)
	require.NoError(t, err)
	assert.Equal(t, operation.StatusSucceeded, env.State())

	var result struct {
		AnalyzerID string `json:"analyzerId"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "demo-1", result.AnalyzerID)
	assert.Contains(t, string(env.Raw), `"Succeeded"`)

	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Delays())
}

func TestWait_TimeoutStopsPolling(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(statusSequence(&polls, "running"))
	defer srv.Close()

	c, clock := newTestClient(t, srv, nil)
	_, err := c.Poller().Wait(context.Background(), operation.Handle(srv.URL+"/ops/9"), 5*time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, operation.ErrTimeout)
	var te *operation.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Polls)
	assert.Equal(t, 5*time.Second, te.Elapsed)
	assert.Equal(t, operation.StatusRunning, te.Last)

	assert.EqualValues(t, 3, atomic.LoadInt32(&polls), "no poll may be issued after the deadline")
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, time.Second}, clock.Delays())
}

func TestWait_FailedStatusCarriesErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Failed","error":{"code":"InvalidInput","message":"bad schema"}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	env, err := c.Poller().Wait(context.Background(), operation.Handle(srv.URL+"/ops/1"), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, operation.ErrOperationFailed)
	assert.Contains(t, err.Error(), "InvalidInput")
	assert.Contains(t, err.Error(), "bad schema")
	require.NotNil(t, env)
	assert.Equal(t, operation.StatusFailed, env.State())

	var fe *operation.OperationFailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "InvalidInput", fe.Detail.Code)
}

func TestWait_CancelledBeforeNextPoll(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(statusSequence(&polls, "running"))
	defer srv.Close()

	c, clock := newTestClient(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	clock.onWait = cancel

	_, err := c.Poller().Wait(ctx, operation.Handle(srv.URL+"/ops/1"), time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, atomic.LoadInt32(&polls))
}

func TestWait_ContextDeadlineIsTimeout(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(statusSequence(&polls, "running"))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Poller().Wait(ctx, operation.Handle(srv.URL+"/ops/1"), time.Minute)
	assert.ErrorIs(t, err, operation.ErrTimeout)
	assert.EqualValues(t, 0, atomic.LoadInt32(&polls))
}

func TestWait_DeadlineBoundsSlowPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
			fmt.Fprint(w, `{"id":"1","status":"Running"}`)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	start := time.Now()
	_, err := c.Poller().Wait(context.Background(), operation.Handle(srv.URL+"/ops/1"), 200*time.Millisecond)

	var te *operation.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Polls)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_NonSuccessPollIsSubmissionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"NotFound","message":"operation expired"}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	_, err := c.Poller().Wait(context.Background(), operation.Handle(srv.URL+"/ops/1"), 0)

	var se *operation.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "poll", se.Phase)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "NotFound", se.Detail.Code)
}

func TestWait_ExponentialPolicyDelays(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(statusSequence(&polls, "running", "running", "running", "succeeded"))
	defer srv.Close()

	c, clock := newTestClient(t, srv, func(cfg *Config) {
		cfg.Policy = ExponentialBackoff{Initial: time.Second, Max: 3 * time.Second, Multiplier: 2}
	})
	_, err := c.Poller().Wait(context.Background(), operation.Handle(srv.URL+"/ops/1"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, clock.Delays())
}

func TestSubmit_SubscriptionKeyWinsOverBearer(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(HeaderSubscriptionKey)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set(HeaderOperationLocation, "https://svc/ops/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, func(cfg *Config) {
		cfg.Tokens = StaticToken("should-not-be-used")
	})
	sub, err := c.Submit(context.Background(), Request{Kind: operation.KindAnalyze, Path: "analyzers/a:analyze", Payload: URLPayload{URL: "https://x/y"}})
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotKey)
	assert.Empty(t, gotAuth)
	assert.Equal(t, operation.Handle("https://svc/ops/1"), sub.Handle)
	assert.Equal(t, "1", sub.Handle.OperationID())
}

func TestSubmit_BearerTokenWhenNoKey(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(HeaderSubscriptionKey)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set(HeaderOperationLocation, "https://svc/ops/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, func(cfg *Config) {
		cfg.SubscriptionKey = ""
		cfg.Tokens = StaticToken("abc")
	})
	_, err := c.Submit(context.Background(), Request{Kind: operation.KindAnalyze, Path: "analyzers/a:analyze", Payload: URLPayload{URL: "https://x/y"}})
	require.NoError(t, err)
	assert.Empty(t, gotKey)
	assert.Equal(t, "Bearer abc", gotAuth)
}

type failingTokens struct{}

func (failingTokens) Token(context.Context) (string, error) {
	return "", errors.New("credential expired")
}

func TestSubmit_TokenFailureIsAuthErrorAndSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, func(cfg *Config) {
		cfg.SubscriptionKey = ""
		cfg.Tokens = failingTokens{}
	})
	_, err := c.Submit(context.Background(), Request{Kind: operation.KindAnalyze, Path: "analyzers/a:analyze", Payload: URLPayload{URL: "https://x/y"}})
	assert.ErrorIs(t, err, operation.ErrAuth)
	assert.Contains(t, err.Error(), "credential expired")
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestSubmit_MissingOperationLocationIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	_, err := c.Submit(context.Background(), Request{Kind: operation.KindAnalyze, Path: "analyzers/a:analyze", Payload: URLPayload{URL: "https://x/y"}})

	var se *operation.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusAccepted, se.StatusCode)
	assert.Contains(t, se.Reason, HeaderOperationLocation)
}

func TestSubmit_NonSuccessKeepsServiceDetail(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"InvalidRequest","message":"bad field","innererror":{"code":"InvalidFieldSchema","message":"unknown type"}}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	_, err := c.CreateAnalyzer(context.Background(), "demo", NewObject())

	var se *operation.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, operation.ErrSubmission)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "InvalidRequest", se.Detail.Code)
	assert.Contains(t, err.Error(), "InvalidFieldSchema: unknown type")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "submissions are never retried")
}

func TestSubmit_UnparseableBodyKeepsLeadingPart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, strings.Repeat("x", 900))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	_, err := c.AnalyzeURL(context.Background(), "a", "https://x/y")

	var se *operation.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Detail.Raw, 500)
}

func TestSubmit_ClosedServerIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, _ := newTestClient(t, srv, nil)
	srv.Close()

	_, err := c.AnalyzeURL(context.Background(), "a", "https://x/y")
	assert.ErrorIs(t, err, operation.ErrTransport)
}

func TestAnalyzePayloads(t *testing.T) {
	var bodies []string
	var types []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `{"status":"succeeded","result":{}}`)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		types = append(types, r.Header.Get("Content-Type"))
		mu.Unlock()
		assert.True(t, strings.HasSuffix(r.URL.Path, "/analyzers/inv:analyze"), r.URL.Path)
		w.Header().Set(HeaderOperationLocation, "http://"+r.Host+"/ops/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	ctx := context.Background()

	_, err := c.AnalyzeURL(ctx, "inv", "https://store/a.pdf?sig=1&se=2")
	require.NoError(t, err)
	_, err = c.AnalyzeBatch(ctx, "inv", []string{"https://store/a.pdf", "https://store/b.pdf"})
	require.NoError(t, err)
	_, err = c.AnalyzeBinary(ctx, "inv", strings.NewReader("%PDF-1.7"), "")
	require.NoError(t, err)

	require.Len(t, bodies, 3)
	assert.Equal(t, `{"url":"https://store/a.pdf?sig=1&se=2"}`, bodies[0])
	assert.JSONEq(t, `{"inputs":[{"url":"https://store/a.pdf"},{"url":"https://store/b.pdf"}]}`, bodies[1])
	assert.Equal(t, "%PDF-1.7", bodies[2])
	assert.Equal(t, []string{"application/json", "application/json", "application/octet-stream"}, types)
}

func TestListAnalyzers_FollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contentunderstanding/analyzers", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("api-version"))
		switch r.URL.Query().Get("skip") {
		case "":
			fmt.Fprintf(w, `{"value":[{"analyzerId":"a"},{"analyzerId":"b"}],"nextLink":%q}`,
				srv.URL+"/contentunderstanding/analyzers?skip=2&api-version="+DefaultAPIVersion)
		case "2":
			fmt.Fprint(w, `{"value":[{"analyzerId":"c"}],"nextLink":"contentunderstanding/analyzers?skip=3"}`)
		default:
			fmt.Fprint(w, `{"value":[]}`)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	items, err := c.ListAnalyzers(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		id, _ := it.StringField("analyzerId")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestListAnalyzers_DetectsLinkLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[],"nextLink":"contentunderstanding/analyzers?skip=1"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	_, err := c.ListAnalyzers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop")
}

func TestDeleteAnalyzer(t *testing.T) {
	codes := map[string]int{"/contentunderstanding/analyzers/gone": 404, "/contentunderstanding/analyzers/ok": 204, "/contentunderstanding/analyzers/locked": 409}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(codes[r.URL.Path])
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	ctx := context.Background()
	assert.NoError(t, c.DeleteAnalyzer(ctx, "ok"))
	assert.NoError(t, c.DeleteAnalyzer(ctx, "gone"))
	assert.ErrorIs(t, c.DeleteAnalyzer(ctx, "locked"), operation.ErrSubmission)
}

func TestGetResultFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contentunderstanding/analyzerResults/op-7/files/keyFrame.400", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, nil)
	f, err := c.GetResultFile(context.Background(), "op-7", "keyFrame.400")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", f.ContentType)
	assert.Equal(t, []byte{0xff, 0xd8}, f.Data)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Endpoint: "not a url", SubscriptionKey: "k"})
	assert.Error(t, err)

	_, err = New(Config{Endpoint: "https://svc.example.com"})
	assert.ErrorIs(t, err, ErrNoCredentials)

	c, err := New(Config{Endpoint: "https://svc.example.com/", SubscriptionKey: "k"})
	require.NoError(t, err)
	assert.Equal(t,
		"https://svc.example.com/contentunderstanding/analyzers/a%20b?api-version="+DefaultAPIVersion,
		c.resourceURL(analyzerPath("a b", ""), nil))
	normal, long := c.Timeouts()
	assert.Equal(t, DefaultTimeout, normal)
	assert.Equal(t, LongTimeout, long)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "succeeded", Outcome(nil))
	assert.Equal(t, "failed", Outcome(&operation.OperationFailedError{}))
	assert.Equal(t, "timed_out", Outcome(&operation.TimeoutError{}))
	assert.Equal(t, "rejected", Outcome(&operation.SubmissionError{}))
	assert.Equal(t, "auth_error", Outcome(&operation.AuthError{Err: errors.New("x")}))
	assert.Equal(t, "cancelled", Outcome(fmt.Errorf("poll: %w", context.Canceled)))
}
