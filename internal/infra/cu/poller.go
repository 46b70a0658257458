package cu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanwahyu/cu-orchestrator/internal/application"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// Poller drives one operation handle to a terminal state.
type Poller struct {
	client *Client
	Policy PollPolicy
	Clock  application.Clock
}

// Wait polls handle until it succeeds, fails or timeout elapses. A zero
// timeout uses the client default. Exactly one GET is issued per attempt and
// nothing is sent after a terminal status or the deadline; a GET still in
// flight at the deadline is abandoned and reported as a timeout.
func (p *Poller) Wait(ctx context.Context, handle operation.Handle, timeout time.Duration) (*operation.Envelope, error) {
	if timeout <= 0 {
		timeout = p.client.timeout
	}
	ctx, span := p.client.tel.tracer.Start(ctx, "cu.poll", trace.WithAttributes(
		attribute.String("cu.operation", handle.OperationID()),
		attribute.Int64("cu.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	log := p.client.log.With("operation", handle.OperationID())
	start := p.Clock.Now()
	deadline := start.Add(timeout)
	last := operation.StatusRunning
	polls := 0

	timedOut := func() error {
		err := &operation.TimeoutError{Handle: handle, Polls: polls, Elapsed: p.Clock.Now().Sub(start), Last: last}
		span.SetStatus(codes.Error, "timeout")
		log.Warn("cu.poll.timeout", "polls", polls, "elapsed_ms", err.Elapsed.Milliseconds())
		return err
	}
	stopped := func() error {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timedOut()
		}
		span.SetStatus(codes.Error, "cancelled")
		log.Info("cu.poll.cancelled", "polls", polls)
		return fmt.Errorf("poll %s: %w", handle.OperationID(), ctx.Err())
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, stopped()
		}
		if !p.Clock.Now().Before(deadline) {
			return nil, timedOut()
		}

		// the deadline also bounds an in-flight GET
		pollCtx, cancel := context.WithTimeout(ctx, deadline.Sub(p.Clock.Now()))
		env, err := p.poll(pollCtx, handle)
		expired := pollCtx.Err() != nil
		cancel()
		polls++
		if err != nil {
			if ctx.Err() != nil {
				return nil, stopped()
			}
			if expired {
				return nil, timedOut()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "poll")
			return nil, err
		}

		last = env.State()
		p.client.tel.poll(ctx, last)
		log.Debug("cu.poll.status", "attempt", attempt, "status", env.Status)

		switch last {
		case operation.StatusSucceeded:
			span.SetAttributes(attribute.Int("cu.polls", polls))
			log.Info("cu.poll.succeeded", "polls", polls, "elapsed_ms", p.Clock.Now().Sub(start).Milliseconds())
			return env, nil
		case operation.StatusFailed:
			detail := failureDetail(env)
			span.SetStatus(codes.Error, "failed")
			log.Warn("cu.poll.failed", "polls", polls, "detail", detail.Describe())
			return env, &operation.OperationFailedError{Handle: handle, Detail: detail, Envelope: env}
		}

		delay := p.Policy.Next(attempt)
		if remaining := deadline.Sub(p.Clock.Now()); delay > remaining {
			delay = remaining
		}
		if delay < 0 {
			delay = 0
		}
		select {
		case <-ctx.Done():
			return nil, stopped()
		case <-p.Clock.After(delay):
		}
	}
}

func (p *Poller) poll(ctx context.Context, handle operation.Handle) (*operation.Envelope, error) {
	resp, err := p.client.send(ctx, http.MethodGet, handle.String(), nil, "")
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, p.client.rejected("poll", resp, "")
	}
	env, err := DecodeEnvelope(resp.Body)
	if err != nil {
		return nil, p.client.rejected("poll", resp, err.Error())
	}
	return env, nil
}
