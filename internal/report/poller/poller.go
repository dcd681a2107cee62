// Package poller drives a report job to a terminal status.
package poller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/report/client"
	"github.com/dipak0000812/credtrack/internal/report/retry"
	"github.com/dipak0000812/credtrack/internal/report/state"
)

var (
	// ErrRetriesExhausted is returned when the job did not finish within
	// the retry ceiling.
	ErrRetriesExhausted = errors.New("report generation timed out")

	// ErrJobFailed is returned when the server reports the job as failed.
	ErrJobFailed = errors.New("report generation failed")
)

// StatusSource answers job status queries.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (*client.JobStatus, error)
}

// Event reports a phase or retry state change.
type Event struct {
	JobID string
	Phase state.Phase
	Retry retry.State
}

// Outcome is the result of a job that completed.
type Outcome struct {
	JobID  string
	Status state.Status

	// FileContent is the inline report text from the status response, if
	// the server sent one.
	FileContent string

	Requests int
	Retry    retry.State
}

// Poller polls job status at the current retry delay.
type Poller struct {
	src     StatusSource
	policy  retry.Policy
	machine *state.PhaseMachine
	log     *zap.Logger
	observe func(Event)
	metrics Metrics
}

// Metrics receives poll counters. Nil fields are skipped.
type Metrics struct {
	Request func()
	Retry   func()
}

// Option customizes a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// WithObserver registers a callback for every phase and retry change.
// It runs on the polling goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(p *Poller) { p.observe = fn }
}

// WithMetrics sets the poll counters.
func WithMetrics(m Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// New creates a poller.
func New(src StatusSource, policy retry.Policy, opts ...Option) *Poller {
	p := &Poller{
		src:     src,
		policy:  policy,
		machine: state.NewPhaseMachine(),
		log:     zap.NewNop(),
		observe: func(Event) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type result struct {
	status *client.JobStatus
	err    error
}

// run tracks the phase and retry state of a single Run call.
type run struct {
	*Poller
	jobID    string
	phase    state.Phase
	retry    retry.State
	requests int
}

// Run polls jobID until it completes, fails, exhausts the retry ceiling or
// ctx is cancelled. At most one status request is outstanding at a time; a
// tick that fires while a request is in flight is skipped.
func (p *Poller) Run(ctx context.Context, jobID string) (*Outcome, error) {
	if jobID == "" {
		return nil, errors.New("job ID is required")
	}

	r := &run{Poller: p, jobID: jobID, phase: state.IDLE, retry: p.policy.Initial()}
	r.setPhase(state.POLLING)

	ticker := time.NewTicker(r.retry.Delay)
	defer ticker.Stop()

	// Buffered so a request finishing after cancellation never blocks.
	results := make(chan result, 1)
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			r.setPhase(state.IDLE)
			return nil, ctx.Err()

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if inFlight {
				p.log.Debug("status request in flight, skipping tick", zap.String("job_id", jobID))
				continue
			}
			inFlight = true
			r.requests++
			if p.metrics.Request != nil {
				p.metrics.Request()
			}
			go func() {
				st, err := p.src.Status(ctx, jobID)
				results <- result{status: st, err: err}
			}()

		case res := <-results:
			inFlight = false
			if ctx.Err() != nil {
				r.setPhase(state.IDLE)
				return nil, ctx.Err()
			}

			outcome, done, err := r.handle(res)
			if done {
				return outcome, err
			}
			ticker.Reset(r.retry.Delay)
		}
	}
}

// handle applies one status response. done is true when polling must stop.
func (r *run) handle(res result) (*Outcome, bool, error) {
	if res.err != nil {
		r.log.Warn("status request failed",
			zap.String("job_id", r.jobID),
			zap.Int("retry_count", r.retry.Count),
			zap.Error(res.err))
		return r.retryOrFail(res.err)
	}

	st := res.status.Status
	switch {
	case st.IsSuccess():
		r.setPhase(state.DONE)
		r.log.Info("report job completed",
			zap.String("job_id", r.jobID),
			zap.String("status", string(st)),
			zap.Int("requests", r.requests))
		return &Outcome{
			JobID:       r.jobID,
			Status:      st,
			FileContent: res.status.FileContent,
			Requests:    r.requests,
			Retry:       r.retry,
		}, true, nil

	case st.IsTerminal():
		r.setPhase(state.ERRORED)
		err := ErrJobFailed
		if res.status.Error != "" {
			err = errors.Mark(errors.Newf("%s", res.status.Error), ErrJobFailed)
		}
		r.log.Error("report job failed", zap.String("job_id", r.jobID), zap.Error(err))
		return nil, true, err

	case st.IsTransient():
		r.log.Debug("report not ready",
			zap.String("job_id", r.jobID),
			zap.String("status", string(st)))
		return r.retryOrFail(nil)

	default:
		return r.retryOrFail(errors.Wrapf(state.ErrUnknownStatus, "%q", st))
	}
}

func (r *run) retryOrFail(cause error) (*Outcome, bool, error) {
	next, ok := r.policy.Advance(r.retry)
	if !ok {
		r.setPhase(state.ERRORED)
		err := ErrRetriesExhausted
		if cause != nil {
			err = errors.Mark(errors.Wrap(cause, ErrRetriesExhausted.Error()), ErrRetriesExhausted)
		}
		r.log.Error("report job exhausted retries",
			zap.String("job_id", r.jobID),
			zap.Int("retry_count", r.retry.Count),
			zap.Error(err))
		return nil, true, err
	}

	r.retry = next
	if r.metrics.Retry != nil {
		r.metrics.Retry()
	}
	r.log.Debug("retrying status request",
		zap.String("job_id", r.jobID),
		zap.Int("retry_count", next.Count),
		zap.Duration("retry_delay", next.Delay))
	r.emit()
	return nil, false, nil
}

func (r *run) setPhase(to state.Phase) {
	if err := r.machine.ValidateTransition(r.phase, to); err != nil {
		r.log.Error("invalid phase transition", zap.String("job_id", r.jobID), zap.Error(err))
		return
	}
	r.phase = to
	r.emit()
}

func (r *run) emit() {
	r.observe(Event{JobID: r.jobID, Phase: r.phase, Retry: r.retry})
}
