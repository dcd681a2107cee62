// Package service owns the state of a report generation: it validates the
// filter form, consults the cache, starts the job, polls it to completion and
// delivers the artifact.
package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/metrics"
	"github.com/dipak0000812/credtrack/internal/notify"
	"github.com/dipak0000812/credtrack/internal/report/artifact"
	"github.com/dipak0000812/credtrack/internal/report/cache"
	"github.com/dipak0000812/credtrack/internal/report/client"
	"github.com/dipak0000812/credtrack/internal/report/model"
	"github.com/dipak0000812/credtrack/internal/report/poller"
	"github.com/dipak0000812/credtrack/internal/report/retry"
	"github.com/dipak0000812/credtrack/internal/report/state"
)

// ErrAlreadyGenerating is returned when Generate is called while a job is
// still being polled.
var ErrAlreadyGenerating = errors.New("a report is already being generated")

// Mode selects how a finished report is consumed.
type Mode string

const (
	// ModeDownload writes the CSV to a file and marks the job downloaded.
	ModeDownload Mode = "download"

	// ModeDisplay parses the CSV into rows.
	ModeDisplay Mode = "display"
)

// IsValid checks if the mode is known.
func (m Mode) IsValid() bool {
	return m == ModeDownload || m == ModeDisplay
}

// API is the subset of the report API the controller uses.
type API interface {
	Generate(ctx context.Context, kind model.Kind, filters model.Filters) (string, error)
	Status(ctx context.Context, jobID string) (*client.JobStatus, error)
	Download(ctx context.Context, jobID string) (io.ReadCloser, error)
	MarkDownloaded(ctx context.Context, jobID string) error
}

// Request is one submission of the filter form.
type Request struct {
	Filters model.Filters
	Mode    Mode

	// OutDir is where ModeDownload writes the file.
	OutDir string
}

// State is a snapshot of the controller.
type State struct {
	// Generating is true from a successful start request until the job
	// reaches a terminal outcome or the controller is reset.
	Generating bool

	// JobID is the job being polled. Cleared on every terminal path.
	JobID string

	Phase state.Phase
	Retry retry.State

	// Job is the last submitted job, nil after a reset or a cache hit.
	Job *model.Job

	// Headers and Rows hold the parsed report in ModeDisplay.
	Headers []string
	Rows    []artifact.Row

	// SavedPath is the file written in ModeDownload.
	SavedPath string

	// FromCache is true when the report was served from the cache.
	FromCache bool

	// Err is the terminal failure of the last job, if any.
	Err error
}

// Config wires a Controller.
type Config struct {
	Kind     model.Kind
	API      API
	Cache    *cache.Cache // Optional
	Notifier notify.Notifier
	Policy   retry.Policy
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Controller runs one report flavor. It handles one job at a time.
type Controller struct {
	kind     model.Kind
	api      API
	fetcher  *artifact.Fetcher
	cache    *cache.Cache
	notifier notify.Notifier
	policy   retry.Policy
	machine  *state.PhaseMachine
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu       sync.Mutex
	st       State
	gen      uint64 // Incremented on reset; stale poll results are dropped
	starting bool   // A start request or cache lookup is in flight
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Kind.Validate(); err != nil {
		return nil, err
	}
	if cfg.API == nil {
		return nil, errors.New("report API is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLog(cfg.Log)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Policy.MaxRetries <= 0 || cfg.Policy.InitialDelay <= 0 {
		cfg.Policy = retry.DefaultPolicy()
	}

	log := cfg.Log.With(zap.String("kind", cfg.Kind.Name))
	return &Controller{
		kind:     cfg.Kind,
		api:      cfg.API,
		fetcher:  artifact.NewFetcher(cfg.API, log),
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		policy:   cfg.Policy,
		machine:  state.NewPhaseMachine(),
		metrics:  cfg.Metrics,
		log:      log,
		st: State{
			Phase: state.IDLE,
			Retry: cfg.Policy.Initial(),
		},
	}, nil
}

// Generate submits the filter form.
//
// Only one submission is handled at a time: while a job is being started or
// polled, Generate returns ErrAlreadyGenerating without touching the state.
// Missing fields fail with model.ErrMissingRequiredFields before any network
// call. A fresh cache entry is delivered synchronously without contacting
// the API. Otherwise the job is started, Generating is set and polling runs
// in the background until the job ends; use Wait to block on it.
func (c *Controller) Generate(ctx context.Context, req Request) error {
	if req.Mode == "" {
		req.Mode = ModeDisplay
	}
	if !req.Mode.IsValid() {
		return errors.Newf("invalid mode: %s", req.Mode)
	}
	filters := req.Filters.Normalize()

	c.mu.Lock()
	if c.st.Generating || c.starting {
		c.mu.Unlock()
		return ErrAlreadyGenerating
	}
	if err := filters.Validate(c.kind.Requires); err != nil {
		c.st.Err = err
		c.mu.Unlock()
		c.log.Warn("invalid report filters", zap.Error(err))
		c.notifier.Notify(notify.Notification{
			Type:        notify.Error,
			Title:       "Invalid filters",
			Description: err.Error(),
		})
		return err
	}
	c.resetLocked()
	c.starting = true
	gen := c.gen
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	query := filters.Query()
	if content, ok := c.cached(ctx, filters.AgencyID, query); ok {
		return c.deliverCached(ctx, gen, req, content)
	}

	c.metrics.ReportsStarted.WithLabelValues(c.kind.Name).Inc()
	jobID, err := c.api.Generate(ctx, c.kind, filters)
	if err != nil {
		c.log.Error("failed to start report", zap.Error(err))
		c.metrics.ReportsFailed.WithLabelValues(c.kind.Name, "start").Inc()
		c.fail(gen, notify.Notification{
			Type:        notify.Error,
			Title:       "Report generation failed",
			Description: err.Error(),
		}, err)
		return err
	}

	job := &model.Job{
		ID:        jobID,
		Kind:      c.kind.Name,
		Filters:   filters,
		Status:    state.PENDING,
		CreatedAt: time.Now(),
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	if c.gen != gen {
		// Reset while the start request was in flight. The server job is
		// left to expire.
		c.mu.Unlock()
		cancel()
		c.log.Warn("report started after a reset, not polling it", zap.String("job_id", jobID))
		c.notifier.Notify(notify.Notification{
			Type:        notify.Info,
			Title:       "Report generation cancelled",
			Description: "the report was reset before its job started",
		})
		return errors.Wrapf(context.Canceled, "report job %s", jobID)
	}
	c.st.Generating = true
	c.st.JobID = jobID
	c.st.Job = job
	c.st.Retry = c.policy.Initial()
	c.setPhaseLocked(state.POLLING)
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.log.Info("report generation started", zap.String("job_id", jobID), zap.String("params", query))

	p := poller.New(c.api, c.policy,
		poller.WithLogger(c.log),
		poller.WithObserver(func(e poller.Event) { c.observe(gen, e) }),
		poller.WithMetrics(poller.Metrics{
			Request: c.metrics.PollRequests.Inc,
			Retry:   c.metrics.PollRetries.Inc,
		}))

	go func() {
		defer close(done)
		defer cancel()
		outcome, err := p.Run(pollCtx, jobID)
		c.finish(pollCtx, gen, req, job, query, outcome, err)
	}()
	return nil
}

// Wait blocks until the current job ends or ctx is done, and returns the
// job's terminal error.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.Err
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.st
	if s.Job != nil {
		job := *s.Job
		s.Job = &job
	}
	s.Headers = append([]string(nil), s.Headers...)
	s.Rows = append([]artifact.Row(nil), s.Rows...)
	return s
}

// Reset stops polling and forgets the current job, its retry state and its
// results. The phase returns to idle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Close resets the controller and waits for the polling goroutine to exit.
func (c *Controller) Close() error {
	c.mu.Lock()
	done := c.done
	c.resetLocked()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (c *Controller) resetLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.done = nil
	c.st = State{
		Phase: state.IDLE,
		Retry: c.policy.Initial(),
	}
}

func (c *Controller) setPhaseLocked(to state.Phase) {
	if err := c.machine.ValidateTransition(c.st.Phase, to); err != nil {
		c.log.Error("invalid phase transition", zap.Error(err))
		return
	}
	c.st.Phase = to
}

func (c *Controller) observe(gen uint64, e poller.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.st.Retry = e.Retry
	if e.Phase != c.st.Phase && c.machine.CanTransition(c.st.Phase, e.Phase) {
		c.st.Phase = e.Phase
	}
}

func (c *Controller) cached(ctx context.Context, agency, query string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	e, ok := c.cache.Get(ctx, agency, c.kind.Name, query)
	if !ok {
		c.metrics.CacheMisses.WithLabelValues(c.kind.Name).Inc()
		return "", false
	}
	c.metrics.CacheHits.WithLabelValues(c.kind.Name).Inc()
	c.log.Debug("serving report from cache", zap.String("params", query))
	return e.FileContent, true
}

func (c *Controller) deliverCached(ctx context.Context, gen uint64, req Request, content string) error {
	result, err := c.consume(ctx, req, "", content)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return context.Canceled
	}
	if err != nil {
		c.setPhaseLocked(state.ERRORED)
		c.st.Err = err
		c.metrics.ReportsFailed.WithLabelValues(c.kind.Name, "artifact").Inc()
		return err
	}
	c.setPhaseLocked(state.DONE)
	c.st.FromCache = true
	result.apply(&c.st)
	c.metrics.ReportsCompleted.WithLabelValues(c.kind.Name, "cache").Inc()
	return nil
}

// finish runs on the polling goroutine once the poller returns.
func (c *Controller) finish(ctx context.Context, gen uint64, req Request, job *model.Job, query string, outcome *poller.Outcome, pollErr error) {
	if pollErr != nil {
		if errors.Is(pollErr, context.Canceled) {
			return
		}
		reason, title := "poll", "Report generation failed"
		if errors.Is(pollErr, poller.ErrRetriesExhausted) {
			reason, title = "timeout", "Report generation timed out"
		}
		c.metrics.ReportsFailed.WithLabelValues(c.kind.Name, reason).Inc()
		c.end(gen, job, state.FAILED, nil, pollErr, &notify.Notification{
			Type:        notify.Error,
			Title:       title,
			Description: pollErr.Error(),
		})
		return
	}

	content := outcome.FileContent
	if content == "" {
		var err error
		content, err = c.fetcher.Fetch(ctx, job.ID)
		if err != nil {
			c.metrics.ReportsFailed.WithLabelValues(c.kind.Name, "artifact").Inc()
			c.end(gen, job, outcome.Status, nil, err, &notify.Notification{
				Type:        notify.Error,
				Title:       "Download failed",
				Description: artifact.ErrFetchFailed.Error(),
			})
			return
		}
	}
	c.metrics.ArtifactBytes.Observe(float64(len(content)))

	if c.cache != nil {
		if err := c.cache.Put(ctx, job.Filters.AgencyID, c.kind.Name, query, content); err != nil {
			c.log.Warn("failed to cache report", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	result, err := c.consume(ctx, req, job.ID, content)
	if err != nil {
		c.metrics.ReportsFailed.WithLabelValues(c.kind.Name, "artifact").Inc()
		c.end(gen, job, outcome.Status, nil, err, &notify.Notification{
			Type:        notify.Error,
			Title:       "Report could not be read",
			Description: err.Error(),
		})
		return
	}

	c.metrics.ReportsCompleted.WithLabelValues(c.kind.Name, "job").Inc()
	c.end(gen, job, outcome.Status, result, nil, nil)
}

// end records the terminal outcome of a job and clears the job id and
// generating flag.
func (c *Controller) end(gen uint64, job *model.Job, status state.Status, result *delivery, err error, n *notify.Notification) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}

	job.Status = status
	job.RecordError(err)
	c.st.Job = job
	c.st.Generating = false
	c.st.JobID = ""
	c.st.Err = err
	c.cancel = nil
	// An artifact failure after the job completed keeps the completed phase.
	target := state.DONE
	if err != nil {
		target = state.ERRORED
	}
	if c.st.Phase != target && c.machine.CanTransition(c.st.Phase, target) {
		c.st.Phase = target
	}
	if err == nil {
		result.apply(&c.st)
	}
	c.mu.Unlock()

	if n != nil {
		c.log.Error(n.Title, zap.String("job_id", job.ID), zap.Error(err))
		c.notifier.Notify(*n)
	}
}

// fail reports a start request that failed. The phase moves to failed
// unless the controller was reset meanwhile.
func (c *Controller) fail(gen uint64, n notify.Notification, err error) {
	c.mu.Lock()
	if c.gen == gen {
		c.st.Err = err
		if c.machine.CanTransition(c.st.Phase, state.ERRORED) {
			c.st.Phase = state.ERRORED
		}
	}
	c.mu.Unlock()
	c.notifier.Notify(n)
}

// delivery is what consume produced.
type delivery struct {
	headers []string
	rows    []artifact.Row
	path    string
}

func (d *delivery) apply(st *State) {
	if d == nil {
		return
	}
	st.Headers = d.headers
	st.Rows = d.rows
	st.SavedPath = d.path
}

// consume delivers report content in the requested mode. jobID is empty for
// cache hits, which are never marked downloaded.
func (c *Controller) consume(ctx context.Context, req Request, jobID, content string) (*delivery, error) {
	switch req.Mode {
	case ModeDownload:
		res, err := c.fetcher.Save(ctx, jobID, req.OutDir, c.kind.Filename, content)
		if err != nil {
			return nil, err
		}
		if res.MarkErr != nil {
			c.notifier.Notify(notify.Notification{
				Type:        notify.Warning,
				Title:       "Report downloaded",
				Description: "the report was saved but could not be marked as downloaded",
			})
		} else {
			c.notifier.Notify(notify.Notification{
				Type:        notify.Success,
				Description: "report saved to " + res.Path,
			})
		}
		return &delivery{path: res.Path}, nil

	case ModeDisplay:
		table, err := artifact.ParseCSV(content, c.kind.Headers)
		if err != nil {
			return nil, err
		}
		return &delivery{headers: table.Headers, rows: table.Rows}, nil

	default:
		return nil, errors.Newf("invalid mode: %s", req.Mode)
	}
}
