// Package poller implements the adaptive reconciliation loop. It queries the
// external runner only for jobs that are in flight, applies results through
// the domain transition rules, and schedules its own next cycle only while
// anything is still processing. Jobs that have settled never generate a
// remote call again, which keeps runner traffic proportional to in-flight
// work instead of total job count.
package poller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"extractd/internal/domain"
	"extractd/internal/infra"
)

// Options wires the collaborators a Poller needs.
type Options struct {
	Jobs     domain.JobRepository
	Runner   domain.Runner
	Activity domain.ActivityRepository
	Logger   infra.Logger
	Metrics  *infra.Metrics
	// Interval between cycles while jobs are in flight. Each wait is
	// jittered by ±20% to avoid thundering herds against the runner.
	Interval time.Duration
	// Timeout bounds every individual remote status fetch.
	Timeout time.Duration
	Now     func() time.Time
}

// Poller owns a two-state lifecycle: idle (no timer pending) or scheduled
// (a future cycle queued). Cycles are not reentrant; at most one runs at a
// time, and a manual refresh arriving mid-cycle is coalesced into a single
// follow-up cycle rather than racing it.
type Poller struct {
	jobs     domain.JobRepository
	runner   domain.Runner
	activity domain.ActivityRepository
	logger   infra.Logger
	metrics  *infra.Metrics
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	ticking bool
	rerun   bool
	wg      sync.WaitGroup
}

// New builds a Poller. Start must be called before it does anything.
func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		jobs:     opts.Jobs,
		runner:   opts.Runner,
		activity: opts.Activity,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		now:      opts.Now,
	}
}

// Start binds the poller to a lifetime context and runs an initial cycle so
// jobs left in flight by a previous process resume being reconciled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	p.Refresh()
}

// Refresh requests an immediate reconciliation cycle. If a cycle is already
// running the request is folded into it: the running cycle is followed by
// exactly one more, with no duplicate remote calls for the same job within a
// cycle. If the poller is idle or merely scheduled, the pending timer is
// replaced by an immediate cycle.
func (p *Poller) Refresh() {
	p.mu.Lock()
	if p.ctx == nil || p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if p.ticking {
		p.rerun = true
		p.mu.Unlock()
		return
	}
	p.stopTimerLocked()
	p.ticking = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run()
}

// Shutdown cancels any pending timer unconditionally and waits for an
// in-flight cycle to drain. Results of remote calls still in progress are
// discarded rather than written after cancellation.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.stopTimerLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

// Scheduled reports whether a future cycle is queued.
func (p *Poller) Scheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil || p.ticking
}

func (p *Poller) run() {
	defer p.wg.Done()
	for {
		again := p.tick(p.ctx)

		p.mu.Lock()
		if p.ctx.Err() != nil {
			p.ticking = false
			p.mu.Unlock()
			return
		}
		if p.rerun {
			p.rerun = false
			p.mu.Unlock()
			continue
		}
		p.ticking = false
		if again {
			p.scheduleLocked()
		}
		p.mu.Unlock()
		return
	}
}

// tick runs one reconciliation cycle against a single store snapshot and
// reports whether any job is still in flight afterwards.
func (p *Poller) tick(ctx context.Context) bool {
	if p.metrics != nil {
		p.metrics.PollerTicks.Inc()
	}

	jobs, err := p.jobs.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error().Err(err).Msg("poller: load jobs")
		return true // store hiccup: retry on the next cycle
	}

	var active []domain.Job
	for _, j := range jobs {
		if j.Status == domain.JobStatusProcessing {
			active = append(active, j)
		}
	}
	if p.metrics != nil {
		p.metrics.ActiveJobs.Set(float64(len(active)))
	}
	if len(active) == 0 {
		p.logger.Debug().Msg("poller: no jobs in flight, going idle")
		return false
	}

	stillActive := 0
	for i := range active {
		job := active[i]
		if ctx.Err() != nil {
			return false
		}
		if job.ExternalRunID == nil {
			// Violates the run-id invariant; nothing to poll. Leave it for
			// manual repair rather than inventing a transition.
			p.logger.Error().Str("job_id", job.ID).Msg("poller: processing job without run id")
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		state, err := p.runner.GetRunStatus(callCtx, *job.ExternalRunID)
		cancel()
		if err != nil {
			// Transient by definition: a failed status fetch says nothing
			// about the remote job's outcome. Retry next cycle.
			p.countRunnerCall(false)
			if ctx.Err() != nil {
				return false
			}
			p.logger.Warn().Err(err).Str("job_id", job.ID).Int64("run_id", *job.ExternalRunID).
				Msg("poller: status fetch failed, will retry")
			stillActive++
			continue
		}
		p.countRunnerCall(true)
		if ctx.Err() != nil {
			return false // shutdown raced the call; discard its result
		}

		if p.apply(ctx, job, state) {
			stillActive++
		}
	}

	if p.metrics != nil {
		p.metrics.ActiveJobs.Set(float64(stillActive))
	}
	return stillActive > 0
}

// apply feeds one remote state through the transition rules and persists the
// outcome. It reports whether the job is still in flight afterwards.
func (p *Poller) apply(ctx context.Context, job domain.Job, state domain.RunState) bool {
	next := domain.ApplyRemoteState(job.Status, state)
	progress := domain.ProgressPercent(next, state.Lifecycle)

	if next == job.Status {
		// Still running remotely. Nudge the displayed progress forward when
		// the lifecycle advanced; never backwards.
		if progress > job.ProgressHint {
			patch := domain.JobPatch{Status: job.Status, ProgressHint: &progress}
			if _, err := p.jobs.UpdateStatus(ctx, job.ID, job.Status, patch); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.ID).Msg("poller: persist progress")
			}
		}
		return true
	}

	patch := domain.JobPatch{Status: next, ProgressHint: &progress}
	completed := p.now()
	patch.CompletedAt = &completed
	if next == domain.JobStatusCompleted {
		patch.ClearErrorMessage = true
	}
	if next == domain.JobStatusFailed {
		msg := state.Message
		if msg == "" {
			msg = "processing failed"
		}
		patch.ErrorMessage = &msg
	}

	ok, err := p.jobs.UpdateStatus(ctx, job.ID, job.Status, patch)
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("poller: persist transition")
		return true // write failed; re-evaluate next cycle
	}
	if !ok {
		// Someone else transitioned the job between our snapshot and now.
		// Their write wins; drop ours.
		if p.metrics != nil {
			p.metrics.PollConflict.Inc()
		}
		p.logger.Debug().Str("job_id", job.ID).Msg("poller: conditional update lost race, dropped")
		return false
	}

	entry := &domain.ActivityEntry{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		EventType:  domain.ActivityReconcile,
		FromStatus: job.Status,
		ToStatus:   next,
		Message:    "remote run " + string(state.Lifecycle),
		Detail:     state.Message,
	}
	if err := p.activity.Record(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("poller: record activity")
	}
	if p.metrics != nil {
		p.metrics.Transitions.WithLabelValues(string(job.Status), string(next)).Inc()
	}
	p.logger.Info().Str("job_id", job.ID).Str("from", string(job.Status)).Str("to", string(next)).
		Msg("poller: job reconciled")
	return false
}

func (p *Poller) scheduleLocked() {
	p.timer = time.AfterFunc(p.jitteredInterval(), func() {
		p.mu.Lock()
		p.timer = nil
		p.mu.Unlock()
		p.Refresh()
	})
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// jitteredInterval spreads ticks across ±20% of the configured interval.
func (p *Poller) jitteredInterval() time.Duration {
	spread := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(p.interval) * spread)
}

func (p *Poller) countRunnerCall(ok bool) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	p.metrics.RunnerCalls.WithLabelValues("get_run_status", outcome).Inc()
}
