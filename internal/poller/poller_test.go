package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"extractd/internal/domain"
)

type memJobs struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	rejectAll   bool
	listErr     error
	updateCalls int
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) List(ctx context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memJobs) UpdateStatus(ctx context.Context, jobID string, expected domain.JobStatus, patch domain.JobPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.rejectAll {
		return false, nil
	}
	job, ok := m.jobs[jobID]
	if !ok || job.Status != expected {
		return false, nil
	}
	job.Status = patch.Status
	if patch.ClearExternalRunID {
		job.ExternalRunID = nil
	}
	if patch.ClearErrorMessage {
		job.ErrorMessage = ""
	}
	if patch.ClearCompletedAt {
		job.CompletedAt = nil
	}
	if patch.ExternalRunID != nil {
		job.ExternalRunID = patch.ExternalRunID
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = *patch.ErrorMessage
	}
	if patch.ProgressHint != nil {
		job.ProgressHint = *patch.ProgressHint
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	return true, nil
}

func (m *memJobs) status(t *testing.T, jobID string) domain.Job {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		t.Fatalf("job %s missing", jobID)
	}
	return *job
}

type scriptedRunner struct {
	mu        sync.Mutex
	calls     []int64
	state     domain.RunState
	err       error
	blockOnce chan struct{}
}

func (r *scriptedRunner) TriggerRun(ctx context.Context, jobID string, params domain.TriggerParams) (int64, error) {
	return 0, fmt.Errorf("not used")
}

func (r *scriptedRunner) GetRunStatus(ctx context.Context, runID int64) (domain.RunState, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runID)
	block := r.blockOnce
	r.blockOnce = nil
	state, err := r.state, r.err
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return domain.RunState{}, err
	}
	return state, nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type memActivity struct {
	mu      sync.Mutex
	entries []domain.ActivityEntry
}

func (a *memActivity) Record(ctx context.Context, entry *domain.ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *memActivity) ListRecent(ctx context.Context, limit, offset int) ([]domain.ActivityEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ActivityEntry(nil), a.entries...), nil
}

func (a *memActivity) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func runID(v int64) *int64 { return &v }

func newTestPoller(jobs *memJobs, runner *scriptedRunner, activity *memActivity, interval time.Duration) *Poller {
	return New(Options{
		Jobs:     jobs,
		Runner:   runner,
		Activity: activity,
		Logger:   zerolog.Nop(),
		Interval: interval,
		Timeout:  time.Second,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTickPollsOnlyProcessingJobs(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "a", Status: domain.JobStatusNotSubmitted},
		&domain.Job{ID: "b", Status: domain.JobStatusUploaded},
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 10},
		&domain.Job{ID: "d", Status: domain.JobStatusCompleted},
		&domain.Job{ID: "e", Status: domain.JobStatusFailed},
	)
	runner := &scriptedRunner{state: domain.RunState{Lifecycle: domain.RunLifecycleRunning}}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, time.Hour)

	again := p.tick(context.Background())
	if !again {
		t.Fatal("expected another cycle while a job is in flight")
	}
	if got := runner.calls; len(got) != 1 || got[0] != 555 {
		t.Fatalf("runner calls = %v, want exactly one for run 555", got)
	}
	// Running advances the displayed progress; the status stays put.
	c := jobs.status(t, "c")
	if c.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want processing", c.Status)
	}
	if c.ProgressHint != 50 {
		t.Fatalf("progress hint = %d, want 50", c.ProgressHint)
	}
}

func TestPollerSelfHaltsWhenJobsSettle(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 50},
	)
	runner := &scriptedRunner{state: domain.RunState{Lifecycle: domain.RunLifecycleTerminated, Result: domain.RunResultSuccess}}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, 5*time.Millisecond)
	defer p.Shutdown()

	p.Start(context.Background())
	waitFor(t, func() bool { return jobs.status(t, "c").Status == domain.JobStatusCompleted })
	waitFor(t, func() bool { return !p.Scheduled() })

	job := jobs.status(t, "c")
	if job.CompletedAt == nil {
		t.Fatal("completedAt not set")
	}
	if job.ProgressHint != 100 {
		t.Fatalf("progress hint = %d, want 100", job.ProgressHint)
	}
	if activity.count() != 1 {
		t.Fatalf("activity entries = %d, want 1", activity.count())
	}

	// Once settled, advancing time must produce no further remote calls.
	settled := runner.callCount()
	time.Sleep(50 * time.Millisecond)
	if runner.callCount() != settled {
		t.Fatalf("runner called after self-halt: %d -> %d", settled, runner.callCount())
	}
	if p.Scheduled() {
		t.Fatal("poller still scheduled after settling")
	}
}

func TestTickTimeoutIsTransient(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 10},
	)
	runner := &scriptedRunner{err: context.DeadlineExceeded}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, time.Hour)

	again := p.tick(context.Background())
	if !again {
		t.Fatal("timed-out fetch must keep the job scheduled for retry")
	}
	job := jobs.status(t, "c")
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want processing; a poll failure is not a job failure", job.Status)
	}
	if job.ErrorMessage != "" {
		t.Fatalf("errorMessage = %q, want empty", job.ErrorMessage)
	}
	if activity.count() != 0 {
		t.Fatalf("activity entries = %d, want 0", activity.count())
	}
}

func TestTickDropsLostConditionalUpdate(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 50},
	)
	jobs.rejectAll = true
	runner := &scriptedRunner{state: domain.RunState{Lifecycle: domain.RunLifecycleTerminated, Result: domain.RunResultFailure, Message: "oom"}}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, time.Hour)

	p.tick(context.Background())
	if activity.count() != 0 {
		t.Fatalf("activity recorded for a dropped update: %d entries", activity.count())
	}
	if jobs.updateCalls != 1 {
		t.Fatalf("update attempts = %d, want 1 (no retry within the cycle)", jobs.updateCalls)
	}
}

func TestRefreshCoalescesIntoRunningCycle(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 50},
	)
	release := make(chan struct{})
	runner := &scriptedRunner{
		state:     domain.RunState{Lifecycle: domain.RunLifecycleRunning},
		blockOnce: release,
	}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, time.Hour)
	defer p.Shutdown()

	p.Start(context.Background())
	waitFor(t, func() bool { return runner.callCount() == 1 })

	// Two refreshes while the first cycle is mid-flight collapse into one
	// follow-up cycle.
	p.Refresh()
	p.Refresh()
	close(release)

	waitFor(t, func() bool { return runner.callCount() == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := runner.callCount(); got != 2 {
		t.Fatalf("runner calls = %d, want 2 (coalesced refresh)", got)
	}
}

func TestShutdownCancelsPendingTimer(t *testing.T) {
	jobs := newMemJobs(
		&domain.Job{ID: "c", Status: domain.JobStatusProcessing, ExternalRunID: runID(555), ProgressHint: 50},
	)
	runner := &scriptedRunner{state: domain.RunState{Lifecycle: domain.RunLifecycleRunning}}
	activity := &memActivity{}
	p := newTestPoller(jobs, runner, activity, 10*time.Millisecond)

	p.Start(context.Background())
	waitFor(t, func() bool { return runner.callCount() >= 1 })
	p.Shutdown()

	settled := runner.callCount()
	time.Sleep(50 * time.Millisecond)
	if runner.callCount() != settled {
		t.Fatalf("runner called after shutdown: %d -> %d", settled, runner.callCount())
	}
	if p.Scheduled() {
		t.Fatal("timer survived shutdown")
	}

	// Refresh after shutdown is a no-op.
	p.Refresh()
	time.Sleep(20 * time.Millisecond)
	if runner.callCount() != settled {
		t.Fatal("refresh after shutdown triggered a cycle")
	}
}
