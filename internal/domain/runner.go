package domain

import "context"

// RunLifecycle is the coarse lifecycle state reported by the external runner
// for one run.
type RunLifecycle string

const (
	RunLifecyclePending    RunLifecycle = "PENDING"
	RunLifecycleRunning    RunLifecycle = "RUNNING"
	RunLifecycleTerminated RunLifecycle = "TERMINATED"
)

// RunResult is the outcome of a terminated run. It is empty while the run is
// still pending or running.
type RunResult string

const (
	RunResultSuccess RunResult = "SUCCESS"
	RunResultFailure RunResult = "FAILURE"
)

// RunState is the remote truth for a single run, as fetched from the runner.
type RunState struct {
	Lifecycle RunLifecycle
	Result    RunResult
	Message   string
}

// Terminated reports whether the run has reached a final remote state.
func (s RunState) Terminated() bool {
	return s.Lifecycle == RunLifecycleTerminated
}

// TriggerParams are passed through to the runner when starting a run.
type TriggerParams struct {
	SchemaID string
}

// Runner wraps the remote batch-compute API. Implementations must honor the
// caller's context deadline; every call made by this service carries one.
type Runner interface {
	// TriggerRun starts a run for the given job and returns the runner's id.
	TriggerRun(ctx context.Context, jobID string, params TriggerParams) (int64, error)
	// GetRunStatus fetches the current remote state of a run.
	GetRunStatus(ctx context.Context, runID int64) (RunState, error)
}
