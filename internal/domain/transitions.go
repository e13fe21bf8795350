package domain

import "fmt"

// The transition rules below are the single authority on which status changes
// are legal. Handlers and the poller never compare statuses ad hoc; they ask
// these functions and persist whatever comes back.
//
// Reachability: uploaded only from not_submitted, uploaded or failed
// (retry-by-re-upload); processing only from uploaded; completed and failed
// only from processing via a remote result, or failed directly from uploaded
// when the trigger call itself fails. completed and failed are terminal.

// CanUpload reports whether documents may be uploaded to a job in the given
// status.
func CanUpload(s JobStatus) bool {
	switch s {
	case JobStatusNotSubmitted, JobStatusUploaded, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CanTrigger reports whether extraction may be triggered for a job in the
// given status.
func CanTrigger(s JobStatus) bool {
	return s == JobStatusUploaded
}

// AfterUploadSuccess returns the status a job moves to once an upload has
// fully succeeded. Re-uploading to an already uploaded job is idempotent.
func AfterUploadSuccess(current JobStatus) (JobStatus, error) {
	if !CanUpload(current) {
		return current, fmt.Errorf("%w: cannot upload to job in status %q", ErrPrecondition, current)
	}
	return JobStatusUploaded, nil
}

// AfterTriggerSuccess returns the status a job moves to once the runner has
// accepted a trigger call.
func AfterTriggerSuccess(current JobStatus) (JobStatus, error) {
	if !CanTrigger(current) {
		return current, fmt.Errorf("%w: cannot trigger job in status %q", ErrPrecondition, current)
	}
	return JobStatusProcessing, nil
}

// AfterTriggerFailure returns the status a job moves to when the runner
// rejected or failed the trigger call. This is the only path to failed that
// does not go through the poller.
func AfterTriggerFailure(current JobStatus) (JobStatus, error) {
	if !CanTrigger(current) {
		return current, fmt.Errorf("%w: cannot trigger job in status %q", ErrPrecondition, current)
	}
	return JobStatusFailed, nil
}

// ApplyRemoteState maps a fetched run state onto a local status. It is a
// no-op unless the job is currently processing, which makes re-applying an
// already-applied remote result idempotent: a terminal local status is never
// moved again.
func ApplyRemoteState(current JobStatus, run RunState) JobStatus {
	if current != JobStatusProcessing {
		return current
	}
	if !run.Terminated() {
		return JobStatusProcessing
	}
	if run.Result == RunResultSuccess {
		return JobStatusCompleted
	}
	return JobStatusFailed
}

// ProgressPercent maps a status (and, while processing, the remote lifecycle)
// onto a coarse display percentage. The value is a presentation heuristic
// only; the one property callers may rely on is that it does not decrease
// until the job reaches a terminal status.
func ProgressPercent(status JobStatus, lifecycle RunLifecycle) int {
	switch status {
	case JobStatusNotSubmitted:
		return 0
	case JobStatusUploaded:
		return 5
	case JobStatusProcessing:
		if lifecycle == RunLifecycleRunning {
			return 50
		}
		return 10
	case JobStatusCompleted:
		return 100
	default:
		return 0
	}
}
