package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrPrecondition marks an operation that is invalid for the job's
	// current status. It never mutates state.
	ErrPrecondition = errors.New("precondition violation")
	// ErrConflict marks a conditional update that lost a race with a
	// concurrent writer. Callers drop the write and re-evaluate from fresh
	// store state.
	ErrConflict = errors.New("conflicting update")
	// ErrTrigger marks a rejected or failed trigger call. The job is moved
	// to failed with the cause recorded.
	ErrTrigger = errors.New("trigger failed")
)

// IsPrecondition reports whether err is a precondition violation.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}
