package jobsched

import (
	"errors"
	"fmt"
)

// Sentinel errors covering the taxonomy a scheduler run can surface.
// Callers should compare with errors.Is, not direct equality, since most
// of these are wrapped with contextual detail before they reach the user.
var (
	// ErrCycleDetected means the requirement graph is not a DAG.
	ErrCycleDetected = errors.New("jobsched: cycle detected in requirement graph")

	// ErrNoEntryPoint means the scheduler has no jobs, or none are startable.
	ErrNoEntryPoint = errors.New("jobsched: scheduler has no entry point")

	// ErrCrossSchedulerRequirement means a requirement edge was attempted
	// between jobs already bound to two different schedulers.
	ErrCrossSchedulerRequirement = errors.New("jobsched: requirement spans two schedulers")

	// ErrTimedOut means the scheduler's global deadline fired before the
	// run reached a success terminal state.
	ErrTimedOut = errors.New("jobsched: timed out")

	// ErrCancelled means the run's context was cancelled externally.
	ErrCancelled = errors.New("jobsched: cancelled")

	// ErrNotYetDone means Result was called on a job that has not reached
	// the done state.
	ErrNotYetDone = errors.New("jobsched: job is not yet done")

	// ErrNoResult means Result was called on a job whose outcome is an
	// exception or a cancellation, neither of which carries a value.
	ErrNoResult = errors.New("jobsched: job has no result")

	// ErrAlreadyRunning means CoRun was called on a scheduler that is
	// presently running, or that holds a mix of done and idle jobs left
	// over from an interrupted prior run.
	ErrAlreadyRunning = errors.New("jobsched: scheduler is already running or was left in an unrunnable partial state")
)

// JobError pairs a job with the error it raised. The scheduler does not
// build one itself: a job's outcome stores the error its body returned
// as is, and RaisedException returns that error unwrapped.
type JobError struct {
	Job Job
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("jobsched: job %q raised: %v", e.Job.Label(), e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// CriticalFailureError is the error a scheduler run returns when a
// critical job (or a critical nested scheduler) finished with an
// exception outcome. Enclosing schedulers observe a nested scheduler's
// CriticalFailureError as that nested scheduler job's own raised
// exception.
type CriticalFailureError struct {
	Job Job
	Err error
}

func (e *CriticalFailureError) Error() string {
	return fmt.Sprintf("jobsched: critical failure in job %q: %v", e.Job.Label(), e.Err)
}

func (e *CriticalFailureError) Unwrap() error { return e.Err }

// IsErrCycleDetected reports whether err is or wraps ErrCycleDetected.
func IsErrCycleDetected(err error) bool { return errors.Is(err, ErrCycleDetected) }

// IsErrNoEntryPoint reports whether err is or wraps ErrNoEntryPoint.
func IsErrNoEntryPoint(err error) bool { return errors.Is(err, ErrNoEntryPoint) }

// IsErrCrossSchedulerRequirement reports whether err is or wraps
// ErrCrossSchedulerRequirement.
func IsErrCrossSchedulerRequirement(err error) bool {
	return errors.Is(err, ErrCrossSchedulerRequirement)
}

// IsCriticalFailure reports whether err is or wraps a CriticalFailureError.
func IsCriticalFailure(err error) bool {
	var cfe *CriticalFailureError
	return errors.As(err, &cfe)
}

// IsErrTimedOut reports whether err is or wraps ErrTimedOut.
func IsErrTimedOut(err error) bool { return errors.Is(err, ErrTimedOut) }

// IsErrCancelled reports whether err is or wraps ErrCancelled.
func IsErrCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
