package jobsched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerState mirrors JobState when a Scheduler is used as a nested
// Job; a pure, never-nested Scheduler only ever occupies idle/running/done.
type SchedulerState int

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
	SchedulerDone
)

// Reason is the terminal condition a finished run settled on.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonOK              Reason = "ok"
	ReasonTimedOut        Reason = "timed_out"
	ReasonCriticalFailure Reason = "critical_failure"
	ReasonCancelled       Reason = "cancelled"
)

const defaultShutdownTimeout = time.Second

// Scheduler is the runtime engine: it admits a requirement graph, runs
// jobs as soon as their prerequisites are done, subject to an optional
// concurrency window and global timeout, and tears down deterministically
// on any terminal condition. A Scheduler is not itself a Job — wrap one in
// a NestedScheduler to embed it inside another Scheduler's graph.
type Scheduler struct {
	mu sync.Mutex

	id    uuid.UUID
	label string

	jobs   []Job
	jobSet map[Job]struct{}

	jobsWindow      int
	timeout         time.Duration
	shutdownTimeout time.Duration
	critical        bool
	forever         bool

	state  SchedulerState
	reason Reason

	logger    Logger
	observers []Observer

	// run-local state, valid only while state == SchedulerRunning.
	pending  map[Job]struct{}
	ready    []Job
	inFlight map[Job]struct{}
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

func WithJobsWindow(n int) Option     { return func(s *Scheduler) { s.jobsWindow = n } }
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.shutdownTimeout = d }
}
func WithSchedulerCritical(critical bool) Option {
	return func(s *Scheduler) { s.critical = critical }
}
func WithSchedulerForever(forever bool) Option {
	return func(s *Scheduler) { s.forever = forever }
}
func WithSchedulerLabel(label string) Option {
	return func(s *Scheduler) { s.label = label }
}
func WithLogger(l Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}
func WithObservers(obs ...Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, obs...) }
}

// NewScheduler builds an empty Scheduler ready to Add jobs to. Any items
// passed in are added immediately, equivalent to calling Add for each.
func NewScheduler(items ...any) (*Scheduler, error) {
	return newSchedulerWithOptions(items, nil)
}

// NewSchedulerWithOptions is NewScheduler plus construction-time Options
// (jobs window, timeout, critical default, logger, ...).
func NewSchedulerWithOptions(opts []Option, items ...any) (*Scheduler, error) {
	return newSchedulerWithOptions(items, opts)
}

func newSchedulerWithOptions(items []any, opts []Option) (*Scheduler, error) {
	s := &Scheduler{
		id:              uuid.New(),
		jobSet:          make(map[Job]struct{}),
		critical:        true,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          defaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	for _, it := range items {
		if _, err := s.Add(it); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Critical reports the scheduler's default criticality, inherited by any
// job added to it that doesn't pin its own.
func (s *Scheduler) Critical() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.critical
}

// Label returns the scheduler's display label.
func (s *Scheduler) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// Add inserts a Job or *Sequence into the scheduler, returning the same
// value back. Adding a job already present in this scheduler is a no-op.
// Per spec, inserting a Job that already belongs to a different scheduler
// is a programmer error the engine does not detect: the job is simply
// re-owned by this scheduler.
func (s *Scheduler) Add(item any) (any, error) {
	jobs, err := flattenAddable(item)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		if _, exists := s.jobSet[j]; exists {
			continue
		}
		s.jobSet[j] = struct{}{}
		s.jobs = append(s.jobs, j)
		j.jobCore().mu.Lock()
		j.jobCore().owner = s
		j.jobCore().mu.Unlock()
	}
	return item, nil
}

func flattenAddable(item any) ([]Job, error) {
	switch v := item.(type) {
	case Job:
		return []Job{v}, nil
	case *Sequence:
		return v.Jobs(), nil
	default:
		return nil, fmt.Errorf("jobsched: cannot add %T to a scheduler", item)
	}
}

// Update bulk-adds every item in items, stopping at the first error.
func (s *Scheduler) Update(items ...any) error {
	for _, it := range items {
		if _, err := s.Add(it); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops a job from the scheduler's job set and its edges, without
// preserving transitive ordering (contrast with BypassAndRemove).
func (s *Scheduler) Remove(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobSet[j]; !ok {
		return
	}
	delete(s.jobSet, j)
	for i, cand := range s.jobs {
		if cand == j {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			break
		}
	}
	for _, other := range s.jobs {
		_ = other.Unrequires(j)
	}
}

// Jobs returns the scheduler's job set in insertion order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// completion is what a dispatched job's goroutine reports back to the
// core loop; it is the only channel through which job state crosses
// goroutine boundaries, keeping ready/pending/inFlight/state mutation
// confined to the scheduler's own loop as spec's single-mutex design
// note requires.
type completion struct {
	job Job
	val any
	err error
}

// CoRun is the operation the scheduler performs: admit the graph, drive
// the ready-set/concurrency-window machinery to completion, and tear
// down. It returns true iff the run reached the ok terminal reason; a
// critical failure, global timeout, or external cancellation return
// false alongside a categorized error when this scheduler is itself
// critical (nil error, false, otherwise).
func (s *Scheduler) CoRun(ctx context.Context) (bool, error) {
	if err := s.admit(); err != nil {
		if errors.Is(err, errAlreadyDone) {
			return true, nil
		}
		return false, err
	}

	s.mu.Lock()
	s.state = SchedulerRunning
	s.reason = ReasonNone
	jobsWindow := s.jobsWindow
	shutdownTimeout := s.shutdownTimeout
	timeout := s.timeout
	s.pending = make(map[Job]struct{})
	s.ready = nil
	s.inFlight = make(map[Job]struct{})
	for _, j := range s.jobs {
		if !j.IsDone() {
			s.pending[j] = struct{}{}
		}
	}
	s.mu.Unlock()

	runCtx := ctx
	var cancelRun context.CancelFunc
	if timeout > 0 {
		runCtx, cancelRun = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancelRun = context.WithCancel(ctx)
	}
	defer cancelRun()

	completions := make(chan completion)
	reason := ReasonOK
	var culprit Job
	var culpritErr error

runLoop:
	for {
		s.advanceReady()
		s.dispatch(runCtx, jobsWindow, completions)

		if s.terminationReached() {
			reason = ReasonOK
			break runLoop
		}

		select {
		case comp := <-completions:
			s.applyCompletion(comp, runCtx)
			if j, err, ok := s.criticalFailure(comp); ok {
				reason = ReasonCriticalFailure
				culprit, culpritErr = j, err
				break runLoop
			}
		case <-runCtx.Done():
			if ctx.Err() != nil {
				reason = ReasonCancelled
			} else {
				reason = ReasonTimedOut
			}
			break runLoop
		}
	}

	s.teardown(runCtx, cancelRun, shutdownTimeout, completions)

	s.mu.Lock()
	s.state = SchedulerDone
	s.reason = reason
	label := s.label
	schedCritical := s.critical
	s.mu.Unlock()

	s.emitRunOutcome(reason)

	switch reason {
	case ReasonOK:
		return true, nil
	case ReasonCriticalFailure:
		err := &CriticalFailureError{Job: culprit, Err: culpritErr}
		s.logger.Error("scheduler critical failure", "scheduler", label, "job", culprit.Label(), "err", culpritErr)
		if schedCritical {
			return false, err
		}
		return false, nil
	case ReasonTimedOut:
		s.logger.Warn("scheduler timed out", "scheduler", label)
		if schedCritical {
			return false, ErrTimedOut
		}
		return false, nil
	case ReasonCancelled:
		s.logger.Warn("scheduler cancelled", "scheduler", label)
		if schedCritical {
			return false, ErrCancelled
		}
		return false, nil
	default:
		return false, nil
	}
}

// Run is the synchronous wrapper over CoRun: in Go there's no separate
// executor scope to spin up, so Run simply runs CoRun to completion on
// the calling goroutine.
func (s *Scheduler) Run(ctx context.Context) (bool, error) {
	return s.CoRun(ctx)
}

var errAlreadyDone = errors.New("jobsched: scheduler already completed successfully")

// admit validates the graph is runnable: a nonempty job set with no
// cycles. Re-running a scheduler whose jobs are all already done is a
// no-op success; re-running one holding a mix of done and idle jobs is
// unsupported and reported as ErrAlreadyRunning.
func (s *Scheduler) admit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SchedulerRunning {
		return ErrAlreadyRunning
	}
	if len(s.jobs) == 0 {
		return ErrNoEntryPoint
	}

	allDone, allIdle := true, true
	for _, j := range s.jobs {
		if !j.IsDone() {
			allDone = false
		}
		if !j.IsIdle() {
			allIdle = false
		}
	}
	if allDone {
		return errAlreadyDone
	}
	if !allIdle {
		return ErrAlreadyRunning
	}
	if !s.checkCyclesLocked() {
		return ErrCycleDetected
	}
	return nil
}

// advanceReady moves every pending job whose prerequisites are all done
// into the ready queue, preserving insertion order for deterministic
// tie-breaking.
func (s *Scheduler) advanceReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if _, isPending := s.pending[j]; !isPending {
			continue
		}
		if s.prerequisitesDone(j) {
			delete(s.pending, j)
			s.ready = append(s.ready, j)
		}
	}
}

func (s *Scheduler) prerequisitesDone(j Job) bool {
	for _, req := range j.jobCore().requiredJobs() {
		if !req.IsDone() {
			return false
		}
	}
	return true
}

// dispatch pops ready jobs and starts them on their own goroutine, up to
// the concurrency window, and reports their completion back on
// completions once their CoRun returns.
func (s *Scheduler) dispatch(ctx context.Context, jobsWindow int, completions chan completion) {
	for {
		s.mu.Lock()
		if len(s.ready) == 0 {
			s.mu.Unlock()
			return
		}
		if jobsWindow > 0 && len(s.inFlight) >= jobsWindow {
			s.mu.Unlock()
			return
		}
		j := s.ready[0]
		s.ready = s.ready[1:]
		s.inFlight[j] = struct{}{}
		s.mu.Unlock()

		j.jobCore().transitionTo(StateScheduled)
		j.jobCore().transitionTo(StateRunning)
		s.logger.Debug("job dispatched", "scheduler", s.Label(), "job", j.Label())
		s.emitJobEvent(j, "started")

		go func(job Job) {
			val, err := job.CoRun(ctx)
			completions <- completion{job: job, val: val, err: err}
		}(j)
	}
}

// applyCompletion records a job's outcome and removes it from inFlight.
// ctx is the run context the job was dispatched with; if it is already
// done, a returned error is attributed to cancellation rather than to a
// genuine exception.
func (s *Scheduler) applyCompletion(comp completion, ctx context.Context) {
	outcome := classifyOutcome(comp, ctx)
	comp.job.jobCore().finish(outcome)

	s.mu.Lock()
	delete(s.inFlight, comp.job)
	s.mu.Unlock()

	switch outcome.Kind {
	case OutcomeException:
		s.logger.Warn("job raised", "scheduler", s.Label(), "job", comp.job.Label(), "err", outcome.Err)
		s.emitJobEvent(comp.job, "failed")
	case OutcomeCancelled:
		s.logger.Debug("job cancelled", "scheduler", s.Label(), "job", comp.job.Label())
		s.emitJobEvent(comp.job, "done")
	default:
		s.logger.Debug("job done", "scheduler", s.Label(), "job", comp.job.Label())
		s.emitJobEvent(comp.job, "done")
	}
}

func classifyOutcome(comp completion, ctx context.Context) Outcome {
	if comp.err != nil {
		if errors.Is(comp.err, context.Canceled) || errors.Is(comp.err, context.DeadlineExceeded) {
			return Outcome{Kind: OutcomeCancelled}
		}
		if ctx.Err() != nil {
			// The job surfaced some other error while its context was
			// already torn down; teardown-induced, not a genuine failure.
			return Outcome{Kind: OutcomeCancelled}
		}
		return Outcome{Kind: OutcomeException, Err: comp.err}
	}
	return Outcome{Kind: OutcomeValue, Value: comp.val}
}

// criticalFailure reports whether the just-applied completion should
// drive the scheduler into the critical_failure terminal reason: the job
// is critical and its freshly recorded outcome is a genuine exception
// (not a teardown-induced cancellation).
func (s *Scheduler) criticalFailure(comp completion) (Job, error, bool) {
	if !comp.job.Critical() {
		return nil, nil, false
	}
	err := comp.job.RaisedException()
	if err == nil {
		return nil, nil, false
	}
	return comp.job, err, true
}

// terminationReached reports whether every non-forever job in the
// scheduler has reached StateDone.
func (s *Scheduler) terminationReached() bool {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()
	for _, j := range jobs {
		if j.Forever() {
			continue
		}
		if !j.IsDone() {
			return false
		}
	}
	return true
}

// teardown runs on every terminal condition: cancel every in-flight job,
// await their settlement bounded by shutdownTimeout, then broadcast
// CoShutdown to every job in the scheduler (innermost-first for nested
// schedulers), also bounded by shutdownTimeout. Exceptions from
// CoShutdown are logged and swallowed.
func (s *Scheduler) teardown(ctx context.Context, cancelRun context.CancelFunc, shutdownTimeout time.Duration, completions chan completion) {
	cancelRun()

	deadline := time.NewTimer(shutdownTimeout)
	defer deadline.Stop()

waitLoop:
	for {
		s.mu.Lock()
		remaining := len(s.inFlight)
		s.mu.Unlock()
		if remaining == 0 {
			break waitLoop
		}
		select {
		case comp := <-completions:
			s.applyCompletion(comp, ctx)
		case <-deadline.C:
			s.mu.Lock()
			abandoned := len(s.inFlight)
			s.mu.Unlock()
			if abandoned > 0 {
				s.logger.Warn("shutdown grace period exceeded, abandoning stragglers", "scheduler", s.Label(), "count", abandoned)
			}
			break waitLoop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.broadcastShutdown(shutdownCtx)
}

func (s *Scheduler) broadcastShutdown(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()
	for _, j := range jobs {
		if err := j.CoShutdown(ctx); err != nil {
			s.logger.Warn("co_shutdown raised, swallowed", "scheduler", s.Label(), "job", j.Label(), "err", err)
		}
	}
}

// Shutdown runs CoShutdown against a background context bounded by this
// scheduler's shutdown timeout. Unlike the teardown phase of CoRun, this
// is never invoked implicitly: callers holding jobs with long-lived
// external resources (connections, file handles) call it explicitly when
// those resources must be released outside of a run's own teardown.
func (s *Scheduler) Shutdown() error { return s.CoShutdown(context.Background()) }

// CoShutdown is Shutdown's context-aware form.
func (s *Scheduler) CoShutdown(ctx context.Context) error {
	s.mu.Lock()
	timeout := s.shutdownTimeout
	s.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.broadcastShutdown(shutdownCtx)
	return nil
}
