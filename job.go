package jobsched

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// JobState is a Job's position in its lifecycle. It is monotone: once a
// job reaches StateDone it is never restarted.
type JobState int

const (
	StateIdle JobState = iota
	StateScheduled
	StateRunning
	StateDone
)

func (s JobState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// OutcomeKind tags which of the three mutually exclusive shapes a Job's
// Outcome carries.
type OutcomeKind int

const (
	OutcomeValue OutcomeKind = iota
	OutcomeException
	OutcomeCancelled
)

// Outcome is populated exactly once, when a Job transitions to StateDone.
type Outcome struct {
	Kind  OutcomeKind
	Value any
	Err   error
}

// JobBody is the asynchronous computation a leaf Job wraps. It is invoked
// exactly once, when the job transitions to StateRunning, and must be
// cancellation-tolerant: it should check ctx.Done() and return promptly
// once the scheduler tearing down cancels it. A body that itself spawns
// unawaited concurrent work leaves that work's lifetime undefined; the
// scheduler only ever awaits the body's own return.
type JobBody func(ctx context.Context) (any, error)

// Job is the node type the requirement graph, the scheduler, and Sequence
// all operate over. *Task is the leaf implementation wrapping a JobBody;
// *NestedScheduler is the composite implementation letting a Scheduler be
// embedded as a job inside another scheduler. jobCore is unexported and
// therefore seals the interface to this package.
type Job interface {
	Label() string
	IsIdle() bool
	IsScheduled() bool
	IsRunning() bool
	IsDone() bool
	Critical() bool
	Forever() bool
	Result() (any, error)
	RaisedException() error
	Requires(others ...Job) error
	Unrequires(others ...Job) error
	CoRun(ctx context.Context) (any, error)
	CoShutdown(ctx context.Context) error

	jobCore() *jobState
}

// jobState holds every field common to leaf jobs and nested schedulers.
// Task and NestedScheduler each embed a *jobState and get Label/IsDone/
// Requires/etc for free; each supplies its own CoRun (and NestedScheduler
// its own CoShutdown) to override the defaults below.
type jobState struct {
	mu sync.Mutex

	id    uuid.UUID
	label string

	required    []Job
	requiredSet map[Job]struct{}

	critical *bool
	forever  bool

	state   JobState
	outcome *Outcome

	owner *Scheduler

	// selfRef is the concrete Task/NestedScheduler this jobState backs,
	// set once by the constructor. It lets requires() compare "does this
	// edge point back at me" against the embedding value's identity
	// rather than the bare *jobState, and lets finish/transitionTo be
	// called generically from scheduler.go via the Job interface.
	selfRef Job

	// pendingRequires holds WithRequires() targets collected during
	// option application, wired once the job's selfRef is known.
	pendingRequires []Job
}

func newJobState(label string) *jobState {
	return &jobState{
		id:          uuid.New(),
		label:       label,
		requiredSet: make(map[Job]struct{}),
	}
}

func (j *jobState) jobCore() *jobState { return j }

func (j *jobState) Label() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.label
}

func (j *jobState) state_() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *jobState) IsIdle() bool      { return j.state_() == StateIdle }
func (j *jobState) IsScheduled() bool { return j.state_() == StateScheduled }
func (j *jobState) IsRunning() bool   { return j.state_() == StateRunning }
func (j *jobState) IsDone() bool      { return j.state_() == StateDone }

func (j *jobState) Critical() bool {
	j.mu.Lock()
	critical, owner := j.critical, j.owner
	j.mu.Unlock()
	if critical != nil {
		return *critical
	}
	if owner != nil {
		return owner.Critical()
	}
	return true
}

func (j *jobState) Forever() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.forever
}

// Result returns the job's stored value. It fails with ErrNotYetDone if
// the job has not reached StateDone, or ErrNoResult if the outcome was an
// exception or a cancellation.
func (j *jobState) Result() (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateDone || j.outcome == nil {
		return nil, ErrNotYetDone
	}
	if j.outcome.Kind != OutcomeValue {
		return nil, ErrNoResult
	}
	return j.outcome.Value, nil
}

// RaisedException returns the stored exception, or nil if the job hasn't
// finished or finished without one.
func (j *jobState) RaisedException() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateDone || j.outcome == nil {
		return nil
	}
	if j.outcome.Kind != OutcomeException {
		return nil
	}
	return j.outcome.Err
}

// Requires adds prerequisite edges: this job will not start until every
// one of others is done. Adding a job to its own requirement set is a
// no-op. Adding requirements once the owning scheduler has started
// running is undefined behavior — callers must finish graph assembly
// before the first CoRun.
func (j *jobState) Requires(others ...Job) error {
	return j.requires(false, others...)
}

// Unrequires removes prerequisite edges previously added with Requires.
func (j *jobState) Unrequires(others ...Job) error {
	return j.requires(true, others...)
}

func (j *jobState) requires(remove bool, others ...Job) error {
	self := j.self()
	for _, other := range others {
		if other == nil {
			continue
		}
		if sameJob(other, self) {
			continue // defensive no-op: a job never requires itself
		}
		if !remove {
			otherOwner := other.jobCore().ownerOf()
			selfOwner := j.ownerOf()
			if otherOwner != nil && selfOwner != nil && otherOwner != selfOwner {
				return fmt.Errorf("%w: %q requires %q", ErrCrossSchedulerRequirement, j.label, other.Label())
			}
		}
		j.mu.Lock()
		if remove {
			if _, ok := j.requiredSet[other]; ok {
				delete(j.requiredSet, other)
				j.required = removeJob(j.required, other)
			}
		} else if _, ok := j.requiredSet[other]; !ok {
			j.requiredSet[other] = struct{}{}
			j.required = append(j.required, other)
		}
		j.mu.Unlock()
	}
	return nil
}

func (j *jobState) ownerOf() *Scheduler {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.owner
}

// self must be overridden implicitly: since jobState itself never
// satisfies Job (it has no CoRun), Requires is always invoked through an
// embedding Task/NestedScheduler whose method set promotes these methods
// with the embedding type as the effective receiver identity. selfRef
// lets requires() compare "does this edge point back at me" using the
// concrete embedding value rather than the bare *jobState.
func (j *jobState) self() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.selfRef
}

func sameJob(a, b Job) bool {
	if a == nil || b == nil {
		return false
	}
	return a.jobCore() == b.jobCore()
}

func (j *jobState) requiredJobs() []Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Job, len(j.required))
	copy(out, j.required)
	return out
}

// CoShutdown's default is a no-op; Task relies on this default, and
// NestedScheduler overrides it to recursively shut down its inner jobs.
func (j *jobState) CoShutdown(ctx context.Context) error { return nil }

func (j *jobState) transitionTo(state JobState) {
	j.mu.Lock()
	j.state = state
	j.mu.Unlock()
}

// finish records a job's outcome and moves it to StateDone. It is a
// no-op if the job is already done, keeping the monotone-state invariant
// even if a completion is observed twice (e.g. a straggler settling after
// teardown already marked it cancelled).
func (j *jobState) finish(outcome Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateDone {
		return
	}
	j.state = StateDone
	j.outcome = &outcome
}

// Task is the leaf Job implementation: it wraps a user-supplied JobBody
// and runs it exactly once.
type Task struct {
	*jobState
	body JobBody
}

// JobOption configures a Job at construction time.
type JobOption func(*jobState)

// WithLabel sets a job's display label explicitly, overriding the
// default derived from the body function's identifier.
func WithLabel(label string) JobOption {
	return func(j *jobState) { j.label = label }
}

// WithCritical pins a job's critical flag, overriding the scheduler's
// default at run time.
func WithCritical(critical bool) JobOption {
	return func(j *jobState) { j.critical = &critical }
}

// WithForever marks a job as one the scheduler never awaits; it is
// cancelled once every non-forever job in its scheduler is done.
func WithForever(forever bool) JobOption {
	return func(j *jobState) { j.forever = forever }
}

// WithRequires wires prerequisite edges at construction time, equivalent
// to calling Requires after the fact.
func WithRequires(others ...Job) JobOption {
	return func(j *jobState) {
		// applied after self is wired in NewJob, see below.
		j.pendingRequires = append(j.pendingRequires, others...)
	}
}

func NewJob(body JobBody, opts ...JobOption) *Task {
	state := newJobState("")
	t := &Task{jobState: state, body: body}
	state.selfRef = t
	if state.label == "" {
		state.label = defaultLabel(body)
	}
	for _, opt := range opts {
		opt(state)
	}
	if len(state.pendingRequires) > 0 {
		_ = t.Requires(state.pendingRequires...)
		state.pendingRequires = nil
	}
	return t
}

func defaultLabel(body JobBody) string {
	if body == nil {
		return "job"
	}
	pc := reflect.ValueOf(body).Pointer()
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "job"
	}
	name := fn.Name()
	// Trim the package/receiver prefix a closure's runtime name carries,
	// keeping just the trailing identifier, the way a stack trace does.
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

// CoRun invokes the wrapped body exactly once. The scheduler is
// responsible for recording the returned value/error as the job's
// Outcome and for moving the job to StateDone.
func (t *Task) CoRun(ctx context.Context) (any, error) {
	if t.body == nil {
		return nil, nil
	}
	return t.body(ctx)
}

func removeJob(list []Job, target Job) []Job {
	out := list[:0]
	for _, j := range list {
		if j != target {
			out = append(out, j)
		}
	}
	return out
}
