package jobsched

import (
	"context"
	"fmt"
)

// NestedScheduler is the composite Job implementation: it embeds a pure
// Scheduler and exposes it as a single node in an outer scheduler's
// requirement graph. The outer scheduler only ever sees a single
// idle/scheduled/running/done lifecycle; CoRun delegates to the inner
// scheduler's own CoRun and CoShutdown delegates to the inner
// scheduler's CoShutdown, recursing into however many further levels of
// nesting the inner graph itself contains.
type NestedScheduler struct {
	*jobState
	inner *Scheduler
}

// NewNestedScheduler wraps an already-built Scheduler as a Job, usable
// anywhere a leaf Task is: given Requires edges, added to an outer
// Scheduler, included in a Sequence.
func NewNestedScheduler(inner *Scheduler, opts ...JobOption) *NestedScheduler {
	label := inner.Label()
	if label == "" {
		label = "nested-scheduler"
	}
	state := newJobState(label)
	n := &NestedScheduler{jobState: state, inner: inner}
	state.selfRef = n
	for _, opt := range opts {
		opt(state)
	}
	if len(state.pendingRequires) > 0 {
		_ = n.Requires(state.pendingRequires...)
		state.pendingRequires = nil
	}
	return n
}

// Inner returns the wrapped Scheduler, letting callers inspect or
// further configure it (add jobs, register observers) before the outer
// scheduler is run.
func (n *NestedScheduler) Inner() *Scheduler { return n.inner }

// CoRun delegates to the inner scheduler's own CoRun. Any non-ok inner
// terminal reason is surfaced as this job's own error: the inner
// scheduler's categorized error when it is critical, a generic error
// otherwise. The failure thus propagates one level up the nesting
// exactly as an ordinary Task's error would.
func (n *NestedScheduler) CoRun(ctx context.Context) (any, error) {
	ok, err := n.inner.CoRun(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("jobsched: nested scheduler %q did not complete ok", n.inner.Label())
	}
	return ok, nil
}

// CoShutdown delegates to the inner scheduler's CoShutdown, which in
// turn broadcasts CoShutdown to every job the inner scheduler holds,
// recursing into any further nesting.
func (n *NestedScheduler) CoShutdown(ctx context.Context) error {
	return n.inner.CoShutdown(ctx)
}
