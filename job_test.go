package jobsched

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycle(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return 42, nil })

	assert.True(t, j.IsIdle())
	assert.Equal(t, "idle", j.state_().String())

	j.transitionTo(StateScheduled)
	assert.True(t, j.IsScheduled())

	j.transitionTo(StateRunning)
	assert.True(t, j.IsRunning())

	j.finish(Outcome{Kind: OutcomeValue, Value: 42})
	assert.True(t, j.IsDone())

	val, err := j.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Nil(t, j.RaisedException())
}

func TestJobResultBeforeDone(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return nil, nil })
	_, err := j.Result()
	assert.ErrorIs(t, err, ErrNotYetDone)
}

func TestJobResultAfterException(t *testing.T) {
	boom := errors.New("boom")
	j := NewJob(func(ctx context.Context) (any, error) { return nil, boom })
	j.finish(Outcome{Kind: OutcomeException, Err: boom})

	_, err := j.Result()
	assert.ErrorIs(t, err, ErrNoResult)
	assert.ErrorIs(t, j.RaisedException(), boom)
}

func TestJobDefaultLabel(t *testing.T) {
	fetchData := func(ctx context.Context) (any, error) { return nil, nil }
	j := NewJob(fetchData)
	assert.Contains(t, j.Label(), "func")
}

func TestWithLabelOverride(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("download"))
	assert.Equal(t, "download", j.Label())
}

func TestCriticalInheritsFromOwner(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return nil, nil })
	assert.True(t, j.Critical(), "no owner yet, defaults to true")

	sched, err := NewSchedulerWithOptions([]Option{WithSchedulerCritical(false)}, j)
	require.NoError(t, err)
	_ = sched
	assert.False(t, j.Critical(), "inherits owner's critical default")
}

func TestCriticalOwnOverrideWins(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithCritical(true))
	_, err := NewSchedulerWithOptions([]Option{WithSchedulerCritical(false)}, j)
	require.NoError(t, err)
	assert.True(t, j.Critical(), "job's own critical flag overrides the scheduler default")
}

func TestRequiresSelfIsNoop(t *testing.T) {
	j := NewJob(func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, j.Requires(j))
	assert.Empty(t, j.jobCore().requiredJobs())
}

func TestRequiresAndUnrequires(t *testing.T) {
	a := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("a"))
	b := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("b"))

	require.NoError(t, b.Requires(a))
	assert.Len(t, b.jobCore().requiredJobs(), 1)

	require.NoError(t, b.Unrequires(a))
	assert.Empty(t, b.jobCore().requiredJobs())
}

func TestWithRequiresAtConstruction(t *testing.T) {
	a := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("a"))
	b := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("b"), WithRequires(a))
	assert.Len(t, b.jobCore().requiredJobs(), 1)
}

func TestCrossSchedulerRequirementRejected(t *testing.T) {
	a := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("a"))
	b := NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("b"))

	_, err := NewScheduler(a)
	require.NoError(t, err)
	_, err = NewScheduler(b)
	require.NoError(t, err)

	err = b.Requires(a)
	assert.ErrorIs(t, err, ErrCrossSchedulerRequirement)
}
