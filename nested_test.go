package jobsched

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNestedSchedulerRunsAsASingleJob(t *testing.T) {
	var ranInner bool
	innerJob := NewJob(func(ctx context.Context) (any, error) {
		ranInner = true
		return nil, nil
	}, WithLabel("inner-job"))

	inner, err := NewSchedulerWithOptions(quietScheduler(), innerJob)
	require.NoError(t, err)

	nested := NewNestedScheduler(inner, WithLabel("nested"))

	var ranAfter bool
	after := NewJob(func(ctx context.Context) (any, error) {
		ranAfter = true
		return nil, nil
	}, WithLabel("after"), WithRequires(nested))

	outer, err := NewSchedulerWithOptions(quietScheduler(), nested, after)
	require.NoError(t, err)

	ok, err := outer.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ranInner)
	assert.True(t, ranAfter)
	assert.True(t, nested.IsDone())
}

func TestNestedSchedulerPropagatesCriticalFailure(t *testing.T) {
	boom := errors.New("inner job failed")
	innerJob := NewJob(func(ctx context.Context) (any, error) { return nil, boom }, WithLabel("inner-fails"))

	inner, err := NewSchedulerWithOptions(quietScheduler(), innerJob)
	require.NoError(t, err)

	nested := NewNestedScheduler(inner)

	outer, err := NewSchedulerWithOptions(quietScheduler(), nested)
	require.NoError(t, err)

	ok, err := outer.Run(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
}
