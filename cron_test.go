package jobsched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSchedulerRunsBuiltGraphOnEachTick(t *testing.T) {
	var runs int32
	build := func(ctx context.Context) (*Scheduler, error) {
		j := NewJob(func(ctx context.Context) (any, error) {
			atomic.AddInt32(&runs, 1)
			return nil, nil
		}, WithLabel("tick-job"))
		return NewSchedulerWithOptions(quietScheduler(), j)
	}

	// cron rounds @every intervals below one second up to one second.
	cs, err := NewCronScheduler("@every 1s", build, NewNoopLogger())
	require.NoError(t, err)

	cs.Start()
	time.Sleep(2500 * time.Millisecond)
	<-cs.Stop().Done()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestCronSchedulerSkipsOverlappingTick(t *testing.T) {
	release := make(chan struct{})
	var starts int32
	build := func(ctx context.Context) (*Scheduler, error) {
		j := NewJob(func(ctx context.Context) (any, error) {
			atomic.AddInt32(&starts, 1)
			<-release
			return nil, nil
		}, WithLabel("slow-tick"))
		return NewSchedulerWithOptions(quietScheduler(), j)
	}

	cs, err := NewCronScheduler("@every 1s", build, NewNoopLogger())
	require.NoError(t, err)

	cs.Start()
	time.Sleep(2500 * time.Millisecond)
	close(release)
	<-cs.Stop().Done()

	assert.Equal(t, int32(1), atomic.LoadInt32(&starts), "an in-flight tick must suppress the next one")
}
