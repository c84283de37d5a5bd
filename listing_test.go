package jobsched

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSafeReportsEachJob(t *testing.T) {
	a := noopJob("a")
	b := noopJob("b", WithRequires(a))

	sched, err := NewSchedulerWithOptions(quietScheduler(), a, b)
	require.NoError(t, err)

	report := sched.ListSafe()
	assert.Contains(t, report, "a: not done")
	assert.Contains(t, report, "b: not done")
	assert.Contains(t, report, "<- 0")
}

func TestListSafeNilScheduler(t *testing.T) {
	var sched *Scheduler
	assert.Equal(t, "<nil scheduler>\n", sched.ListSafe())
}

func TestDebriefReportsFailedJobs(t *testing.T) {
	boom := errors.New("boom")
	failing := NewJob(func(ctx context.Context) (any, error) { return nil, boom }, WithLabel("failing"), WithCritical(false))
	ok := noopJob("ok")

	sched, err := NewSchedulerWithOptions(quietScheduler(), failing, ok)
	require.NoError(t, err)

	_, _ = sched.Run(context.Background())

	failed := sched.Debrief()
	require.Len(t, failed, 1)
	assert.Equal(t, "failing", failed[0].Label())
}

func TestWhyReportsOutstandingPrerequisites(t *testing.T) {
	a := noopJob("a")
	b := noopJob("b", WithRequires(a))

	sched, err := NewSchedulerWithOptions(quietScheduler(), a, b)
	require.NoError(t, err)

	waiting := sched.Why(b)
	require.Len(t, waiting, 1)
	assert.Equal(t, "a", waiting[0])
}

func TestSnapshotCapturesGraph(t *testing.T) {
	a := noopJob("a")
	b := noopJob("b", WithRequires(a))

	sched, err := NewSchedulerWithOptions(quietScheduler(WithSchedulerLabel("demo")), a, b)
	require.NoError(t, err)

	snap := sched.Snapshot()
	assert.Equal(t, "demo", snap.Label)
	require.Len(t, snap.Nodes, 2)

	var bNode GraphNode
	for _, n := range snap.Nodes {
		if n.Label == "b" {
			bNode = n
		}
	}
	require.Equal(t, []string{"a"}, bNode.Requires)
}

func TestFailedTimeOutFlag(t *testing.T) {
	slow := noopJob("slow")
	slow.body = func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	sched, err := NewSchedulerWithOptions(quietScheduler(WithTimeout(1)), slow)
	require.NoError(t, err)

	_, _ = sched.Run(context.Background())
	assert.True(t, sched.FailedTimeOut())
	assert.False(t, sched.FailedCritical())
}

func TestJobLineCriticalMarker(t *testing.T) {
	j := noopJob("crit", WithCritical(true))
	line := jobLine(j, 0, map[Job]int{j: 0}, false)
	assert.True(t, strings.Contains(line, "!"))
}
