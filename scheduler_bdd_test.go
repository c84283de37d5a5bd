package jobsched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

// schedulerBDDContext carries state between steps of a single scenario.
type schedulerBDDContext struct {
	sched   *Scheduler
	a, b, c *Task
	ran     []string
	ok      bool
	runErr  error
}

func (c *schedulerBDDContext) iHaveAThreeJobChain() error {
	c.a = NewJob(func(ctx context.Context) (any, error) {
		c.ran = append(c.ran, "a")
		return nil, nil
	}, WithLabel("a"))
	c.b = NewJob(func(ctx context.Context) (any, error) {
		c.ran = append(c.ran, "b")
		return nil, nil
	}, WithLabel("b"), WithRequires(c.a))
	c.c = NewJob(func(ctx context.Context) (any, error) {
		c.ran = append(c.ran, "c")
		return nil, nil
	}, WithLabel("c"), WithRequires(c.b))

	sched, err := NewSchedulerWithOptions([]Option{WithLogger(NewNoopLogger())}, c.a, c.b, c.c)
	if err != nil {
		return err
	}
	c.sched = sched
	return nil
}

func (c *schedulerBDDContext) iHaveAChainWhereTheMiddleJobFailsCritically() error {
	c.a = NewJob(func(ctx context.Context) (any, error) { return nil, nil }, WithLabel("a"))
	c.b = NewJob(func(ctx context.Context) (any, error) { return nil, errors.New("middle job exploded") },
		WithLabel("b"), WithRequires(c.a))
	c.c = NewJob(func(ctx context.Context) (any, error) {
		c.ran = append(c.ran, "c")
		return nil, nil
	}, WithLabel("c"), WithRequires(c.b))

	sched, err := NewSchedulerWithOptions([]Option{WithLogger(NewNoopLogger())}, c.a, c.b, c.c)
	if err != nil {
		return err
	}
	c.sched = sched
	return nil
}

func (c *schedulerBDDContext) iHaveASchedulerWithAGlobalTimeoutAndAJobThatNeverReturns() error {
	c.a = NewJob(func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithLabel("stuck"))

	sched, err := NewSchedulerWithOptions([]Option{
		WithLogger(NewNoopLogger()),
		WithTimeout(15 * time.Millisecond),
		WithShutdownTimeout(50 * time.Millisecond),
	}, c.a)
	if err != nil {
		return err
	}
	c.sched = sched
	return nil
}

func (c *schedulerBDDContext) iRunTheScheduler() error {
	c.ok, c.runErr = c.sched.Run(context.Background())
	return nil
}

func (c *schedulerBDDContext) theRunShouldSucceed() error {
	if !c.ok {
		return errors.New("expected the run to succeed")
	}
	if c.runErr != nil {
		return c.runErr
	}
	return nil
}

func (c *schedulerBDDContext) theRunShouldFail() error {
	if c.ok {
		return errors.New("expected the run to fail")
	}
	return nil
}

func (c *schedulerBDDContext) theJobsShouldRunInOrder(expected string) error {
	got := ""
	for i, label := range c.ran {
		if i > 0 {
			got += ","
		}
		got += label
	}
	if got != expected {
		return errors.New("unexpected run order: " + got)
	}
	return nil
}

func (c *schedulerBDDContext) jobCShouldNeverHaveRun() error {
	for _, label := range c.ran {
		if label == "c" {
			return errors.New("job c ran despite its upstream critical failure")
		}
	}
	return nil
}

func (c *schedulerBDDContext) theRunErrorShouldReportATimeout() error {
	if !errors.Is(c.runErr, ErrTimedOut) {
		return errors.New("expected ErrTimedOut, got " + errString(c.runErr))
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

const schedulerFeature = `
Feature: running a dependency graph of jobs to completion

  Scenario: a linear chain runs prerequisites before dependents
    Given I have a three job chain
    When I run the scheduler
    Then the run should succeed
    And the jobs should run in order "a,b,c"

  Scenario: a critical failure aborts jobs that depend on it
    Given I have a chain where the middle job fails critically
    When I run the scheduler
    Then the run should fail
    And job c should never have run

  Scenario: a global timeout ends a run whose jobs never finish
    Given I have a scheduler with a global timeout and a job that never returns
    When I run the scheduler
    Then the run should fail
    And the run error should report a timeout
`

func TestSchedulerBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(s *godog.ScenarioContext) {
			ctx := &schedulerBDDContext{}

			s.Given(`^I have a three job chain$`, ctx.iHaveAThreeJobChain)
			s.Given(`^I have a chain where the middle job fails critically$`, ctx.iHaveAChainWhereTheMiddleJobFailsCritically)
			s.Given(`^I have a scheduler with a global timeout and a job that never returns$`, ctx.iHaveASchedulerWithAGlobalTimeoutAndAJobThatNeverReturns)
			s.When(`^I run the scheduler$`, ctx.iRunTheScheduler)
			s.Then(`^the run should succeed$`, ctx.theRunShouldSucceed)
			s.Then(`^the run should fail$`, ctx.theRunShouldFail)
			s.Then(`^the jobs should run in order "([^"]*)"$`, ctx.theJobsShouldRunInOrder)
			s.Then(`^job c should never have run$`, ctx.jobCShouldNeverHaveRun)
			s.Then(`^the run error should report a timeout$`, ctx.theRunErrorShouldReportATimeout)
		},
		Options: &godog.Options{
			Format: "pretty",
			FeatureContents: []godog.Feature{
				{Name: "scheduler.feature", Contents: []byte(schedulerFeature)},
			},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
