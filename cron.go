package jobsched

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronScheduler drives a factory function on a cron schedule, building
// and running a fresh Scheduler graph on every tick. Unlike Scheduler
// itself, which runs its job graph exactly once, CronScheduler is meant
// to live for the lifetime of a process, re-running the same kind of
// graph on a recurring schedule (e.g. a nightly batch of jobs).
type CronScheduler struct {
	cron    *cron.Cron
	build   func(ctx context.Context) (*Scheduler, error)
	logger  Logger
	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// NewCronScheduler builds a CronScheduler that invokes build and runs
// its returned Scheduler to completion every time spec matches, using
// the standard five-field cron expression format.
func NewCronScheduler(spec string, build func(ctx context.Context) (*Scheduler, error), logger Logger) (*CronScheduler, error) {
	if logger == nil {
		logger = defaultLogger()
	}
	cs := &CronScheduler{
		cron:   cron.New(),
		build:  build,
		logger: logger,
	}
	id, err := cs.cron.AddFunc(spec, cs.tick)
	if err != nil {
		return nil, err
	}
	cs.entryID = id
	return cs, nil
}

func (cs *CronScheduler) tick() {
	cs.mu.Lock()
	if cs.running {
		cs.logger.Warn("cron tick skipped, previous run still in flight")
		cs.mu.Unlock()
		return
	}
	cs.running = true
	cs.mu.Unlock()

	defer func() {
		cs.mu.Lock()
		cs.running = false
		cs.mu.Unlock()
	}()

	ctx := context.Background()
	sched, err := cs.build(ctx)
	if err != nil {
		cs.logger.Error("cron build failed", "err", err)
		return
	}
	if ok, err := sched.CoRun(ctx); !ok {
		cs.logger.Error("cron run did not complete ok", "err", err)
	}
}

// Start begins firing ticks on their own goroutine. It returns
// immediately; call Stop to end the schedule.
func (cs *CronScheduler) Start() { cs.cron.Start() }

// Stop ends the schedule. It does not block; the returned context is done
// once any in-flight tick has finished.
func (cs *CronScheduler) Stop() context.Context { return cs.cron.Stop() }

// NextRun reports whether a next tick is scheduled to fire.
func (cs *CronScheduler) NextRun() (ok bool) {
	entries := cs.cron.Entries()
	for _, e := range entries {
		if e.ID == cs.entryID {
			return !e.Next.IsZero()
		}
	}
	return false
}
