package jobsched

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types emitted for individual job transitions and whole-run
// outcomes, named following CloudEvent reverse-DNS convention.
const (
	EventTypeJobStarted = "io.jobsched.job.started"
	EventTypeJobDone     = "io.jobsched.job.done"
	EventTypeJobFailed   = "io.jobsched.job.failed"

	EventTypeRunOK              = "io.jobsched.run.ok"
	EventTypeRunTimedOut        = "io.jobsched.run.timed_out"
	EventTypeRunCriticalFailure = "io.jobsched.run.critical_failure"
	EventTypeRunCancelled       = "io.jobsched.run.cancelled"
)

// JobEventData is the payload carried by a job-lifecycle CloudEvent.
type JobEventData struct {
	Scheduler string `json:"scheduler"`
	Job       string `json:"job"`
	State     string `json:"state"`
}

// RunEventData is the payload carried by a run-outcome CloudEvent.
type RunEventData struct {
	Scheduler string `json:"scheduler"`
	Reason    string `json:"reason"`
}

// Observer receives CloudEvents emitted by a Scheduler as it runs.
type Observer interface {
	OnCloudEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Subject is implemented by anything that broadcasts CloudEvents to a
// set of registered Observers. Scheduler implements it directly.
type Subject interface {
	RegisterObserver(observer Observer) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// RegisterObserver adds an observer to receive this scheduler's job and
// run events. Registering the same observer twice adds it twice; callers
// that care should UnregisterObserver first.
func (s *Scheduler) RegisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
	return nil
}

// UnregisterObserver removes an observer. It is a no-op if the observer
// was never registered.
func (s *Scheduler) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.ObserverID() == observer.ObserverID() {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return nil
		}
	}
	return nil
}

// NotifyObservers delivers event to every registered observer in
// registration order. An observer error is logged and does not stop
// delivery to the rest.
func (s *Scheduler) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	s.mu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	label := s.label
	s.mu.Unlock()

	for _, o := range observers {
		if err := o.OnCloudEvent(ctx, event); err != nil {
			s.logger.Warn("observer returned an error, continuing",
				"scheduler", label, "observer", o.ObserverID(), "err", err)
		}
	}
	return nil
}

func newEvent(eventType, source string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetSpecVersion(cloudevents.VersionV1)
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// emitJobEvent is called from the run loop on every job started/done/
// failed transition. With no observers registered this is a cheap no-op.
func (s *Scheduler) emitJobEvent(j Job, kind string) {
	s.mu.Lock()
	hasObservers := len(s.observers) > 0
	label := s.label
	s.mu.Unlock()
	if !hasObservers {
		return
	}

	var eventType string
	switch kind {
	case "started":
		eventType = EventTypeJobStarted
	case "failed":
		eventType = EventTypeJobFailed
	default:
		eventType = EventTypeJobDone
	}

	event := newEvent(eventType, "jobsched/"+label, JobEventData{
		Scheduler: label,
		Job:       j.Label(),
		State:     kind,
	})
	_ = s.NotifyObservers(context.Background(), event)
}

// emitRunOutcome is called once, at the end of CoRun, with the reason
// the run settled on.
func (s *Scheduler) emitRunOutcome(reason Reason) {
	s.mu.Lock()
	hasObservers := len(s.observers) > 0
	label := s.label
	s.mu.Unlock()
	if !hasObservers {
		return
	}

	var eventType string
	switch reason {
	case ReasonOK:
		eventType = EventTypeRunOK
	case ReasonTimedOut:
		eventType = EventTypeRunTimedOut
	case ReasonCriticalFailure:
		eventType = EventTypeRunCriticalFailure
	case ReasonCancelled:
		eventType = EventTypeRunCancelled
	default:
		return
	}

	event := newEvent(eventType, "jobsched/"+label, RunEventData{
		Scheduler: label,
		Reason:    string(reason),
	})
	_ = s.NotifyObservers(context.Background(), event)
}
