package jobsched

import (
	"fmt"
	"strconv"
	"strings"
)

// List prints the canonical one-line-per-job report to stdout.
func (s *Scheduler) List() {
	fmt.Print(s.listText(false))
}

// ListSafe is List's cyclic-tolerant twin: it never calls TopologicalOrder
// (which errors on a cyclic graph) and lists jobs in insertion order, each
// ranked by its insertion position. It never panics on a nil Scheduler either,
// returning a placeholder line so callers can log it or embed it in an error.
func (s *Scheduler) ListSafe() string {
	if s == nil {
		return "<nil scheduler>\n"
	}
	return s.listText(true)
}

// rankOf assigns each job its position in a linearization: topological rank
// normally, or insertion order when safe is true (a cyclic graph has no
// topological order to report).
func (s *Scheduler) rankOf(safe bool) (order []Job, rank map[Job]int, ok bool) {
	if safe {
		s.mu.Lock()
		order = make([]Job, len(s.jobs))
		copy(order, s.jobs)
		s.mu.Unlock()
	} else {
		var err error
		order, err = s.TopologicalOrder()
		if err != nil {
			return nil, nil, false
		}
	}
	rank = make(map[Job]int, len(order))
	for i, j := range order {
		rank[j] = i
	}
	return order, rank, true
}

func (s *Scheduler) listText(safe bool) string {
	s.mu.Lock()
	label := s.label
	njobs := len(s.jobs)
	s.mu.Unlock()

	order, rank, ok := s.rankOf(safe)
	if !ok {
		// Only reachable from List(), which doesn't tolerate cycles; fall
		// back to the safe rendering rather than erroring out of a report.
		order, rank, _ = s.rankOf(true)
	}

	var b strings.Builder
	if label != "" {
		fmt.Fprintf(&b, "scheduler %q (%d jobs)\n", label, njobs)
	} else {
		fmt.Fprintf(&b, "scheduler (%d jobs)\n", njobs)
	}
	cyclic := !ok
	for i, j := range order {
		b.WriteString(jobLine(j, i, rank, cyclic))
		b.WriteByte('\n')
	}
	return b.String()
}

// jobLine renders the canonical listing format for one job, in order:
// topological rank, critical mark (!), exception/success mark (x/o or - if
// not yet done), lifecycle mark (i/s/r/d), forever mark (*), label, outcome
// (or "not done"), and the rank numbers of its requirements.
func jobLine(j Job, rankOfJob int, rank map[Job]int, cyclicRank bool) string {
	var b strings.Builder

	if cyclicRank {
		b.WriteString("?")
	} else {
		b.WriteString(strconv.Itoa(rankOfJob))
	}
	b.WriteByte(' ')

	if j.Critical() {
		b.WriteByte('!')
	} else {
		b.WriteByte(' ')
	}
	b.WriteByte(' ')

	b.WriteByte(resultMark(j))
	b.WriteByte(' ')

	b.WriteByte(lifecycleMark(j))
	b.WriteByte(' ')

	if j.Forever() {
		b.WriteByte('*')
	} else {
		b.WriteByte(' ')
	}
	b.WriteByte(' ')

	fmt.Fprintf(&b, "%s: %s", j.Label(), outcomeText(j))

	reqs := j.jobCore().requiredJobs()
	if len(reqs) > 0 {
		nums := make([]string, len(reqs))
		for i, r := range reqs {
			if n, known := rank[r]; known {
				nums[i] = strconv.Itoa(n)
			} else {
				nums[i] = "?"
			}
		}
		fmt.Fprintf(&b, " <- %s", strings.Join(nums, ","))
	}
	return b.String()
}

func resultMark(j Job) byte {
	if !j.IsDone() {
		return '-'
	}
	if j.RaisedException() != nil {
		return 'x'
	}
	return 'o'
}

func lifecycleMark(j Job) byte {
	switch {
	case j.IsIdle():
		return 'i'
	case j.IsScheduled():
		return 's'
	case j.IsRunning():
		return 'r'
	case j.IsDone():
		return 'd'
	default:
		return '?'
	}
}

func outcomeText(j Job) string {
	if !j.IsDone() {
		return "not done"
	}
	if err := j.RaisedException(); err != nil {
		return fmt.Sprintf("exception: %v", err)
	}
	if v, err := j.Result(); err == nil {
		return fmt.Sprintf("%v", v)
	}
	return "cancelled"
}

// Debrief reports every job that finished with a raised exception, in
// insertion order.
func (s *Scheduler) Debrief() []Job {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	var failed []Job
	for _, j := range jobs {
		if j.IsDone() && j.RaisedException() != nil {
			failed = append(failed, j)
		}
	}
	return failed
}

// Why explains a job's current idle state: the labels of the
// prerequisites it is still waiting on. An empty result for an idle job
// means it is ready to run as soon as the scheduler dispatches it.
func (s *Scheduler) Why(j Job) []string {
	var waiting []string
	for _, req := range j.jobCore().requiredJobs() {
		if !req.IsDone() {
			waiting = append(waiting, req.Label())
		}
	}
	return waiting
}

// FailedCritical reports whether the scheduler's last run ended with the
// critical_failure terminal reason.
func (s *Scheduler) FailedCritical() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason == ReasonCriticalFailure
}

// FailedTimeOut reports whether the scheduler's last run ended because
// the global timeout elapsed.
func (s *Scheduler) FailedTimeOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason == ReasonTimedOut
}

// GraphSnapshot is a point-in-time, data-only rendering of a scheduler's
// requirement graph: every job's label, lifecycle state, qualifiers, and
// its direct prerequisites by label. It carries no layout information;
// turning it into a dot/svg diagram is left to the caller.
type GraphSnapshot struct {
	Label string      `json:"label"`
	Nodes []GraphNode `json:"nodes"`
}

// GraphNode is one job's entry in a GraphSnapshot.
type GraphNode struct {
	Label       string   `json:"label"`
	State       string   `json:"state"`
	Critical    bool     `json:"critical"`
	Forever     bool     `json:"forever"`
	Requires    []string `json:"requires"`
	RaisedError string   `json:"raisedError,omitempty"`
}

// Snapshot captures the scheduler's current graph and job states.
func (s *Scheduler) Snapshot() GraphSnapshot {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	label := s.label
	s.mu.Unlock()

	snap := GraphSnapshot{Label: label, Nodes: make([]GraphNode, 0, len(jobs))}
	for _, j := range jobs {
		reqs := j.jobCore().requiredJobs()
		labels := make([]string, len(reqs))
		for i, r := range reqs {
			labels[i] = r.Label()
		}
		node := GraphNode{
			Label:    j.Label(),
			State:    stateString(j),
			Critical: j.Critical(),
			Forever:  j.Forever(),
			Requires: labels,
		}
		if err := j.RaisedException(); err != nil {
			node.RaisedError = err.Error()
		}
		snap.Nodes = append(snap.Nodes, node)
	}
	return snap
}

func stateString(j Job) string {
	switch {
	case j.IsIdle():
		return "idle"
	case j.IsScheduled():
		return "scheduled"
	case j.IsRunning():
		return "running"
	case j.IsDone():
		if err := j.RaisedException(); err != nil {
			return fmt.Sprintf("done (raised: %v)", err)
		}
		return "done"
	default:
		return "unknown"
	}
}
