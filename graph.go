package jobsched

// color is used by the DFS cycle detector: white (unvisited), gray
// (on the current recursion stack), black (fully explored).
type color int

const (
	white color = iota
	gray
	black
)

// CheckCycles reports whether the scheduler's requirement graph is
// acyclic. A nested scheduler is treated as a single opaque node for this
// check; its own internal graph is checked separately, recursively, by
// its own CheckCycles call.
func (s *Scheduler) CheckCycles() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkCyclesLocked()
}

func (s *Scheduler) checkCyclesLocked() bool {
	colors := make(map[Job]color, len(s.jobs))
	for _, j := range s.jobs {
		colors[j] = white
	}
	for _, j := range s.jobs {
		if colors[j] == white {
			if hasCycleDFS(j, colors) {
				return false
			}
		}
	}
	return true
}

func hasCycleDFS(j Job, colors map[Job]color) bool {
	colors[j] = gray
	for _, req := range j.jobCore().requiredJobs() {
		if _, tracked := colors[req]; !tracked {
			// Requirement points outside this scheduler's job set;
			// Sanitize is responsible for pruning those, not this check.
			continue
		}
		switch colors[req] {
		case gray:
			return true
		case white:
			if hasCycleDFS(req, colors) {
				return true
			}
		}
	}
	colors[j] = black
	return false
}

// RemovedEdge records one edge Sanitize dropped: dependent required
// prerequisite, but prerequisite wasn't in this scheduler's job set.
type RemovedEdge struct {
	Dependent   Job
	Prerequisite Job
}

// Sanitize drops every requirement edge whose prerequisite is not a
// member of this scheduler's job set, logging a warning per removal. It
// is idempotent: running it twice removes nothing the second time.
func (s *Scheduler) Sanitize() []RemovedEdge {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	jobSet := make(map[Job]struct{}, len(s.jobSet))
	for j := range s.jobSet {
		jobSet[j] = struct{}{}
	}
	label := s.label
	s.mu.Unlock()

	var removed []RemovedEdge
	for _, j := range jobs {
		for _, req := range j.jobCore().requiredJobs() {
			if _, inSet := jobSet[req]; !inSet {
				_ = j.Unrequires(req)
				removed = append(removed, RemovedEdge{Dependent: j, Prerequisite: req})
				s.logger.Warn("sanitize: dropped requirement on a job outside this scheduler",
					"scheduler", label, "dependent", j.Label(), "prerequisite", req.Label())
			}
		}
	}
	return removed
}

// Successors returns job's direct prerequisites (the jobs it requires).
func (s *Scheduler) Successors(j Job) map[Job]struct{} {
	out := make(map[Job]struct{})
	for _, req := range j.jobCore().requiredJobs() {
		out[req] = struct{}{}
	}
	return out
}

// Predecessors returns the jobs that directly require job.
func (s *Scheduler) Predecessors(j Job) map[Job]struct{} {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	out := make(map[Job]struct{})
	for _, cand := range jobs {
		for _, req := range cand.jobCore().requiredJobs() {
			if req == j {
				out[cand] = struct{}{}
				break
			}
		}
	}
	return out
}

// SuccessorsDownstream returns the transitive closure of prerequisites
// reachable from the given starting jobs (everything they require,
// directly or indirectly).
func (s *Scheduler) SuccessorsDownstream(jobs ...Job) map[Job]struct{} {
	out := make(map[Job]struct{})
	var visit func(Job)
	visit = func(j Job) {
		for _, req := range j.jobCore().requiredJobs() {
			if _, seen := out[req]; seen {
				continue
			}
			out[req] = struct{}{}
			visit(req)
		}
	}
	for _, j := range jobs {
		visit(j)
	}
	return out
}

// PredecessorsUpstream returns the transitive closure of dependents
// reachable from the given starting jobs (everything that requires them,
// directly or indirectly).
func (s *Scheduler) PredecessorsUpstream(jobs ...Job) map[Job]struct{} {
	s.mu.Lock()
	all := make([]Job, len(s.jobs))
	copy(all, s.jobs)
	s.mu.Unlock()

	start := make(map[Job]struct{}, len(jobs))
	for _, j := range jobs {
		start[j] = struct{}{}
	}

	out := make(map[Job]struct{})
	changed := true
	for changed {
		changed = false
		for _, cand := range all {
			if _, already := out[cand]; already {
				continue
			}
			if _, isStart := start[cand]; isStart {
				continue
			}
			for _, req := range cand.jobCore().requiredJobs() {
				if _, inFrontier := start[req]; inFrontier {
					out[cand] = struct{}{}
					changed = true
					break
				}
				if _, inFrontier := out[req]; inFrontier {
					out[cand] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
	return out
}

// BypassAndRemove removes job from the scheduler while preserving
// ordering: every job that required job (its Predecessors) now requires
// every prerequisite of job (its Successors), then job and its edges are
// dropped.
func (s *Scheduler) BypassAndRemove(j Job) error {
	preds := s.Predecessors(j)
	succs := s.Successors(j)

	for pred := range preds {
		for succ := range succs {
			if sameJob(pred, succ) {
				continue
			}
			if err := pred.Requires(succ); err != nil {
				return err
			}
		}
		_ = pred.Unrequires(j)
	}
	s.Remove(j)
	return nil
}

// KeepOnly retains exactly the given jobs, dropping every other job in
// the scheduler along with any edge to or from it.
func (s *Scheduler) KeepOnly(keep ...Job) {
	keepSet := make(map[Job]struct{}, len(keep))
	for _, j := range keep {
		keepSet[j] = struct{}{}
	}
	s.mu.Lock()
	all := make([]Job, len(s.jobs))
	copy(all, s.jobs)
	s.mu.Unlock()

	for _, j := range all {
		if _, ok := keepSet[j]; !ok {
			s.Remove(j)
		}
	}
}

// KeepOnlyBetween retains jobs reachable downstream from any start AND
// upstream from any end; a job incomparable with both bounds is dropped.
// Jobs in starts/ends themselves are always kept.
func (s *Scheduler) KeepOnlyBetween(starts, ends []Job) {
	downstream := s.SuccessorsDownstream(starts...)
	upstream := s.PredecessorsUpstream(ends...)

	keep := make(map[Job]struct{})
	for _, j := range starts {
		keep[j] = struct{}{}
	}
	for _, j := range ends {
		keep[j] = struct{}{}
	}
	for j := range downstream {
		if _, inUpstream := upstream[j]; inUpstream {
			keep[j] = struct{}{}
		}
	}
	// A start that is also upstream-of-an-end, or an end that is also
	// downstream-of-a-start, belongs in the kept band too.
	for j := range downstream {
		for _, e := range ends {
			if sameJob(j, e) {
				keep[j] = struct{}{}
			}
		}
	}
	for j := range upstream {
		for _, st := range starts {
			if sameJob(j, st) {
				keep[j] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	all := make([]Job, len(s.jobs))
	copy(all, s.jobs)
	s.mu.Unlock()

	var keepList []Job
	for _, j := range all {
		if _, ok := keep[j]; ok {
			keepList = append(keepList, j)
		}
	}
	s.KeepOnly(keepList...)
}

// TopologicalOrder returns a stable linearization of the requirement
// graph, prerequisites before dependents, ties broken by insertion
// order. It errors with ErrCycleDetected if the graph isn't a DAG.
func (s *Scheduler) TopologicalOrder() ([]Job, error) {
	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	if !s.CheckCycles() {
		return nil, ErrCycleDetected
	}

	visited := make(map[Job]bool, len(jobs))
	var order []Job
	var visit func(Job)
	visit = func(j Job) {
		if visited[j] {
			return
		}
		visited[j] = true
		for _, req := range j.jobCore().requiredJobs() {
			visit(req)
		}
		order = append(order, j)
	}
	for _, j := range jobs {
		visit(j)
	}
	return order, nil
}
