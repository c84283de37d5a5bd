package jobsched

import "fmt"

// sequenceElement is the shape both a bare Job and a *Sequence present to
// NewSequence's wiring pass: the set of entry jobs with no predecessor
// inside this element, the set of exit jobs with no dependent inside it,
// and the full flattened job list to register with a scheduler.
type sequenceElement interface {
	heads() []Job
	tails() []Job
	flatten() []Job
}

type jobElement struct{ job Job }

func (e jobElement) heads() []Job   { return []Job{e.job} }
func (e jobElement) tails() []Job   { return []Job{e.job} }
func (e jobElement) flatten() []Job { return []Job{e.job} }

// Sequence is a builder, not a runtime entity: constructing one wires
// requirement edges between consecutive items and is otherwise inert. A
// Sequence nested inside another Sequence wires the outer predecessor's
// tail(s) to the inner sequence's head(s), and the inner sequence's
// tail(s) to the next outer element's head(s).
type Sequence struct {
	items []sequenceElement
}

// NewSequence builds a linear chain out of Jobs and/or other *Sequences,
// adding "j[i+1] requires j[i]" edges (and their nested equivalent) as it
// goes. It returns an error if an item is neither a Job nor a *Sequence.
func NewSequence(items ...any) (*Sequence, error) {
	s := &Sequence{}
	for _, it := range items {
		switch v := it.(type) {
		case Job:
			s.items = append(s.items, jobElement{v})
		case *Sequence:
			s.items = append(s.items, v)
		default:
			return nil, fmt.Errorf("jobsched: sequence item must be a Job or *Sequence, got %T", it)
		}
	}
	if err := s.wire(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sequence) wire() error {
	for i := 1; i < len(s.items); i++ {
		prevTails := s.items[i-1].tails()
		curHeads := s.items[i].heads()
		for _, head := range curHeads {
			if err := head.Requires(prevTails...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sequence) heads() []Job {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[0].heads()
}

func (s *Sequence) tails() []Job {
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1].tails()
}

func (s *Sequence) flatten() []Job {
	var out []Job
	for _, it := range s.items {
		out = append(out, it.flatten()...)
	}
	return out
}

// Jobs returns every leaf job reachable from this Sequence, in the order
// they were added, flattening any nested Sequences.
func (s *Sequence) Jobs() []Job { return s.flatten() }
