package process

import (
	"fmt"
)

// Set is the ordered batch of processes of one simulation run.
type Set struct {
	items []*Process
	index map[ID]int
}

func NewSet(processes ...*Process) *Set {
	s := &Set{index: make(map[ID]int, len(processes))}
	for _, p := range processes {
		s.Add(p)
	}

	return s
}

// Add appends the process and stamps its input index. Duplicates are kept,
// use Contains beforehand or Validate afterwards to reject them.
func (s *Set) Add(p *Process) {
	p.Index = len(s.items)
	if _, exists := s.index[p.ID]; !exists {
		s.index[p.ID] = p.Index
	}
	s.items = append(s.items, p)
}

func (s *Set) Contains(id ID) bool {
	_, exists := s.index[id]
	return exists
}

func (s *Set) Get(id ID) (*Process, bool) {
	i, exists := s.index[id]
	if !exists {
		return nil, false
	}

	return s.items[i], true
}

func (s *Set) Len() int {
	return len(s.items)
}

// All returns the processes in input order. The slice is shared with the set.
func (s *Set) All() []*Process {
	return s.items
}

// Eligible returns the processes that are not allocated and have arrived by
// now, in input order.
func (s *Set) Eligible(now int) []*Process {
	var eligible []*Process
	for _, p := range s.items {
		if p.Eligible(now) {
			eligible = append(eligible, p)
		}
	}

	return eligible
}

func (s *Set) AllAllocated() bool {
	for _, p := range s.items {
		if !p.Allocated {
			return false
		}
	}

	return true
}

func (s *Set) MaxArrival() int {
	latest := 0
	for _, p := range s.items {
		latest = max(latest, p.Arrival)
	}

	return latest
}

// Validate checks every process and the set-wide constraints: at most
// maxProcesses entries (ignored when not positive) and distinct ids.
func (s *Set) Validate(maxProcesses int) error {
	if maxProcesses > 0 && len(s.items) > maxProcesses {
		return fmt.Errorf("%w: got %d, maximum is %d", ErrTooMany, len(s.items), maxProcesses)
	}

	seen := make(map[ID]struct{}, len(s.items))
	for _, p := range s.items {
		if err := p.Validate(); err != nil {
			return err
		}

		if _, exists := seen[p.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	return nil
}
