package process

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxProcesses is the process count cap applied by input validation.
const DefaultMaxProcesses = 50

var (
	ErrDuplicateID = errors.New("duplicate process id")
	ErrTooMany     = errors.New("too many processes")
	ErrInvalid     = errors.New("invalid process")
)

// ID identifies a process. The empty ID is reserved for "no owner".
type ID string

func (id ID) IsEmpty() bool {
	return id == ""
}

func (id ID) String() string {
	return string(id)
}

// Process is a single memory request of the simulated batch.
//
// Allocated flips to true on the first admission. The scheduler only resets it
// when re-admission of evicted processes is enabled.
type Process struct {
	ID      ID
	Arrival int
	Size    int

	// Index is the position in the input, used as the stable tie-break.
	Index int

	Allocated  bool
	Evictions  int
	AdmittedAt int
}

func New(id ID, arrival, size int) *Process {
	return &Process{
		ID:         id,
		Arrival:    arrival,
		Size:       size,
		AdmittedAt: -1,
	}
}

func (p *Process) Validate() error {
	if p.ID.IsEmpty() || strings.ContainsAny(string(p.ID), " \t\r\n") {
		return fmt.Errorf("%w: id %q must be a non-empty token", ErrInvalid, p.ID)
	}

	if p.Arrival < 0 {
		return fmt.Errorf("%w: %s has negative arrival time %d", ErrInvalid, p.ID, p.Arrival)
	}

	if p.Size <= 0 {
		return fmt.Errorf("%w: %s has non-positive size %d", ErrInvalid, p.ID, p.Size)
	}

	return nil
}

// Eligible reports whether the process should be considered for admission at
// the given tick.
func (p *Process) Eligible(now int) bool {
	return !p.Allocated && p.Arrival <= now
}

func (p *Process) String() string {
	return fmt.Sprintf("%s(arrival=%d,size=%d)", p.ID, p.Arrival, p.Size)
}
