package policy

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mtrqq/memsim/pkg/process"
)

var ErrUnknownPolicy = errors.New("unknown ordering policy")

// Policy decides in which order the eligible processes of a tick are tried.
type Policy interface {
	Name() string
	// Order returns the eligible processes in the order they should be tried
	// at tick now. The input slice may be reordered in place.
	Order(eligible []*process.Process, now int) []*process.Process
	// Strict reports whether input with duplicate ids must abort the run
	// instead of asking for the entry again.
	Strict() bool
}

// InputOrder tries processes in the order they were entered.
type InputOrder struct{}

func (InputOrder) Name() string { return "input" }

func (InputOrder) Strict() bool { return false }

func (InputOrder) Order(eligible []*process.Process, _ int) []*process.Process {
	return byInputIndex(eligible)
}

// StrictInputOrder is InputOrder that refuses input with duplicate ids.
type StrictInputOrder struct{}

func (StrictInputOrder) Name() string { return "strict" }

func (StrictInputOrder) Strict() bool { return true }

func (StrictInputOrder) Order(eligible []*process.Process, _ int) []*process.Process {
	return byInputIndex(eligible)
}

// SizeAscending tries the smallest requests first, equal sizes keep their
// input order.
type SizeAscending struct{}

func (SizeAscending) Name() string { return "size" }

func (SizeAscending) Strict() bool { return true }

func (SizeAscending) Order(eligible []*process.Process, _ int) []*process.Process {
	slices.SortStableFunc(eligible, func(a, b *process.Process) int {
		if a.Size != b.Size {
			return a.Size - b.Size
		}
		return a.Index - b.Index
	})

	return eligible
}

func byInputIndex(eligible []*process.Process) []*process.Process {
	slices.SortStableFunc(eligible, func(a, b *process.Process) int {
		return a.Index - b.Index
	})

	return eligible
}

var registry = []Policy{InputOrder{}, StrictInputOrder{}, SizeAscending{}}

// ByName looks up a policy by its name, case-insensitively.
func ByName(name string) (Policy, error) {
	for _, p := range registry {
		if strings.EqualFold(p.Name(), name) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w %q, expected one of %s", ErrUnknownPolicy, name, strings.Join(Names(), ", "))
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for _, p := range registry {
		names = append(names, p.Name())
	}

	return names
}

// Describe returns a one-line human description of the policy.
func Describe(p Policy) string {
	switch p.(type) {
	case InputOrder:
		return "input order, duplicate ids are asked for again"
	case StrictInputOrder:
		return "input order, duplicate ids abort the run"
	case SizeAscending:
		return "smallest request first among arrived processes, duplicate ids abort the run"
	default:
		return p.Name()
	}
}
