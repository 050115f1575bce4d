package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/policy"
	"github.com/mtrqq/memsim/pkg/process"
	"github.com/mtrqq/memsim/pkg/residency"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCapacity means a request can never be satisfied, even with the
	// whole memory free.
	ErrCapacity = errors.New("process does not fit into total memory")
	// ErrResidencyCorrupted means the residency queue and the address space
	// disagree about who is resident.
	ErrResidencyCorrupted = errors.New("residency bookkeeping corrupted")
	ErrTickLimit          = errors.New("tick limit exceeded")
	ErrAlreadyStarted     = errors.New("scheduler already started")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type options struct {
	readmit  bool
	maxTicks int
	verify   bool
}

type Option func(*options)

// WithReadmit makes eviction reset the victim's allocated flag, so it becomes
// eligible again on the following tick. By default an evicted process leaves
// the simulation for good.
func WithReadmit(readmit bool) Option {
	return func(o *options) { o.readmit = readmit }
}

// WithMaxTicks bounds the number of ticks run, ticks 0 through ticks-1. Zero
// derives the bound from the process set.
func WithMaxTicks(ticks int) Option {
	return func(o *options) { o.maxTicks = ticks }
}

// WithVerify checks the address space and residency invariants after every
// admission.
func WithVerify(verify bool) Option {
	return func(o *options) { o.verify = verify }
}

// Scheduler drives one simulation run: per tick it admits the eligible
// processes in policy order, evicting the longest-resident processes whenever
// a request does not fit.
//
// A Scheduler owns its address space and residency queue and is good for a
// single Run.
type Scheduler struct {
	space     *addrspace.AddressSpace
	queue     *residency.Queue
	policy    policy.Policy
	observers []Observer
	opts      options

	state State
	stats Stats
}

func New(totalMemory int, pol policy.Policy, opts ...Option) (*Scheduler, error) {
	space, err := addrspace.New(totalMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		space:  space,
		queue:  residency.New(),
		policy: pol,
	}
	for _, opt := range opts {
		opt(&s.opts)
	}

	return s, nil
}

func (s *Scheduler) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Scheduler) State() State {
	return s.state
}

// Blocks returns the current memory layout.
func (s *Scheduler) Blocks() []addrspace.Block {
	return s.space.Blocks()
}

// Resident returns the resident processes from oldest to newest.
func (s *Scheduler) Resident() []process.ID {
	return s.queue.IDs()
}

func (s *Scheduler) tickLimit(set *process.Set) int {
	if s.opts.maxTicks > 0 {
		return s.opts.maxTicks
	}

	n := set.Len()
	return set.MaxArrival() + 1 + n*(n+1)
}

// Run simulates the admission of the whole set. It returns when every process
// has been allocated, or with the first fatal error. The context is checked
// between ticks.
func (s *Scheduler) Run(ctx context.Context, set *process.Set) (Stats, error) {
	if s.state != StateIdle {
		return s.stats, ErrAlreadyStarted
	}

	s.state = StateRunning
	s.stats = Stats{Policy: s.policy.Name(), Total: s.space.Total()}

	err := s.loop(ctx, set)
	s.stats.Resident = s.queue.IDs()
	s.stats.Used = s.space.UsedBytes()
	s.stats.Free = s.space.FreeBytes()
	s.stats.LargestFree = s.space.LargestFree()
	s.stats.Blocks = s.space.Blocks()

	if err != nil {
		s.state = StateFailed
		log.Debug().Err(err).Int("tick", s.stats.Ticks).Msg("simulation failed")
		return s.stats, err
	}

	s.state = StateDone
	for _, o := range s.observers {
		o.OnComplete(s.stats)
	}

	return s.stats, nil
}

func (s *Scheduler) loop(ctx context.Context, set *process.Set) error {
	limit := s.tickLimit(set)

	for tick := 0; ; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if tick >= limit {
			return fmt.Errorf("%w: %d processes still unallocated after %d ticks", ErrTickLimit, pending(set), limit)
		}

		s.stats.Ticks = tick + 1
		eligible := s.policy.Order(set.Eligible(tick), tick)
		log.Debug().Int("tick", tick).Int("eligible", len(eligible)).Msg("tick started")

		for _, p := range eligible {
			if p.Allocated {
				continue
			}

			if err := s.admit(tick, set, p); err != nil {
				return err
			}
		}

		if set.AllAllocated() {
			return nil
		}
	}
}

func pending(set *process.Set) int {
	n := 0
	for _, p := range set.All() {
		if !p.Allocated {
			n++
		}
	}

	return n
}

// admit allocates memory for p, evicting resident processes oldest first
// until the request fits.
func (s *Scheduler) admit(tick int, set *process.Set, p *process.Process) error {
	for {
		block, err := s.space.Allocate(p.ID, p.Size)
		if err == nil {
			s.onAdmitted(tick, p, block)
			return s.verify()
		}

		if !errors.Is(err, addrspace.ErrNoFit) {
			return fmt.Errorf("failed to admit %s: %w", p.ID, err)
		}

		if err := s.evictOldest(tick, set, p); err != nil {
			return err
		}
	}
}

func (s *Scheduler) evictOldest(tick int, set *process.Set, incoming *process.Process) error {
	victim, ok := s.queue.DequeueOldest()
	if !ok {
		return fmt.Errorf("%w: %s requests %d KB, total memory is %d KB",
			ErrCapacity, incoming.ID, incoming.Size, s.space.Total())
	}

	released, err := s.space.Free(victim)
	if err != nil {
		return fmt.Errorf("%w: evicting %s: %w", ErrResidencyCorrupted, victim, err)
	}

	if p, found := set.Get(victim); found {
		p.Evictions++
		if s.opts.readmit {
			p.Allocated = false
		}
	}
	s.stats.Evictions++

	log.Debug().
		Int("tick", tick).
		Str("victim", victim.String()).
		Str("incoming", incoming.ID.String()).
		Msg("evicted oldest resident process")

	eviction := Eviction{Tick: tick, Victim: victim, Incoming: incoming.ID, Released: released}
	for _, o := range s.observers {
		o.OnEvict(eviction)
	}

	return nil
}

func (s *Scheduler) onAdmitted(tick int, p *process.Process, block addrspace.Block) {
	p.Allocated = true
	p.AdmittedAt = tick
	s.queue.Enqueue(p.ID)

	used := s.space.UsedBytes()
	s.stats.Admissions++
	s.stats.PeakUsed = max(s.stats.PeakUsed, used)

	log.Debug().
		Int("tick", tick).
		Str("process", p.ID.String()).
		Int("start", block.Start).
		Int("blocks", s.space.Len()).
		Msg("admitted process")

	snapshot := Snapshot{
		Tick:    tick,
		Process: p.ID,
		Block:   block,
		Blocks:  s.space.Blocks(),
		Total:   s.space.Total(),
		Used:    used,
	}
	for _, o := range s.observers {
		o.OnAdmit(snapshot)
	}
}

func (s *Scheduler) verify() error {
	if !s.opts.verify {
		return nil
	}

	if err := s.space.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrResidencyCorrupted, err)
	}

	for block := range s.space.All {
		if !block.Free && !s.queue.Contains(block.Owner) {
			return fmt.Errorf("%w: %s holds a block but is not queued", ErrResidencyCorrupted, block.Owner)
		}
	}

	var blockless process.ID
	s.queue.Visit(func(id process.ID) bool {
		if _, ok := s.space.Owner(id); !ok {
			blockless = id
			return false
		}
		return true
	})
	if !blockless.IsEmpty() {
		return fmt.Errorf("%w: %s is queued but holds no block", ErrResidencyCorrupted, blockless)
	}

	return nil
}
