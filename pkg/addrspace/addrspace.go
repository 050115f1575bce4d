package addrspace

import (
	"errors"
	"fmt"

	"github.com/mtrqq/memsim/pkg/process"
	"github.com/mtrqq/memsim/pkg/utils"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoFit           = errors.New("no free block large enough for requested size")
	ErrNotFound        = errors.New("owner is not resident")
	ErrInvalidSize     = errors.New("size must be positive")
	ErrEmptyOwner      = errors.New("owner id must not be empty")
	ErrAlreadyResident = errors.New("owner already holds a block")
	ErrCorrupted       = errors.New("address space invariant violated")
)

// AddressSpace is a variable-partition memory of a fixed total size, tracked
// as an ordered list of blocks that tile [0, total) without gaps or overlaps.
// Allocation is first-fit over the list in address order, releasing a block
// coalesces it with its free neighbours.
//
// Limitations:
// - sized for small simulations, every operation is a linear scan
// - the address space never evicts on its own, callers decide what to free
// - does not provide safety guarantees for concurrent access
type AddressSpace struct {
	blocks []Block
	total  int
}

// New creates an address space with a single free block spanning all of
// memory.
func New(total int) (*AddressSpace, error) {
	if total <= 0 {
		return nil, fmt.Errorf("failed to initialize address space of %d: %w", total, ErrInvalidSize)
	}

	return &AddressSpace{
		blocks: []Block{{Start: 0, Size: total, Free: true}},
		total:  total,
	}, nil
}

func (s *AddressSpace) Total() int {
	return s.total
}

// Len returns the number of blocks, free and used.
func (s *AddressSpace) Len() int {
	return len(s.blocks)
}

// Blocks returns a copy of the block list in address order.
func (s *AddressSpace) Blocks() []Block {
	blocks := make([]Block, len(s.blocks))
	copy(blocks, s.blocks)
	return blocks
}

// All iterates over the blocks in address order.
func (s *AddressSpace) All(yield func(Block) bool) {
	for _, block := range s.blocks {
		if !yield(block) {
			return
		}
	}
}

func (s *AddressSpace) indexOf(owner process.ID) int {
	for i, block := range s.blocks {
		if !block.Free && block.Owner == owner {
			return i
		}
	}

	return -1
}

// Owner returns the block held by the given owner.
func (s *AddressSpace) Owner(owner process.ID) (Block, bool) {
	i := s.indexOf(owner)
	if i < 0 {
		return Block{}, false
	}

	return s.blocks[i], true
}

// firstFit returns the index of the first free block able to hold size,
// or -1 if there is none.
func (s *AddressSpace) firstFit(size int) int {
	for i, block := range s.blocks {
		if block.Free && block.Size >= size {
			return i
		}
	}

	return -1
}

// Allocate places size units for owner into the first free block large enough
// to hold them. The block is split when it is larger than requested, the
// remainder stays free right after the allocation. Nothing changes when the
// call fails.
func (s *AddressSpace) Allocate(owner process.ID, size int) (Block, error) {
	if size <= 0 {
		return Block{}, fmt.Errorf("unable to allocate %d for %s: %w", size, owner, ErrInvalidSize)
	}

	if owner.IsEmpty() {
		return Block{}, ErrEmptyOwner
	}

	if s.indexOf(owner) >= 0 {
		return Block{}, fmt.Errorf("unable to allocate for %s: %w", owner, ErrAlreadyResident)
	}

	index := s.firstFit(size)
	if index < 0 {
		return Block{}, ErrNoFit
	}

	matched := s.blocks[index]
	remaining := matched.Size - size

	s.blocks[index] = Block{Start: matched.Start, Size: size, Owner: owner}
	if remaining > 0 {
		s.blocks = utils.InsertAt(s.blocks, index+1, Block{
			Start: matched.Start + size,
			Size:  remaining,
			Free:  true,
		})
	}

	log.Debug().
		Str("owner", owner.String()).
		Int("start", matched.Start).
		Int("size", size).
		Int("remaining", remaining).
		Msg("allocated block")

	return s.blocks[index], nil
}

// Free releases the block held by owner and coalesces free neighbours.
// The returned block describes the released region before merging.
func (s *AddressSpace) Free(owner process.ID) (Block, error) {
	index := s.indexOf(owner)
	if index < 0 {
		return Block{}, fmt.Errorf("unable to free block of %s: %w", owner, ErrNotFound)
	}

	released := s.blocks[index]
	s.blocks[index].Free = true
	s.blocks[index].Owner = ""

	s.Coalesce()

	log.Debug().
		Str("owner", owner.String()).
		Int("start", released.Start).
		Int("size", released.Size).
		Msg("released block")

	released.Free = true
	released.Owner = ""
	return released, nil
}

// Coalesce merges every run of adjacent free blocks into a single block.
// Calling it on an already coalesced list is a no-op.
func (s *AddressSpace) Coalesce() {
	for i := 0; i < len(s.blocks)-1; {
		if s.blocks[i].Free && s.blocks[i+1].Free {
			s.blocks[i].Size += s.blocks[i+1].Size
			s.blocks = utils.RemoveAt(s.blocks, i+1)
			// stay on i, the merged block may border another free one
			continue
		}
		i++
	}
}

func (s *AddressSpace) UsedBytes() int {
	used := 0
	for _, block := range s.blocks {
		if !block.Free {
			used += block.Size
		}
	}

	return used
}

func (s *AddressSpace) FreeBytes() int {
	return s.total - s.UsedBytes()
}

// LargestFree returns the size of the largest free block, the biggest request
// that can currently be satisfied without eviction.
func (s *AddressSpace) LargestFree() int {
	largest := 0
	for _, block := range s.blocks {
		if block.Free && block.Size > largest {
			largest = block.Size
		}
	}

	return largest
}

// Verify checks the block list invariants: blocks tile [0, total) in order,
// no two neighbours are both free, used blocks have distinct non-empty owners
// and free blocks have none.
func (s *AddressSpace) Verify() error {
	if len(s.blocks) == 0 {
		return fmt.Errorf("%w: empty block list", ErrCorrupted)
	}

	owners := make(map[process.ID]struct{}, len(s.blocks))
	next := 0
	for i, block := range s.blocks {
		if block.Start != next {
			return fmt.Errorf("%w: block %d starts at %d, expected %d", ErrCorrupted, i, block.Start, next)
		}

		if block.Size <= 0 {
			return fmt.Errorf("%w: block %d has size %d", ErrCorrupted, i, block.Size)
		}
		next = block.End() + 1

		if block.Free {
			if !block.Owner.IsEmpty() {
				return fmt.Errorf("%w: free block %d is owned by %s", ErrCorrupted, i, block.Owner)
			}

			if i > 0 && s.blocks[i-1].Free {
				return fmt.Errorf("%w: blocks %d and %d are both free", ErrCorrupted, i-1, i)
			}
			continue
		}

		if block.Owner.IsEmpty() {
			return fmt.Errorf("%w: used block %d has no owner", ErrCorrupted, i)
		}

		if _, exists := owners[block.Owner]; exists {
			return fmt.Errorf("%w: %s owns more than one block", ErrCorrupted, block.Owner)
		}
		owners[block.Owner] = struct{}{}
	}

	if next != s.total {
		return fmt.Errorf("%w: blocks cover [0, %d), expected [0, %d)", ErrCorrupted, next, s.total)
	}

	return nil
}
