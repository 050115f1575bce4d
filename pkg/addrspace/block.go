package addrspace

import (
	"fmt"

	"github.com/mtrqq/memsim/pkg/process"
)

// Block is a contiguous region of the address space. Used blocks carry the
// owner id, free blocks carry the empty id.
type Block struct {
	Start int
	Size  int
	Free  bool
	Owner process.ID
}

// End returns the last address covered by the block, inclusive.
func (b Block) End() int {
	return b.Start + b.Size - 1
}

// Label is the owner id for used blocks and "Free" otherwise.
func (b Block) Label() string {
	if b.Free {
		return "Free"
	}

	return b.Owner.String()
}

func (b Block) String() string {
	return fmt.Sprintf("[%d - %d] : %s (Size: %d)", b.Start, b.End(), b.Label(), b.Size)
}
