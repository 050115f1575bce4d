package sched

import (
	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/process"
)

// Stats summarizes a run, complete or failed.
type Stats struct {
	Policy     string
	Total      int
	Ticks      int
	Admissions int
	Evictions  int
	PeakUsed   int
	Used       int
	Free       int
	// LargestFree is the biggest request that would fit without eviction.
	LargestFree int
	Resident    []process.ID
	Blocks      []addrspace.Block
}
