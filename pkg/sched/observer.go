package sched

import (
	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/process"
)

//go:generate mockgen -destination mock_observer_test.go -package sched -write_package_comment=false github.com/mtrqq/memsim/pkg/sched Observer

// Snapshot is the memory layout right after a process was admitted.
type Snapshot struct {
	Tick    int
	Process process.ID
	Block   addrspace.Block
	Blocks  []addrspace.Block
	Total   int
	Used    int
}

func (s Snapshot) Free() int {
	return s.Total - s.Used
}

// Eviction describes a resident process forcibly released to make room for
// another one.
type Eviction struct {
	Tick     int
	Victim   process.ID
	Incoming process.ID
	Released addrspace.Block
}

// Observer receives the events of a run as they happen. Evictions are
// reported before the allocation that needed them is retried.
type Observer interface {
	OnAdmit(snapshot Snapshot)
	OnEvict(eviction Eviction)
	OnComplete(stats Stats)
}
