package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/sched"
)

// Text renders the run as the human readable memory layout listing.
// The first write error is kept and all later output is dropped.
type Text struct {
	w   io.Writer
	err error
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Err() error {
	return t.err
}

func (t *Text) printf(format string, args ...any) {
	if t.err != nil {
		return
	}

	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *Text) OnAdmit(snapshot sched.Snapshot) {
	t.printf("Allocating %s (%d KB) at address %d\n", snapshot.Process, snapshot.Block.Size, snapshot.Block.Start)
	t.printf("\n%s", Layout(snapshot.Blocks, snapshot.Total))
}

func (t *Text) OnEvict(eviction sched.Eviction) {
	t.printf("Replacing process %s due to lack of memory\n", eviction.Victim)
}

func (t *Text) OnComplete(stats sched.Stats) {
	t.printf("\nSimulation complete: %d ticks, %d admissions, %d evictions, peak %d KB (policy %s)\n",
		stats.Ticks, stats.Admissions, stats.Evictions, stats.PeakUsed, stats.Policy)
}

// Layout formats the block list followed by the memory totals.
func Layout(blocks []addrspace.Block, total int) string {
	var sb strings.Builder
	used := 0

	sb.WriteString("Memory Layout:\n")
	for _, block := range blocks {
		sb.WriteString(block.String())
		sb.WriteByte('\n')
		if !block.Free {
			used += block.Size
		}
	}
	fmt.Fprintf(&sb, "Total: %d KB | Used: %d KB | Free: %d KB\n", total, used, total-used)

	return sb.String()
}
