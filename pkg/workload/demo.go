package workload

import "github.com/mtrqq/memsim/pkg/process"

// DemoMemory is the memory size used with the demo workload unless another
// one is given.
const DemoMemory = 1000

// Demo returns the built-in batch of ten processes arriving one per tick.
func Demo() *process.Set {
	return process.NewSet(
		process.New("P1", 0, 100),
		process.New("P2", 1, 200),
		process.New("P3", 2, 300),
		process.New("P4", 3, 150),
		process.New("P5", 4, 80),
		process.New("P6", 5, 220),
		process.New("P7", 6, 90),
		process.New("P8", 7, 130),
		process.New("P9", 8, 250),
		process.New("P10", 9, 60),
	)
}
