package workload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mtrqq/memsim/pkg/process"
	"github.com/rs/zerolog/log"
)

// DuplicateMode decides what happens when an id is entered twice.
type DuplicateMode int

const (
	// Reprompt discards the entry and asks for it again.
	Reprompt DuplicateMode = iota
	// Abort fails the whole input.
	Abort
)

// Console reads the simulation parameters as whitespace separated tokens,
// writing prompts to out.
type Console struct {
	scanner      *bufio.Scanner
	out          io.Writer
	onDuplicate  DuplicateMode
	maxProcesses int
}

func NewConsole(in io.Reader, out io.Writer, onDuplicate DuplicateMode, maxProcesses int) *Console {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)

	return &Console{
		scanner:      scanner,
		out:          out,
		onDuplicate:  onDuplicate,
		maxProcesses: maxProcesses,
	}
}

func (c *Console) prompt(format string, args ...any) {
	// prompts are best effort, a closed output must not stop reading input
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) token(what string) (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}

	if err := c.scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", what, err)
	}

	return "", fmt.Errorf("failed to read %s: %w", what, io.ErrUnexpectedEOF)
}

func (c *Console) integer(what string) (int, error) {
	token, err := c.token(what)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", process.ErrInvalid, what, token)
	}

	return value, nil
}

// ReadMemory reads the total memory size in KB.
func (c *Console) ReadMemory() (int, error) {
	c.prompt("Enter total memory size (KB): ")
	total, err := c.integer("memory size")
	if err != nil {
		return 0, err
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: memory size must be positive, got %d", process.ErrInvalid, total)
	}

	return total, nil
}

// ReadProcesses reads the process count followed by one "id arrival size"
// entry per process.
func (c *Console) ReadProcesses() (*process.Set, error) {
	c.prompt("Enter number of processes: ")
	count, err := c.integer("process count")
	if err != nil {
		return nil, err
	}

	if count < 0 {
		return nil, fmt.Errorf("%w: process count must not be negative, got %d", process.ErrInvalid, count)
	}

	if c.maxProcesses > 0 && count > c.maxProcesses {
		return nil, fmt.Errorf("%w: maximum number of processes is %d", process.ErrTooMany, c.maxProcesses)
	}

	set := process.NewSet()
	c.prompt("Enter process details (PID ArrivalTime Size):\n")
	for set.Len() < count {
		p, err := c.readEntry()
		if err != nil {
			return nil, err
		}

		if set.Contains(p.ID) {
			if c.onDuplicate == Abort {
				return nil, fmt.Errorf("%w: %s, process ids must be unique", process.ErrDuplicateID, p.ID)
			}

			log.Debug().Str("id", p.ID.String()).Msg("duplicate process id entered, asking again")
			c.prompt("Error: Process ID %s already exists. Please enter a unique Process ID.\n", p.ID)
			continue
		}

		set.Add(p)
	}

	return set, nil
}

func (c *Console) readEntry() (*process.Process, error) {
	id, err := c.token("process id")
	if err != nil {
		return nil, err
	}

	arrival, err := c.integer("arrival time")
	if err != nil {
		return nil, err
	}

	size, err := c.integer("size")
	if err != nil {
		return nil, err
	}

	p := process.New(process.ID(id), arrival, size)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// IsIncomplete reports whether err was caused by input ending early.
func IsIncomplete(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}
