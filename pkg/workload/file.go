package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mtrqq/memsim/pkg/process"
)

var ErrInvalidWorkload = errors.New("invalid workload file")

// Entry is one process of a workload file.
type Entry struct {
	ID      string `yaml:"id"`
	Arrival int    `yaml:"arrival"`
	Size    int    `yaml:"size"`
}

// File is a workload description, all fields are optional and give way to
// command line flags.
type File struct {
	Memory    int     `yaml:"memory"`
	Policy    string  `yaml:"policy"`
	Processes []Entry `yaml:"processes"`
}

func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("%w: %w", ErrInvalidWorkload, err)
	}

	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%w: %s: %w", ErrInvalidWorkload, path, err)
	}

	return f, nil
}

// Parse decodes a YAML workload, unknown keys are rejected. An empty
// document is an empty workload.
func Parse(data []byte) (File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, err
	}

	return f, nil
}

// Set converts the entries into a process set in file order. Duplicates are
// kept, validation of the set rejects them.
func (f File) Set() *process.Set {
	set := process.NewSet()
	for _, e := range f.Processes {
		set.Add(process.New(process.ID(e.ID), e.Arrival, e.Size))
	}

	return set
}
