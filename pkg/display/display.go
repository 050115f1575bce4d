// Package display renders simulation events for people and for tools.
package display

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mtrqq/memsim/pkg/sched"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Renderer is an observer that writes to an output stream.
type Renderer interface {
	sched.Observer
	Err() error
}

func Formats() []string {
	return []string{"text", "json"}
}

// New returns the renderer for the named format.
func New(format string, w io.Writer) (Renderer, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return NewText(w), nil
	case "json":
		return NewJSON(w), nil
	default:
		return nil, fmt.Errorf("%w %q, expected one of %s", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}
