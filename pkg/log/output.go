package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to stdout (or stderr for
// Warn/Error/Fatal), matching common CLI behavior.
type ConsoleOutput struct {
	mu    sync.Mutex
	out   io.Writer
	errOut io.Writer
}

// NewConsoleOutput returns a ConsoleOutput writing to os.Stdout/os.Stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{out: os.Stdout, errOut: os.Stderr}
}

func (c *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.out
	if entry.Level >= WarnLevel {
		w = c.errOut
	}
	_, err := w.Write(formatted)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

// NullOutput discards every entry. Useful in tests that only assert on
// behavior, not log content.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }

// WriterOutput writes formatted entries to an arbitrary io.Writer, useful
// for capturing log output in tests.
type WriterOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput wraps w.
func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{w: w} }

func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

func (o *WriterOutput) Close() error { return nil }
