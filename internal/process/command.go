package process

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Commands understood by the supervised process.
const (
	CommandPass = "pass"
	CommandQuit = "quit"
)

// CommandWriter serialises textual commands onto a process's stdin.
//
// Each command is written as the name, then a space and the space-joined
// arguments if there are any, then a newline. Calls are mutually exclusive so
// bytes from concurrent commands never interleave.
type CommandWriter struct {
	mu     sync.Mutex
	w      io.WriteCloser
	bw     *bufio.Writer
	closed bool
}

// NewCommandWriter returns a CommandWriter writing to w.
func NewCommandWriter(w io.WriteCloser) *CommandWriter {
	return &CommandWriter{
		w:  w,
		bw: bufio.NewWriter(w),
	}
}

// FormatCommand returns the wire form of a command, including the trailing newline.
func FormatCommand(name string, args ...string) string {
	var b strings.Builder
	b.WriteString(name)
	if len(args) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(args, " "))
	}
	b.WriteByte('\n')
	return b.String()
}

// Send writes one command and flushes it. Errors are returned unchanged and
// the command is not retried.
func (c *CommandWriter) Send(name string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrWriterClosed
	}

	if _, err := c.bw.WriteString(FormatCommand(name, args...)); err != nil {
		c.bw.Reset(c.w)
		return err
	}
	if err := c.bw.Flush(); err != nil {
		// Drop whatever is left so a later command does not carry a partial line.
		c.bw.Reset(c.w)
		return err
	}
	return nil
}

// Close closes the underlying stream, signalling end of input to the process.
// Closing an already closed writer is a no-op.
func (c *CommandWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.w.Close()
}
