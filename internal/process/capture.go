package process

import (
	"bytes"
	"strings"
	"sync"
)

// captureBuffer collects one output stream of the child, up to limit bytes.
// Writes past the limit are counted as truncated and dropped, but the write
// still succeeds so the child is never blocked on a full pipe.
type captureBuffer struct {
	stream string
	limit  int
	logger Logger

	mu        sync.Mutex
	buf       bytes.Buffer
	truncated bool
}

func newCaptureBuffer(stream string, limit int, logger Logger) *captureBuffer {
	return &captureBuffer{
		stream: stream,
		limit:  limit,
		logger: logger,
	}
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit <= 0 {
		c.buf.Write(p)
	} else {
		room := c.limit - c.buf.Len()
		switch {
		case room >= len(p):
			c.buf.Write(p)
		case room > 0:
			c.buf.Write(p[:room])
			c.truncated = true
		default:
			c.truncated = true
		}
	}

	c.logger.Debug("process output",
		"stream", c.stream,
		"output", strings.TrimRight(string(p), "\n"),
	)
	return len(p), nil
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
