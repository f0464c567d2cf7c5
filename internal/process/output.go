package process

import (
	"bytes"
	"strings"
	"sync"
)

// captureBuffer is a concurrency-safe accumulator for a captured stream.
type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// StandardOutput returns captured stdout with leading line separators
// trimmed, or ErrOutputNotCaptured when capture was not requested.
func (p *Process) StandardOutput() (string, error) {
	return readCapture(p.stdout)
}

// ErrorOutput returns captured stderr, trimmed like StandardOutput.
func (p *Process) ErrorOutput() (string, error) {
	return readCapture(p.stderr)
}

// CombinedOutput returns the interleaved stdout/stderr capture.
func (p *Process) CombinedOutput() (string, error) {
	return readCapture(p.combined)
}

func readCapture(b *captureBuffer) (string, error) {
	if b == nil {
		return "", ErrOutputNotCaptured
	}
	return strings.TrimLeft(b.String(), "\r\n"), nil
}
