package gateway

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Provider is implemented once per backend. Stream returns a channel of
// normalized events, or a synchronous error for failures that occur
// before any event is delivered (connection refused, non-200 status).
// Only synchronous errors are retryable; once events flow, a failure is
// terminal for that call.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// sseScanner iterates "data:" payloads of a text/event-stream body.
// Shared by the adapters; each decodes payloads in its own wire format.
type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseScanner{scanner: sc}
}

// Next returns the next data payload, or false at end of stream.
// The "[DONE]" sentinel some providers send terminates the stream.
func (s *sseScanner) Next() (string, bool) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return "", false
		}
		return data, true
	}
	return "", false
}

// Err returns any scan error after Next returns false.
func (s *sseScanner) Err() error { return s.scanner.Err() }
