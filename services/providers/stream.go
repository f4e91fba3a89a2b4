package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Stream is the raw output of a streaming chat call.
//
// A Stream is single-pass. Callers must Close it once they are done, whether
// or not it was fully drained; Close releases the backend connection and
// cancels the request context. Close is idempotent and may be called from a
// goroutine other than the reader.
type Stream struct {
	provider string
	r        io.Reader
	c        io.Closer
	cancel   context.CancelFunc

	once     sync.Once
	closeErr error
}

// NewStream wraps r as the output of provider. c and cancel are released on Close
// and may be nil.
func NewStream(provider string, r io.Reader, c io.Closer, cancel context.CancelFunc) *Stream {
	return &Stream{
		provider: provider,
		r:        r,
		c:        c,
		cancel:   cancel,
	}
}

// Provider returns the name of the provider that produced the stream
func (s *Stream) Provider() string {
	return s.provider
}

// Read implements io.Reader
func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the underlying connection
func (s *Stream) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.c != nil {
			s.closeErr = s.c.Close()
		}
	})
	return s.closeErr
}

// maxEventSize bounds a single SSE line
const maxEventSize = 1024 * 1024

// streamChunk is the subset of the incremental delta format we decode
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ErrStreamEvent is returned by ReadDeltas when the backend emits an error event mid-stream
var ErrStreamEvent = errors.New("stream error event")

// ReadDeltas decodes an incremental-delta SSE stream and invokes fn with each
// non-empty content delta, in order. It returns nil on the [DONE] sentinel or EOF.
func ReadDeltas(r io.Reader, fn func(delta string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		if chunk.Error != nil {
			return fmt.Errorf("%w: %s", ErrStreamEvent, chunk.Error.Message)
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := fn(choice.Delta.Content); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}
	return nil
}

// CollectText drains the stream and returns the concatenated content
func CollectText(r io.Reader) (string, error) {
	var sb strings.Builder
	err := ReadDeltas(r, func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	return sb.String(), err
}
