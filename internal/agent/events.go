package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// Event types on the chat stream.
const (
	EventTool  = "tool"
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// Event is one SSE frame payload.
type Event struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// Sink receives events in emission order. Implementations drop events once
// closed instead of failing.
type Sink interface {
	Send(Event)
}

// sseStreamer writes events as "data: <json>\n\n" frames.
type sseStreamer struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newSSEStreamer(writer http.ResponseWriter) (*sseStreamer, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &sseStreamer{writer: writer, flusher: flusher}, nil
}

func (s *sseStreamer) Send(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		s.closed = true
		return
	}
	s.flusher.Flush()
}

// Close makes every later Send a no-op.
func (s *sseStreamer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
