package agent

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
)

type reply struct {
	text  string
	calls []llm.ToolCall
	err   error
}

type llmCall struct {
	messages []llm.Message
	tools    []llm.Tool
}

// scriptedLLM answers each Complete with the next reply; once the script
// runs out it repeats the last one.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []reply
	calls   []llmCall
}

func (s *scriptedLLM) Complete(_ context.Context, messages []llm.Message, tools []llm.Tool) (llm.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, llmCall{
		messages: append([]llm.Message(nil), messages...),
		tools:    tools,
	})
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &replyStream{chunks: []llm.Chunk{{Content: r.text, ToolCalls: r.calls}}}, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type replyStream struct {
	chunks []llm.Chunk
}

func (s *replyStream) Recv() (llm.Chunk, error) {
	if len(s.chunks) == 0 {
		return llm.Chunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *replyStream) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Send(evt Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *recordingSink) ofType(kind string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) text() string {
	var out string
	for _, e := range s.ofType(EventDelta) {
		out += e.Text
	}
	return out
}

type countingCounter struct {
	mu    sync.Mutex
	count map[string]int
}

func (c *countingCounter) IncrementCount(_ context.Context, jti string, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = map[string]int{}
	}
	c.count[jti]++
	return c.count[jti], nil
}
