package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Provider streams a completion for a conversation, optionally offering tools.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error)
}

type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type Chunk struct {
	Content   string
	ToolCalls []ToolCall
}

// Message is one conversation turn. Assistant turns that requested tools carry
// ToolCalls; role "tool" turns answer one call by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Collect drains a stream into its concatenated text and merged tool calls,
// closing the stream before returning.
func Collect(stream Stream) (string, []ToolCall, error) {
	defer stream.Close()
	var text strings.Builder
	var calls []ToolCall
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), calls, nil
		}
		if err != nil {
			return text.String(), calls, err
		}
		text.WriteString(chunk.Content)
		if len(chunk.ToolCalls) > 0 {
			calls = MergeToolCalls(calls, chunk.ToolCalls)
		}
	}
}

// MergeToolCalls folds streamed tool-call fragments into complete calls.
// Fragments with a known ID replace that call's arguments (providers send the
// accumulated input); fragments without an ID extend the most recent call.
func MergeToolCalls(existing, incoming []ToolCall) []ToolCall {
	for _, inc := range incoming {
		if inc.ID == "" && len(existing) > 0 {
			last := &existing[len(existing)-1]
			last.Arguments += inc.Arguments
			if last.Name == "" {
				last.Name = inc.Name
			}
			continue
		}
		found := false
		for i, ex := range existing {
			if ex.ID != "" && ex.ID == inc.ID {
				existing[i].Arguments = inc.Arguments
				if inc.Name != "" {
					existing[i].Name = inc.Name
				}
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}

type sseStream struct {
	resp   *http.Response
	reader *bufio.Reader
	decode func([]byte) (Chunk, error)
}

func newSSEStream(resp *http.Response, decode func([]byte) (Chunk, error)) Stream {
	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		decode: decode,
	}
}

func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}

func (s *sseStream) Recv() (Chunk, error) {
	for {
		data, err := s.readEvent()
		if err != nil {
			return Chunk{}, err
		}
		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return Chunk{}, io.EOF
		}
		chunk, err := s.decode(data)
		if err != nil {
			return Chunk{}, err
		}
		if chunk.Content == "" && len(chunk.ToolCalls) == 0 {
			continue
		}
		return chunk, nil
	}
}

func (s *sseStream) readEvent() ([]byte, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if errors.Is(err, io.EOF) {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			return nil, io.EOF
		}
	}
}
