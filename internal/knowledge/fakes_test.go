package knowledge

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
)

// fakeProvider answers every completion with text after delay.
type fakeProvider struct {
	text  string
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeProvider) Complete(ctx context.Context, _ []llm.Message, _ []llm.Tool) (llm.Stream, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &textStream{parts: []string{f.text}}, nil
}

type textStream struct {
	parts []string
}

func (s *textStream) Recv() (llm.Chunk, error) {
	if len(s.parts) == 0 {
		return llm.Chunk{}, io.EOF
	}
	next := s.parts[0]
	s.parts = s.parts[1:]
	return llm.Chunk{Content: next}, nil
}

func (s *textStream) Close() error { return nil }
