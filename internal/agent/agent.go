// Package agent runs one chat turn: it admits the turn against the token's
// message quota, drives bounded tool-use rounds with the LLM, filters the
// answer and streams it as events.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/internal/tools"
	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

const (
	defaultMaxRounds    = 3
	defaultMessageLimit = 25
	defaultHistoryTurns = 10
	deltaSize           = 20
	disposeTimeout      = 5 * time.Second
)

// ErrDemoLimit is returned by Admit once a token has used its message quota.
var ErrDemoLimit = errors.New("demo_limit")

const genericError = "Something went wrong while answering. Please try again."

const emptyAnswer = "I couldn't put an answer together for that. Could you rephrase the question?"

// ToolSet is the per-turn view of the tool registry.
type ToolSet interface {
	LLMTools() []llm.Tool
	Validate(name string, input json.RawMessage) bool
	Execute(ctx context.Context, name string, input json.RawMessage) string
	Dispose(ctx context.Context)
}

// ToolSetFactory builds and initializes a ToolSet for one turn.
type ToolSetFactory func(ctx context.Context) ToolSet

// Counter tracks messages per token.
type Counter interface {
	IncrementCount(ctx context.Context, jti string, limit int) (int, error)
}

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is the input to Run.
type Turn struct {
	Message string
	History []HistoryMessage
}

type Config struct {
	LLM          llm.Provider
	Tools        ToolSetFactory
	Counter      Counter
	Owner        corpus.About
	Logger       logging.Logger
	MaxRounds    int
	MessageLimit int
	HistoryTurns int
}

type Agent struct {
	llm          llm.Provider
	tools        ToolSetFactory
	counter      Counter
	logger       logging.Logger
	systemPrompt string
	safeResponse string
	maxRounds    int
	messageLimit int
	historyTurns int
	wg           sync.WaitGroup
}

func New(cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = defaultMessageLimit
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	return &Agent{
		llm:          cfg.LLM,
		tools:        cfg.Tools,
		counter:      cfg.Counter,
		logger:       cfg.Logger,
		systemPrompt: SystemPrompt(cfg.Owner),
		safeResponse: SafeResponse(cfg.Owner),
		maxRounds:    cfg.MaxRounds,
		messageLimit: cfg.MessageLimit,
		historyTurns: cfg.HistoryTurns,
	}
}

// Configured reports whether an LLM provider is wired.
func (a *Agent) Configured() bool {
	return a != nil && a.llm != nil && a.counter != nil
}

// Wait blocks until detached tool-set disposals finish.
func (a *Agent) Wait() {
	a.wg.Wait()
}

// Admit counts one message against jti's quota. At the limit it returns
// ErrDemoLimit without counting. The count is taken before any LLM call, so
// turns that later fail still use quota.
func (a *Agent) Admit(ctx context.Context, jti string) error {
	_, err := a.counter.IncrementCount(ctx, jti, a.messageLimit)
	if errors.Is(err, session.ErrLimitReached) {
		chatTurnsTotal.WithLabelValues("demo_limit").Inc()
		return ErrDemoLimit
	}
	if err != nil {
		return fmt.Errorf("count message: %w", err)
	}
	return nil
}

// Run answers turn, sending tool, delta and done events to sink, or a single
// error event if the turn fails. The returned error is for logging only.
func (a *Agent) Run(ctx context.Context, turn Turn, sink Sink) error {
	var ts ToolSet = emptyToolSet{}
	if a.tools != nil {
		if built := a.tools(ctx); built != nil {
			ts = built
		}
	}
	defer a.dispose(ts)

	text, rounds, err := a.converse(ctx, a.buildMessages(turn), ts, sink)
	toolRoundsHistogram.Observe(float64(rounds))
	if err != nil {
		chatTurnsTotal.WithLabelValues("error").Inc()
		sink.Send(Event{Type: EventError, Message: genericError})
		return err
	}

	if strings.TrimSpace(text) == "" {
		text = emptyAnswer
	}
	text, filtered := FilterOutput(text, a.safeResponse)
	if filtered {
		chatTurnsTotal.WithLabelValues("filtered").Inc()
		a.logger.Warn("Chat output matched a leak pattern and was replaced")
	} else {
		chatTurnsTotal.WithLabelValues("ok").Inc()
	}

	for _, piece := range chunkRunes(text, deltaSize) {
		sink.Send(Event{Type: EventDelta, Text: piece})
	}
	sink.Send(Event{Type: EventDone})
	return nil
}

// buildMessages assembles the directive, the trailing history and the
// current message. User turns are sanitized and spotlighted.
func (a *Agent) buildMessages(turn Turn) []llm.Message {
	history := turn.History
	if len(history) > a.historyTurns {
		history = history[len(history)-a.historyTurns:]
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt})
	for _, h := range history {
		switch h.Role {
		case "user":
			messages = append(messages, llm.Message{Role: "user", Content: Spotlight(Sanitize(h.Content))})
		case "assistant":
			if strings.TrimSpace(h.Content) == "" {
				continue
			}
			messages = append(messages, llm.Message{Role: "assistant", Content: h.Content})
		}
	}
	return append(messages, llm.Message{Role: "user", Content: Spotlight(Sanitize(turn.Message))})
}

// converse runs up to maxRounds tool-enabled calls. A round without tool
// calls yields the answer; if every round asks for tools, one last call is
// made without them.
func (a *Agent) converse(ctx context.Context, messages []llm.Message, ts ToolSet, sink Sink) (string, int, error) {
	toolDefs := ts.LLMTools()
	for round := 0; round < a.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", round, err
		}
		text, calls, err := a.complete(ctx, messages, toolDefs)
		if err != nil {
			return "", round, err
		}
		if len(calls) == 0 {
			return text, round, nil
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: text, ToolCalls: calls})
		for _, call := range calls {
			sink.Send(Event{Type: EventTool, Name: call.Name})
		}
		for _, call := range calls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Name:       call.Name,
				Content:    a.runTool(ctx, ts, call),
				ToolCallID: call.ID,
			})
		}
	}

	a.logger.WithField("rounds", a.maxRounds).Debug("Tool round cap reached, requesting final answer")
	text, _, err := a.complete(ctx, messages, nil)
	return text, a.maxRounds, err
}

func (a *Agent) runTool(ctx context.Context, ts ToolSet, call llm.ToolCall) string {
	input := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if !ts.Validate(call.Name, input) {
		a.logger.WithField("tool", call.Name).Debug("Rejected tool input")
		return tools.ErrorResult("Invalid tool input")
	}
	return ts.Execute(ctx, call.Name, input)
}

func (a *Agent) complete(ctx context.Context, messages []llm.Message, toolDefs []llm.Tool) (string, []llm.ToolCall, error) {
	start := time.Now()
	text, calls, err := a.collect(ctx, messages, toolDefs)
	llmDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		llmCallsTotal.WithLabelValues("error").Inc()
		return "", nil, fmt.Errorf("llm completion: %w", err)
	}
	llmCallsTotal.WithLabelValues("success").Inc()
	return text, calls, nil
}

func (a *Agent) collect(ctx context.Context, messages []llm.Message, toolDefs []llm.Tool) (string, []llm.ToolCall, error) {
	stream, err := a.llm.Complete(ctx, messages, toolDefs)
	if err != nil {
		return "", nil, err
	}
	return llm.Collect(stream)
}

// dispose releases the tool set on its own goroutine so the response is not
// held open by remote session teardown.
func (a *Agent) dispose(ts ToolSet) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()
		ts.Dispose(ctx)
	}()
}

type emptyToolSet struct{}

func (emptyToolSet) LLMTools() []llm.Tool { return nil }
func (emptyToolSet) Validate(string, json.RawMessage) bool { return false }
func (emptyToolSet) Execute(context.Context, string, json.RawMessage) string { return "" }
func (emptyToolSet) Dispose(context.Context) {}
