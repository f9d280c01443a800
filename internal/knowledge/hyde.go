package knowledge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/pkg/cache"
	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

const (
	hydeTimeout    = 3 * time.Second
	hydeCacheTTL   = 30 * time.Minute
	hydeCacheLimit = 512
)

const hydeSystemPrompt = `You write short reference paragraphs about a software engineer's portfolio: their projects, work experience, skills, education and interests. Given a question, write one specific, factual-sounding paragraph of three to five sentences that would answer it. Name concrete technologies, roles and project types. Write only the paragraph, no preamble.`

// HyDE ranks documents against a hypothetical answer generated by the LLM
// rather than against the question itself. Every failure yields an empty
// ranking.
type HyDE struct {
	llm     llm.Provider
	logger  logging.Logger
	cache   *cache.Cache[string]
	timeout time.Duration
}

// NewHyDE returns a generator backed by provider. A nil provider disables it.
func NewHyDE(provider llm.Provider, logger logging.Logger) *HyDE {
	return &HyDE{
		llm:    provider,
		logger: logger,
		cache: cache.New[string](cache.Options{TTL: hydeCacheTTL, MaxEntries: hydeCacheLimit}, cache.MetricsHooks{
			OnHit:  func() { hydeCacheTotal.WithLabelValues("hit").Inc() },
			OnMiss: func() { hydeCacheTotal.WithLabelValues("miss").Inc() },
		}),
		timeout: hydeTimeout,
	}
}

type hydeResult struct {
	text string
	err  error
}

// Rank generates a hypothetical paragraph for query and BM25-scores it
// against ix. The generation races a 3s timer.
func (h *HyDE) Rank(ctx context.Context, ix *Index, query string) []Ranked {
	if h == nil || h.llm == nil || ix == nil {
		hydeCallsTotal.WithLabelValues("disabled").Inc()
		return nil
	}
	key := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if key == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan hydeResult, 1)
	go func() {
		text, err := h.cache.Get(ctx, key, h.generate)
		done <- hydeResult{text: text, err: err}
	}()

	var res hydeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		hydeCallsTotal.WithLabelValues("timeout").Inc()
		h.logger.WithField("timeout", h.timeout).Debug("HyDE generation timed out")
		return nil
	case errors.Is(res.err, errEmptyHypothesis):
		hydeCallsTotal.WithLabelValues("empty").Inc()
		return nil
	case res.err != nil:
		hydeCallsTotal.WithLabelValues("error").Inc()
		h.logger.WithError(res.err).Debug("HyDE generation failed")
		return nil
	}

	hydeCallsTotal.WithLabelValues("ok").Inc()
	return ix.Score(res.text)
}

func (h *HyDE) generate(ctx context.Context, query string) (string, error) {
	stream, err := h.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: hydeSystemPrompt},
		{Role: "user", Content: query},
	}, nil)
	if err != nil {
		return "", err
	}
	text, _, err := llm.Collect(stream)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyHypothesis
	}
	return text, nil
}

var errEmptyHypothesis = errors.New("empty hypothetical answer")
