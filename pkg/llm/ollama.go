package llm

import (
	"context"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434/v1"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider talks to a local Ollama server through its OpenAI-compatible
// endpoint, tool calls included.
type OllamaProvider struct {
	openai *OpenAIProvider
}

// NewOllamaProvider accepts either the server root (as in OLLAMA_HOST) or the
// /v1 endpoint. The hosted default model and any API key are dropped: a
// local server has neither.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	cfg.APIURL = ollamaBaseURL(cfg.APIURL)
	if m := strings.TrimSpace(cfg.Model); m == "" || m == DefaultModel {
		cfg.Model = defaultOllamaModel
	}
	cfg.APIKey = ""
	return &OllamaProvider{openai: NewOpenAIProvider(cfg)}
}

func (p *OllamaProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error) {
	return p.openai.Complete(ctx, messages, tools)
}

func ollamaBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	switch {
	case u == "":
		return defaultOllamaURL
	case strings.HasSuffix(u, "/v1"):
		return u
	}
	return u + "/v1"
}
