package llm

import (
	"fmt"
	"strings"

	"github.com/loganventer/loganventerprofile-sub000/pkg/config"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	APIURL    string
	MaxTokens int
}

// DefaultModel is used when LLM_MODEL is unset.
const DefaultModel = "claude-3-5-haiku-latest"

// LoadConfig reads LLM_* variables. ANTHROPIC_API_KEY is accepted as a
// fallback for LLM_API_KEY.
func LoadConfig() Config {
	return Config{
		Provider:  config.GetEnv("LLM_PROVIDER", "anthropic"),
		Model:     config.GetEnv("LLM_MODEL", DefaultModel),
		APIKey:    config.FirstEnv("LLM_API_KEY", "ANTHROPIC_API_KEY"),
		APIURL:    config.GetEnv("LLM_API_URL", ""),
		MaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 1024),
	}
}

// NewProvider selects an implementation by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
