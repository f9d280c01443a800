package llm

import (
	"os"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "ANTHROPIC_API_KEY", "LLM_API_URL", "LLM_MAX_TOKENS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadConfig()

	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.Provider)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.APIKey)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", cfg.MaxTokens)
	}
}

func TestLoadConfig_AnthropicKeyFallback(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	if got := LoadConfig().APIKey; got != "sk-ant" {
		t.Fatalf("APIKey = %q, want sk-ant", got)
	}

	t.Setenv("LLM_API_KEY", "sk-llm")
	if got := LoadConfig().APIKey; got != "sk-llm" {
		t.Fatalf("APIKey = %q, want sk-llm", got)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"anthropic", "OpenAI", "ollama"} {
		if _, err := NewProvider(Config{Provider: name, Model: "m"}); err != nil {
			t.Fatalf("provider %s: %v", name, err)
		}
	}
	if _, err := NewProvider(Config{Provider: "mystery"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
