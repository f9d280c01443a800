package config

import (
	"time"

	"github.com/loganventer/loganventerprofile-sub000/pkg/config"
	"github.com/loganventer/loganventerprofile-sub000/pkg/email"
	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
	"github.com/loganventer/loganventerprofile-sub000/pkg/redis"
)

// Config stores environment configuration for the concierge.
type Config struct {
	Port string

	LLM  llm.Config
	HyDE bool

	SigningSecret string
	AdminKey      string

	SMTP       email.Config
	OwnerEmail string
	SiteURL    string

	Redis       redis.Config
	RedisPrefix string

	MCPEndpoint string
	MCPToken    string

	AllowedOrigins []string
	ArtifactsDir   string

	ChatRatePerMinute int
	ChatBurst         int
	TokenRateLimit    int
	TokenRateWindow   time.Duration
}

// LoadConfig loads the concierge configuration from environment variables.
// Nothing is required here; missing secrets surface as server_misconfigured
// responses and an unhealthy /health instead of a failed boot.
func LoadConfig() Config {
	return Config{
		Port: config.GetEnv("PORT", "8080"),

		LLM:  llm.LoadConfig(),
		HyDE: config.GetEnvBool("HYDE_ENABLED", true),

		SigningSecret: config.FirstEnv("SIGNING_SECRET", "ADMIN_KEY"),
		AdminKey:      config.GetEnv("ADMIN_KEY", ""),

		SMTP: email.Config{
			Host:     config.GetEnv("SMTP_HOST", ""),
			Port:     config.GetEnv("SMTP_PORT", "587"),
			User:     config.GetEnv("SMTP_USER", ""),
			Password: config.FirstEnv("EMAIL_API_KEY", "SMTP_PASSWORD"),
			From:     config.GetEnv("FROM_EMAIL", ""),
			FromName: config.GetEnv("FROM_NAME", "Portfolio Concierge"),
		},
		OwnerEmail: config.GetEnv("OWNER_EMAIL", ""),
		SiteURL:    config.GetEnv("SITE_URL", ""),

		Redis: redis.Config{
			URL:        config.GetEnv("REDIS_URL", ""),
			Addrs:      config.GetEnvList("REDIS_ADDRS", nil),
			MasterName: config.GetEnv("REDIS_MASTER_NAME", ""),
			Username:   config.GetEnv("REDIS_USERNAME", ""),
			Password:   config.GetEnv("REDIS_PASSWORD", ""),
			DB:         config.GetEnvInt("REDIS_DB", 0),
		},
		RedisPrefix: config.GetEnv("REDIS_PREFIX", "concierge"),

		MCPEndpoint: config.GetEnv("MCP_ENDPOINT", ""),
		MCPToken:    config.GetEnv("MCP_TOKEN", ""),

		AllowedOrigins: config.GetEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		ArtifactsDir:   config.GetEnv("ARTIFACTS_DIR", ""),

		ChatRatePerMinute: config.GetEnvInt("CHAT_RATE_PER_MINUTE", 20),
		ChatBurst:         config.GetEnvInt("CHAT_RATE_BURST", 5),
		TokenRateLimit:    config.GetEnvInt("TOKEN_RATE_LIMIT", 5),
		TokenRateWindow:   config.GetEnvDuration("TOKEN_RATE_WINDOW", 10*time.Minute),
	}
}

// LLMConfigured reports whether chat can reach a model.
func (c Config) LLMConfigured() bool {
	return c.LLM.APIKey != "" || c.LLM.Provider == "ollama"
}
