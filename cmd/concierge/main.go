package main

import (
	"context"
	"time"

	"github.com/loganventer/loganventerprofile-sub000/internal/admission"
	"github.com/loganventer/loganventerprofile-sub000/internal/agent"
	conciergeconfig "github.com/loganventer/loganventerprofile-sub000/internal/config"
	"github.com/loganventer/loganventerprofile-sub000/internal/corpus"
	"github.com/loganventer/loganventerprofile-sub000/internal/frontdoor"
	"github.com/loganventer/loganventerprofile-sub000/internal/knowledge"
	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/internal/tools"
	"github.com/loganventer/loganventerprofile-sub000/pkg/clients"
	"github.com/loganventer/loganventerprofile-sub000/pkg/config"
	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/monitoring"
	"github.com/loganventer/loganventerprofile-sub000/pkg/redis"
	"github.com/loganventer/loganventerprofile-sub000/pkg/server"
	"github.com/loganventer/loganventerprofile-sub000/pkg/version"
)

const (
	serviceName  = "concierge"
	messageLimit = 25
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService(serviceName)

	// Load environment variables
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	logger.WithField("version", version.String()).Info("Starting concierge (portfolio chat API)")

	cfg := conciergeconfig.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker(serviceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GitCommit)

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LLM_API_KEY":    llmKeyForHealth(cfg),
		"SIGNING_SECRET": cfg.SigningSecret,
	}))

	// Session store. A missing or unreachable Redis leaves admission
	// misconfigured rather than aborting the boot.
	var store *session.Store
	if cfg.Redis.Configured() {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := redis.NewClient(connectCtx, cfg.Redis)
		connectCancel()
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis - admission disabled")
		} else {
			defer func() { _ = client.Close() }()
			store = session.NewStore(client, cfg.RedisPrefix)
			logger.Info("Connected to Redis")
		}
	} else {
		logger.Warn("REDIS_URL/REDIS_ADDRS not set - admission disabled")
	}
	var redisPinger monitoring.Pinger
	if store != nil {
		redisPinger = store
	}
	healthChecker.AddCheck("redis", monitoring.PingHealthCheck("redis", redisPinger))

	// LLM provider. Chat answers server_misconfigured without one.
	var provider llm.Provider
	if cfg.LLMConfigured() {
		p, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			logger.WithError(err).Error("Failed to create LLM provider - chat disabled")
		} else {
			provider = p
		}
	} else {
		logger.Warn("LLM_API_KEY not set - chat disabled")
	}

	// Knowledge base
	var hyde *knowledge.HyDE
	if provider != nil && cfg.HyDE {
		hyde = knowledge.NewHyDE(provider, logger)
	}
	retriever, err := knowledge.Load(cfg.ArtifactsDir, hyde, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load knowledge base")
	}
	portfolio, err := corpus.Default()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load portfolio corpus")
	}
	logger.WithFields(logging.Fields{
		"chunks":  len(retriever.Chunks()),
		"indexed": retriever.Indexed(),
	}).Info("Knowledge base loaded")

	local := tools.NewLocalProvider(portfolio, retriever, logger)

	// Remote MCP tools share one breaker across turns so an outage trips it
	// once instead of per request.
	var breaker *clients.Breaker
	if cfg.MCPEndpoint != "" {
		bc := clients.DefaultBreakerConfig("mcp")
		bc.Logger = logger
		breaker = clients.NewBreaker(bc)
	}
	toolSets := func(ctx context.Context) agent.ToolSet {
		registry := tools.NewRegistry(logger)
		_ = registry.Register(local)
		if cfg.MCPEndpoint != "" {
			_ = registry.Register(tools.NewRemoteProvider(tools.RemoteConfig{
				Endpoint: cfg.MCPEndpoint,
				Token:    cfg.MCPToken,
				Breaker:  breaker,
				Logger:   logger,
			}))
		}
		registry.Initialize(ctx)
		return registry
	}

	// Admission
	limiter := admission.NewRateLimiter(cfg.TokenRateLimit, cfg.TokenRateWindow)
	limiter.StartCleanup(ctx)
	admissionService := admission.NewService(admission.Config{
		Store:         store,
		SigningSecret: cfg.SigningSecret,
		AdminKey:      cfg.AdminKey,
		Limiter:       limiter,
		Notifier: admission.NewNotifier(admission.NotifierConfig{
			SMTP:       cfg.SMTP,
			OwnerEmail: cfg.OwnerEmail,
			SiteURL:    cfg.SiteURL,
		}, logger),
		Logger: logger,
	})
	if !admissionService.Configured() {
		logger.Warn("Admission not configured - /token and /chat will answer server_misconfigured")
	}

	// Agent
	agentCfg := agent.Config{
		LLM:          provider,
		Tools:        toolSets,
		Owner:        portfolio.About,
		MessageLimit: messageLimit,
		Logger:       logger,
	}
	var mcpCounter tools.CallCounter
	if store != nil {
		agentCfg.Counter = store
		mcpCounter = store
	}
	concierge := agent.New(agentCfg)
	chat := agent.NewChatHandler(concierge, admissionService, logger)

	// Routes
	chatLimiter := frontdoor.NewIPLimiter(cfg.ChatRatePerMinute, cfg.ChatBurst)
	chatLimiter.StartCleanup(ctx)

	// MCP callers present the admin key or a chat token; tool calls share
	// the chat message quota.
	mcpHandler := tools.NewMCPHandler(
		tools.NewMCPServer(local, tools.QuotaGate(mcpCounter, messageLimit), logger),
		admissionService.VerifyBearer,
	)

	router := server.SetupServiceRouter(logger, serviceName, healthChecker, metricsCollector)
	frontdoor.RegisterRoutes(router, frontdoor.Config{
		Origins: cfg.AllowedOrigins,
		Limiter: chatLimiter,
		Logger:  logger,
	}, frontdoor.Handlers{
		Chat:  chat.HandleChat,
		Token: admission.Handler(admissionService, logger),
		MCP:   mcpHandler,
	})

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig(serviceName, cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	cancel()
	admissionService.Wait()
	concierge.Wait()
	logger.Info("Concierge stopped")
}

// llmKeyForHealth reports a placeholder for keyless providers so the
// configuration check only flags a genuinely missing key.
func llmKeyForHealth(cfg conciergeconfig.Config) string {
	if cfg.LLMConfigured() {
		return "set"
	}
	return ""
}
