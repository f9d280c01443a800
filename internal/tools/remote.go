package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loganventer/loganventerprofile-sub000/pkg/clients"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/version"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultCallTimeout    = 8 * time.Second
)

var errNoEndpoint = errors.New("remote tools: endpoint not configured")

// RemoteConfig configures an MCP-backed provider.
type RemoteConfig struct {
	// Name identifies the provider in logs and metrics. Defaults to "mcp".
	Name string
	// Endpoint is the streamable HTTP MCP URL.
	Endpoint string
	// Token, when set, is sent as a bearer token on every request.
	Token          string
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	HTTPClient     *http.Client
	Breaker        *clients.Breaker
	Logger         logging.Logger
}

// RemoteProvider discovers and calls tools on an external MCP server. Any
// connection failure leaves it unavailable with no tools.
type RemoteProvider struct {
	cfg    RemoteConfig
	client *mcp.Client

	mu        sync.RWMutex
	session   *mcp.ClientSession
	tools     []Descriptor
	schemas   map[string]map[string]any
	available bool
}

func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	if cfg.Name == "" {
		cfg.Name = "mcp"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Breaker == nil {
		bc := clients.DefaultBreakerConfig(cfg.Name)
		bc.Logger = cfg.Logger
		cfg.Breaker = clients.NewBreaker(bc)
	}
	return &RemoteProvider{
		cfg: cfg,
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "concierge",
			Version: version.Version,
		}, nil),
	}
}

func (p *RemoteProvider) Name() string { return p.cfg.Name }

// Initialize connects and lists tools under the connect timeout. Calling it on
// an available provider is a no-op. While the breaker is open it returns
// clients.ErrBreakerOpen without dialing.
func (p *RemoteProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available {
		return nil
	}
	if p.cfg.Endpoint == "" {
		return errNoEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()

	httpClient := p.cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	transport := &mcp.StreamableClientTransport{
		Endpoint: p.cfg.Endpoint,
		HTTPClient: &http.Client{
			Transport: &authTransport{base: baseTransport(httpClient), token: p.cfg.Token},
			Timeout:   httpClient.Timeout,
		},
	}

	// Connect shares the breaker with tool calls so a dead endpoint stops
	// costing the connect timeout on every turn.
	var (
		session *mcp.ClientSession
		result  *mcp.ListToolsResult
	)
	err := p.cfg.Breaker.Call(func() error {
		s, err := p.client.Connect(ctx, transport, nil)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", p.cfg.Endpoint, err)
		}
		r, err := s.ListTools(ctx, nil)
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("list tools: %w", err)
		}
		session, result = s, r
		return nil
	})
	if err != nil {
		return err
	}

	tools := make([]Descriptor, 0, len(result.Tools))
	schemas := make(map[string]map[string]any, len(result.Tools))
	for _, t := range result.Tools {
		schema := convertInputSchema(t.InputSchema)
		tools = append(tools, Descriptor{Name: t.Name, Description: t.Description, InputSchema: schema})
		schemas[t.Name] = schema
	}

	p.session = session
	p.tools = tools
	p.schemas = schemas
	p.available = true

	p.cfg.Logger.WithFields(logging.Fields{
		"provider": p.cfg.Name,
		"count":    len(tools),
	}).Info("Discovered remote MCP tools")
	return nil
}

func (p *RemoteProvider) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

func (p *RemoteProvider) Tools() []Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.available {
		return nil
	}
	return append([]Descriptor(nil), p.tools...)
}

// Validate accepts a JSON object carrying every property the tool's schema
// marks as required.
func (p *RemoteProvider) Validate(name string, input json.RawMessage) bool {
	p.mu.RLock()
	schema, ok := p.schemas[name]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	args, ok := decodeArguments(input)
	if !ok {
		return false
	}
	for _, field := range requiredFields(schema) {
		if _, present := args[field]; !present {
			return false
		}
	}
	return true
}

// Execute calls the tool under the call timeout and joins its text parts.
func (p *RemoteProvider) Execute(ctx context.Context, name string, input json.RawMessage) string {
	p.mu.RLock()
	session, available := p.session, p.available
	_, known := p.schemas[name]
	p.mu.RUnlock()

	if !available || session == nil {
		return ErrorResult("Remote tools unavailable")
	}
	if !known {
		return ErrorResult("Unknown tool: " + name)
	}
	args, ok := decodeArguments(input)
	if !ok {
		return ErrorResult("Invalid tool input")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	var result *mcp.CallToolResult
	err := p.cfg.Breaker.Call(func() error {
		var callErr error
		result, callErr = session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
		return callErr
	})
	switch {
	case errors.Is(err, clients.ErrBreakerOpen):
		return ErrorResult("Remote tools temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		p.cfg.Logger.WithField("tool", name).Warn("Remote tool call timed out")
		return ErrorResult(fmt.Sprintf("Tool %s timed out", name))
	case err != nil:
		p.cfg.Logger.WithError(err).WithField("tool", name).Warn("Remote tool call failed")
		return ErrorResult(fmt.Sprintf("Tool %s failed", name))
	}

	text := extractTextContent(result)
	if result.IsError {
		switch {
		case text == "":
			return ErrorResult(fmt.Sprintf("Tool %s returned an error", name))
		case outcomeOf(text) == "error":
			return text
		}
		return ErrorResult(text)
	}
	return text
}

// Dispose closes the session. The provider reports unavailable afterwards.
func (p *RemoteProvider) Dispose(context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.available = false
	p.tools = nil
	p.schemas = nil
	p.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

func decodeArguments(input json.RawMessage) (map[string]any, bool) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil || args == nil {
		return nil, false
	}
	return args, true
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// convertInputSchema normalizes the SDK's InputSchema (any) into a map.
func convertInputSchema(schema any) map[string]any {
	empty := map[string]any{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return empty
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return empty
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return empty
	}
	return m
}

// extractTextContent joins all TextContent entries with newlines.
func extractTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// authTransport adds the configured bearer token to each request.
type authTransport struct {
	base  http.RoundTripper
	token string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

func baseTransport(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
