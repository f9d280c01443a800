package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
	"github.com/loganventer/loganventerprofile-sub000/pkg/version"
)

// ScopeAdmin marks a bearer token that is not charged against a session quota.
const ScopeAdmin = "admin"

// CallGate admits one tool call for the caller described by info. A non-nil
// error is returned to the caller as the tool result.
type CallGate func(ctx context.Context, info *auth.TokenInfo) error

// CallCounter charges one message against a session's quota.
type CallCounter interface {
	IncrementCount(ctx context.Context, jti string, limit int) (int, error)
}

var (
	ErrAccessRequired = errors.New("access required")
	ErrMessageLimit   = errors.New("message limit reached")
	errQuotaCheck     = errors.New("quota check failed")
)

// QuotaGate charges every call to the session named by info.UserID, sharing
// the chat message quota. Admin-scoped callers are not charged. Callers
// without token info are refused, as is everyone else when counter is nil.
func QuotaGate(counter CallCounter, limit int) CallGate {
	return func(ctx context.Context, info *auth.TokenInfo) error {
		if info == nil || info.UserID == "" {
			return ErrAccessRequired
		}
		for _, s := range info.Scopes {
			if s == ScopeAdmin {
				return nil
			}
		}
		if counter == nil {
			return errQuotaCheck
		}
		if _, err := counter.IncrementCount(ctx, info.UserID, limit); err != nil {
			if errors.Is(err, session.ErrLimitReached) {
				return ErrMessageLimit
			}
			return errQuotaCheck
		}
		return nil
	}
}

// NewMCPServer publishes the tools of p over MCP so other agents can use the
// same knowledge base. Every call passes gate first when it is set.
func NewMCPServer(p Provider, gate CallGate, logger logging.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "concierge-tools",
		Version: version.Version,
	}, nil)

	for _, d := range p.Tools() {
		schema, err := json.Marshal(d.InputSchema)
		if err != nil {
			logger.WithError(err).WithField("tool", d.Name).Warn("Skipping tool with unencodable schema")
			continue
		}
		name := d.Name
		srv.AddTool(&mcp.Tool{
			Name:        name,
			Description: d.Description,
			InputSchema: json.RawMessage(schema),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.Params.Arguments
			if !p.Validate(name, args) {
				return textResult(ErrorResult("Invalid tool input"), true), nil
			}
			if gate != nil {
				var info *auth.TokenInfo
				if req.Extra != nil {
					info = req.Extra.TokenInfo
				}
				if err := gate(ctx, info); err != nil {
					mcpCallsRejected.Inc()
					return textResult(ErrorResult(err.Error()), true), nil
				}
			}
			out := p.Execute(ctx, name, args)
			return textResult(out, outcomeOf(out) == "error"), nil
		})
	}
	return srv
}

// NewMCPHandler serves srv over stateless streamable HTTP behind a bearer
// token check. A nil verifier rejects every request.
func NewMCPHandler(srv *mcp.Server, verifier auth.TokenVerifier) http.Handler {
	if verifier == nil {
		verifier = func(context.Context, string, *http.Request) (*auth.TokenInfo, error) {
			return nil, auth.ErrInvalidToken
		}
	}
	h := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	return auth.RequireBearerToken(verifier, nil)(h)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}
