package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/loganventer/loganventerprofile-sub000/internal/admission"
	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

const (
	maxChatBody = 64 << 10
	// Longer messages are truncated by Sanitize; this only rejects abuse.
	maxRawMessageChars = 4 * MaxInputChars
)

// Authorizer checks a bearer token.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*session.Payload, error)
}

// ChatRequest is the /chat body.
type ChatRequest struct {
	Message string           `json:"message"`
	History []HistoryMessage `json:"history,omitempty"`
	Token   string           `json:"token"`
}

type ChatHandler struct {
	Agent  *Agent
	Auth   Authorizer
	Logger logging.Logger
}

func NewChatHandler(agent *Agent, auth Authorizer, logger logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ChatHandler{Agent: agent, Auth: auth, Logger: logger}
}

// HandleChat admits the request, then streams the turn as SSE. Every
// rejection happens before the stream starts.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	if h == nil || !h.Agent.Configured() || h.Auth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_misconfigured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxChatBody)
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_required"})
		return
	}
	if utf8.RuneCountInString(req.Message) > maxRawMessageChars {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_too_long"})
		return
	}
	for _, m := range req.History {
		if m.Role != "user" && m.Role != "assistant" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_history"})
			return
		}
	}

	ctx := c.Request.Context()
	payload, err := h.Auth.Authorize(ctx, req.Token)
	if err != nil {
		admission.WriteError(c, err, h.Logger)
		return
	}
	if err := h.Agent.Admit(ctx, payload.JTI); err != nil {
		if errors.Is(err, ErrDemoLimit) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "demo_limit"})
			return
		}
		h.Logger.WithError(err).WithField("jti", payload.JTI).Error("Failed to count chat message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	streamer, err := newSSEStreamer(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unavailable"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	turn := Turn{Message: req.Message, History: req.History}
	if err := h.Agent.Run(ctx, turn, streamer); err != nil {
		h.Logger.WithError(err).WithField("jti", payload.JTI).Warn("Chat turn failed")
	}
	streamer.Close()
}
