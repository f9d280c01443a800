package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"

	"github.com/loganventer/loganventerprofile-sub000/internal/tools"
)

const adminBearerTTL = time.Hour

// VerifyBearer checks an MCP bearer token. The admin key yields an
// admin-scoped identity; a chat token yields its jti as the user id so tool
// calls can be charged to that session. The admin key is honoured without a
// session store.
func (s *Service) VerifyBearer(ctx context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
	if s.isAdmin(token) {
		return &auth.TokenInfo{
			UserID:     "admin",
			Scopes:     []string{tools.ScopeAdmin},
			Expiration: time.Now().Add(adminBearerTTL),
		}, nil
	}
	payload, err := s.Authorize(ctx, token)
	switch {
	case errors.Is(err, ErrAccessRequired), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenRevoked):
		return nil, fmt.Errorf("%w: %s", auth.ErrInvalidToken, err.Error())
	case err != nil:
		return nil, err
	}
	return &auth.TokenInfo{
		UserID:     payload.JTI,
		Expiration: time.UnixMilli(payload.Exp),
	}, nil
}
