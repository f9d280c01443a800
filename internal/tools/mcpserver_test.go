package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"

	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

const (
	testAdminBearer   = "admin-bearer"
	testVisitorBearer = "visitor-bearer"
	testVisitorJTI    = "jti-visitor"
)

func testVerifier(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
	exp := time.Now().Add(time.Hour)
	switch token {
	case testAdminBearer:
		return &auth.TokenInfo{UserID: "admin", Scopes: []string{ScopeAdmin}, Expiration: exp}, nil
	case testVisitorBearer:
		return &auth.TokenInfo{UserID: testVisitorJTI, Expiration: exp}, nil
	}
	return nil, auth.ErrInvalidToken
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (c *memCounter) IncrementCount(_ context.Context, jti string, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if limit > 0 && c.counts[jti] >= limit {
		return c.counts[jti], session.ErrLimitReached
	}
	c.counts[jti]++
	return c.counts[jti], nil
}

func (c *memCounter) count(jti string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[jti]
}

func newGuardedServer(t *testing.T, counter CallCounter, limit int) *httptest.Server {
	t.Helper()
	local := newTestLocal(t, &stubSearcher{out: `[{"id":"about"}]`})
	srv := NewMCPServer(local, QuotaGate(counter, limit), logging.NewDiscardLogger())
	ts := httptest.NewServer(NewMCPHandler(srv, testVerifier))
	t.Cleanup(ts.Close)
	return ts
}

func TestMCPServerRoundTripsLocalTools(t *testing.T) {
	local := newTestLocal(t, &stubSearcher{out: `[{"id":"about"}]`})
	counter := &memCounter{}
	ts := httptest.NewServer(NewMCPHandler(NewMCPServer(local, QuotaGate(counter, 25), logging.NewDiscardLogger()), testVerifier))
	t.Cleanup(ts.Close)

	remote := NewRemoteProvider(RemoteConfig{Name: "self", Endpoint: ts.URL, Token: testAdminBearer})
	ctx := context.Background()
	if err := remote.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer func() { _ = remote.Dispose(ctx) }()

	if got, want := len(remote.Tools()), len(local.Tools()); got != want {
		t.Fatalf("expected %d tools over MCP, got %d", want, got)
	}
	if !remote.Validate(ToolSkills, json.RawMessage(`{"category":"all"}`)) {
		t.Fatal("expected schema-required field to validate")
	}

	if got := remote.Execute(ctx, ToolSearchKnowledge, json.RawMessage(`{"query":"kafka"}`)); got != `[{"id":"about"}]` {
		t.Fatalf("unexpected search result %s", got)
	}

	project := decodeObject(t, remote.Execute(ctx, ToolProjectDetails, json.RawMessage(`{"name":"Ledgerly"}`)))
	if project["name"] != "Ledgerly" {
		t.Fatalf("unexpected project %v", project)
	}

	invalid := decodeObject(t, remote.Execute(ctx, ToolSkills, json.RawMessage(`{"category":"   "}`)))
	if invalid["error"] != "Invalid tool input" {
		t.Fatalf("expected invalid input error, got %v", invalid)
	}

	if n := counter.count("admin"); n != 0 {
		t.Fatalf("admin calls must not be charged, got %d", n)
	}
}

func TestMCPHandlerRejectsAnonymousCallers(t *testing.T) {
	ts := newGuardedServer(t, &memCounter{}, 25)
	ctx := context.Background()

	for _, token := range []string{"", "forged"} {
		remote := NewRemoteProvider(RemoteConfig{Endpoint: ts.URL, Token: token})
		if err := remote.Initialize(ctx); err == nil {
			_ = remote.Dispose(ctx)
			t.Fatalf("token %q: expected connect to be refused", token)
		}
		if got := remote.Execute(ctx, ToolSearchKnowledge, json.RawMessage(`{"query":"go"}`)); got != `{"error":"Remote tools unavailable"}` {
			t.Fatalf("token %q: expected no tool access, got %s", token, got)
		}
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search_knowledge","arguments":{"query":"go"}}}`
	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a raw anonymous call, got %d", resp.StatusCode)
	}
}

func TestMCPVisitorCallsShareMessageQuota(t *testing.T) {
	counter := &memCounter{}
	ts := newGuardedServer(t, counter, 3)
	ctx := context.Background()

	remote := NewRemoteProvider(RemoteConfig{Endpoint: ts.URL, Token: testVisitorBearer})
	if err := remote.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer func() { _ = remote.Dispose(ctx) }()

	for i := 0; i < 3; i++ {
		if got := remote.Execute(ctx, ToolSearchKnowledge, json.RawMessage(`{"query":"go"}`)); got != `[{"id":"about"}]` {
			t.Fatalf("call %d: unexpected result %s", i, got)
		}
	}
	if n := counter.count(testVisitorJTI); n != 3 {
		t.Fatalf("expected 3 charged calls, got %d", n)
	}

	limited := decodeObject(t, remote.Execute(ctx, ToolSearchKnowledge, json.RawMessage(`{"query":"go"}`)))
	if limited["error"] != ErrMessageLimit.Error() {
		t.Fatalf("expected message limit error, got %v", limited)
	}
}

func TestQuotaGate(t *testing.T) {
	ctx := context.Background()
	visitor := &auth.TokenInfo{UserID: testVisitorJTI}
	admin := &auth.TokenInfo{UserID: "admin", Scopes: []string{ScopeAdmin}}

	t.Run("missing identity", func(t *testing.T) {
		gate := QuotaGate(&memCounter{}, 5)
		if err := gate(ctx, nil); !errors.Is(err, ErrAccessRequired) {
			t.Fatalf("expected ErrAccessRequired, got %v", err)
		}
		if err := gate(ctx, &auth.TokenInfo{}); !errors.Is(err, ErrAccessRequired) {
			t.Fatalf("expected ErrAccessRequired for empty user, got %v", err)
		}
	})

	t.Run("admin bypasses counter", func(t *testing.T) {
		counter := &memCounter{err: errors.New("redis down")}
		if err := QuotaGate(counter, 1)(ctx, admin); err != nil {
			t.Fatalf("expected admin to pass, got %v", err)
		}
		if err := QuotaGate(nil, 1)(ctx, admin); err != nil {
			t.Fatalf("expected admin to pass without a counter, got %v", err)
		}
	})

	t.Run("limit", func(t *testing.T) {
		gate := QuotaGate(&memCounter{}, 1)
		if err := gate(ctx, visitor); err != nil {
			t.Fatalf("first call: %v", err)
		}
		if err := gate(ctx, visitor); !errors.Is(err, ErrMessageLimit) {
			t.Fatalf("expected ErrMessageLimit, got %v", err)
		}
	})

	t.Run("counter failure", func(t *testing.T) {
		gate := QuotaGate(&memCounter{err: errors.New("redis down")}, 5)
		if err := gate(ctx, visitor); err == nil || errors.Is(err, ErrMessageLimit) {
			t.Fatalf("expected quota check failure, got %v", err)
		}
		if err := QuotaGate(nil, 5)(ctx, visitor); err == nil {
			t.Fatal("expected refusal without a counter")
		}
	})
}
