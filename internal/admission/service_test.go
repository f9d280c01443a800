package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/loganventer/loganventerprofile-sub000/internal/session"
)

const (
	testSecret   = "signing-secret"
	testAdminKey = "admin-key"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []session.PendingRequest
	approved  []string
}

func (n *recordingNotifier) AccessRequested(_ context.Context, req session.PendingRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, req)
	return nil
}

func (n *recordingNotifier) AccessApproved(_ context.Context, to string, _ session.Token) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, to)
	return nil
}

type fixture struct {
	svc      *Service
	store    *session.Store
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:    session.NewStore(client, "test"),
		clock:    &testClock{now: time.Now()},
		notifier: &recordingNotifier{},
	}
	cfg := Config{
		Store:         f.store,
		SigningSecret: testSecret,
		AdminKey:      testAdminKey,
		Notifier:      f.notifier,
		Now:           f.clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.svc = NewService(cfg)
	return f
}

func (f *fixture) do(t *testing.T, ip string, req Request) (any, error) {
	t.Helper()
	return f.svc.Handle(context.Background(), Caller{IP: ip, UserAgent: "test-agent"}, req)
}

func (f *fixture) admin(t *testing.T, req Request) any {
	t.Helper()
	req.AdminKey = testAdminKey
	resp, err := f.do(t, "127.0.0.1", req)
	if err != nil {
		t.Fatalf("%s: %v", req.Action, err)
	}
	return resp
}

// exhaustIP makes the next request from ip go to the pending queue.
func (f *fixture) exhaustIP(t *testing.T, ip string) {
	t.Helper()
	if err := f.store.PutAutoApprovals(context.Background(), "ip:"+ip, session.Counter{Count: autoApproveLimit}); err != nil {
		t.Fatalf("PutAutoApprovals: %v", err)
	}
}

func (f *fixture) pendingRequest(t *testing.T, ip string) string {
	t.Helper()
	f.exhaustIP(t, ip)
	resp, err := f.do(t, ip, Request{Action: ActionRequest})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	issued := resp.(issuedResponse)
	if issued.Token != "" {
		t.Fatal("expected a pending request, got a token")
	}
	return issued.RequestID
}

func TestRequestAutoApprovesFreshCaller(t *testing.T) {
	f := newFixture(t, nil)
	now := f.clock.Now()

	resp, err := f.do(t, "10.0.0.1", Request{Action: ActionRequest, DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	issued := resp.(issuedResponse)
	if issued.RequestID == "" || issued.Token == "" {
		t.Fatalf("expected request id and token, got %+v", issued)
	}
	if issued.Expires != now.UnixMilli()+300_000 {
		t.Fatalf("expected 5 minute expiry, got %d", issued.Expires-now.UnixMilli())
	}

	payload, err := f.svc.Authorize(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if payload.Sub != issued.RequestID {
		t.Fatalf("expected sub to be the request id, got %q", payload.Sub)
	}

	ip, _ := f.store.GetAutoApprovals(context.Background(), "ip:10.0.0.1")
	dev, _ := f.store.GetAutoApprovals(context.Background(), "dev:dev-1")
	if ip.Count != 1 || dev.Count != 1 {
		t.Fatalf("expected both counters bumped, got ip=%d dev=%d", ip.Count, dev.Count)
	}
}

func TestAutoApprovalQuota(t *testing.T) {
	f := newFixture(t, nil)

	for i := range autoApproveLimit {
		resp, err := f.do(t, "10.0.0.2", Request{Action: ActionRequest, DeviceID: "dev-2"})
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if resp.(issuedResponse).Token == "" {
			t.Fatalf("request %d should be auto-approved", i)
		}
	}

	resp, err := f.do(t, "10.0.0.2", Request{Action: ActionRequest, DeviceID: "dev-2"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	issued := resp.(issuedResponse)
	if issued.Token != "" {
		t.Fatal("fourth request must not carry a token")
	}
	if _, err := f.store.GetPending(context.Background(), issued.RequestID); err != nil {
		t.Fatalf("expected pending record: %v", err)
	}
	f.svc.Wait()
	if len(f.notifier.requested) != 1 {
		t.Fatalf("expected one owner notice, got %d", len(f.notifier.requested))
	}
}

func TestDeviceQuotaSpansAddresses(t *testing.T) {
	f := newFixture(t, nil)
	ips := []string{"10.1.0.1", "10.1.0.2", "10.1.0.3"}
	for _, ip := range ips {
		resp, err := f.do(t, ip, Request{Action: ActionRequest, DeviceID: "roaming"})
		if err != nil || resp.(issuedResponse).Token == "" {
			t.Fatalf("expected auto approval from %s: %v", ip, err)
		}
	}
	resp, err := f.do(t, "10.1.0.4", Request{Action: ActionRequest, DeviceID: "roaming"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.(issuedResponse).Token != "" {
		t.Fatal("device over quota must wait for approval")
	}
}

func TestApproveAndPoll(t *testing.T) {
	f := newFixture(t, nil)
	id := f.pendingRequest(t, "10.0.0.3")

	resp, err := f.do(t, "10.0.0.3", Request{Action: ActionPoll, RequestID: id})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := resp.(pollResponse).Status; got != session.StatusPending {
		t.Fatalf("expected pending, got %q", got)
	}

	if _, err := f.do(t, "10.0.0.3", Request{Action: ActionSubmitEmail, RequestID: id, Email: "visitor@example.com"}); err != nil {
		t.Fatalf("submit_email: %v", err)
	}

	approved := f.admin(t, Request{Action: ActionApprove, RequestID: id}).(issuedResponse)
	if approved.Expires-f.clock.Now().UnixMilli() != (60 * time.Minute).Milliseconds() {
		t.Fatalf("expected default 60 minute token")
	}
	if _, err := f.store.GetPending(context.Background(), id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("approval must delete the pending record, got %v", err)
	}

	resp, err = f.do(t, "10.0.0.3", Request{Action: ActionPoll, RequestID: id})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	polled := resp.(pollResponse)
	if polled.Status != session.StatusApproved || polled.Token != approved.Token {
		t.Fatalf("expected approved token, got %+v", polled)
	}

	f.svc.Wait()
	if len(f.notifier.approved) != 1 || f.notifier.approved[0] != "visitor@example.com" {
		t.Fatalf("expected approval notice to requester, got %v", f.notifier.approved)
	}
}

func TestApproveCustomTimeout(t *testing.T) {
	f := newFixture(t, nil)
	id := f.pendingRequest(t, "10.0.0.9")
	approved := f.admin(t, Request{Action: ActionApprove, RequestID: id, TimeoutMinutes: 15}).(issuedResponse)
	tok, err := f.store.GetToken(context.Background(), approved.JTI)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.TimeoutMinutes != 15 || tok.Expires-tok.Created != (15*time.Minute).Milliseconds() {
		t.Fatalf("unexpected token lifetime %+v", tok)
	}
}

func TestDenyThenPoll(t *testing.T) {
	f := newFixture(t, nil)
	id := f.pendingRequest(t, "10.0.0.4")

	f.admin(t, Request{Action: ActionDeny, RequestID: id})
	resp, err := f.do(t, "10.0.0.4", Request{Action: ActionPoll, RequestID: id})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := resp.(pollResponse).Status; got != session.StatusDenied {
		t.Fatalf("expected denied, got %q", got)
	}

	_, err = f.do(t, "127.0.0.1", Request{Action: ActionApprove, RequestID: id, AdminKey: testAdminKey})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("approving a denied request should be not found, got %v", err)
	}
}

func TestPollEvictsStalePending(t *testing.T) {
	f := newFixture(t, nil)
	id := f.pendingRequest(t, "10.0.0.5")

	f.clock.Advance(session.PendingTTL + time.Hour)
	resp, err := f.do(t, "10.0.0.5", Request{Action: ActionPoll, RequestID: id})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := resp.(pollResponse).Status; got != session.StatusExpired {
		t.Fatalf("expected expired, got %q", got)
	}
	if _, err := f.store.GetPending(context.Background(), id); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected eviction, got %v", err)
	}
}

func TestPendingListEvictsStale(t *testing.T) {
	f := newFixture(t, nil)
	stale := f.pendingRequest(t, "10.0.0.6")
	f.clock.Advance(session.PendingTTL + time.Hour)
	fresh := f.pendingRequest(t, "10.0.0.7")

	list := f.admin(t, Request{Action: ActionPending}).(pendingResponse)
	if len(list.Pending) != 1 || list.Pending[0].ID != fresh {
		t.Fatalf("expected only the fresh request, got %+v", list.Pending)
	}
	if _, err := f.store.GetPending(context.Background(), stale); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected stale request evicted, got %v", err)
	}
}

func TestValidateReasons(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, "10.0.0.8", Request{Action: ActionRequest})
	token := resp.(issuedResponse).Token

	check := func(token, wantReason string, wantValid bool) {
		t.Helper()
		resp, err := f.do(t, "10.0.0.8", Request{Action: ActionValidate, Token: token})
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		v := resp.(validateResponse)
		if v.Valid != wantValid || v.Reason != wantReason {
			t.Fatalf("expected valid=%v reason=%q, got %+v", wantValid, wantReason, v)
		}
	}

	check(token, "", true)
	check("garbage", "invalid", false)
	check("", "invalid", false)

	f.clock.Advance(autoApproveTTL + time.Second)
	check(token, "expired", false)
}

func TestRevokeThenValidate(t *testing.T) {
	f := newFixture(t, nil)
	resp, _ := f.do(t, "10.0.1.1", Request{Action: ActionRequest})
	issued := resp.(issuedResponse)

	f.admin(t, Request{Action: ActionRevoke, JTI: issued.JTI})

	resp, err := f.do(t, "10.0.1.1", Request{Action: ActionValidate, Token: issued.Token})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v := resp.(validateResponse); v.Valid || v.Reason != "revoked" {
		t.Fatalf("expected revoked, got %+v", v)
	}
	if _, err := f.svc.Authorize(context.Background(), issued.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	_, err = f.do(t, "127.0.0.1", Request{Action: ActionRevoke, JTI: issued.JTI, AdminKey: testAdminKey})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke should be not found, got %v", err)
	}
}

func TestAdminActionsRequireKey(t *testing.T) {
	f := newFixture(t, nil)
	for action := range adminActions {
		_, err := f.do(t, "10.0.2.1", Request{Action: action, AdminKey: "wrong"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", action, err)
		}
	}

	open := newFixture(t, func(c *Config) { c.AdminKey = "" })
	if _, err := open.do(t, "10.0.2.1", Request{Action: ActionTokens}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty admin key must lock admin actions, got %v", err)
	}
}

func TestVisitorRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Limiter = NewRateLimiter(5, 10*time.Minute) })
	for i := range 5 {
		if _, err := f.do(t, "10.0.3.1", Request{Action: ActionRequest}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := f.do(t, "10.0.3.1", Request{Action: ActionRequest})
	var rl *RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if rl.RetryAfter <= 0 {
		t.Fatalf("expected positive retry after, got %d", rl.RetryAfter)
	}

	if _, err := f.do(t, "10.0.3.2", Request{Action: ActionRequest}); err != nil {
		t.Fatalf("other addresses are unaffected: %v", err)
	}
	if _, err := f.do(t, "10.0.3.1", Request{Action: ActionValidate, Token: "x"}); err != nil {
		t.Fatalf("validate is not rate limited: %v", err)
	}
}

func TestMisconfiguredService(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SigningSecret = "" })
	if _, err := f.do(t, "10.0.4.1", Request{Action: ActionRequest}); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
	if _, err := f.svc.Authorize(context.Background(), "x"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured from Authorize, got %v", err)
	}
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t, nil)
	id := f.pendingRequest(t, "10.0.5.1")

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown action", Request{Action: "launch"}, ErrUnknownAction},
		{"missing action", Request{}, ErrUnknownAction},
		{"poll without id", Request{Action: ActionPoll}, ErrInvalidInput},
		{"bad email", Request{Action: ActionSubmitEmail, RequestID: id, Email: "not-an-email"}, ErrInvalidInput},
		{"display name email", Request{Action: ActionSubmitEmail, RequestID: id, Email: "Bob <bob@example.com>"}, ErrInvalidInput},
		{"email for unknown request", Request{Action: ActionSubmitEmail, RequestID: "nope", Email: "a@example.com"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.do(t, "10.0.5.1", tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTokensResetLimitAndClear(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	resp, _ := f.do(t, "10.0.6.1", Request{Action: ActionRequest})
	jti := resp.(issuedResponse).JTI
	_ = f.store.PutCount(ctx, jti, session.Counter{Count: 25})

	list := f.admin(t, Request{Action: ActionTokens}).(tokensResponse)
	if len(list.Tokens) != 1 || list.Tokens[0].Count != 25 || list.Tokens[0].Expired {
		t.Fatalf("unexpected tokens view %+v", list.Tokens)
	}

	f.admin(t, Request{Action: ActionResetLimit, JTI: jti})
	if c, _ := f.store.GetCount(ctx, jti); c.Count != 0 {
		t.Fatalf("expected count reset, got %d", c.Count)
	}

	f.pendingRequest(t, "10.0.6.2")
	f.pendingRequest(t, "10.0.6.3")
	cleared := f.admin(t, Request{Action: ActionClear}).(clearResponse)
	if cleared.Cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", cleared.Cleared)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	if got := truncate("héllo", 2); got != "h" {
		t.Fatalf("expected cut before multibyte rune, got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
}
