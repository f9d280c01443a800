// Package admission decides who may chat: it issues, validates and revokes
// demo tokens and runs the pending-request workflow.
package admission

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/loganventer/loganventerprofile-sub000/internal/session"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

// Actions accepted by Handle.
const (
	ActionRequest     = "request"
	ActionSubmitEmail = "submit_email"
	ActionPoll        = "poll"
	ActionValidate    = "validate"
	ActionApprove     = "approve"
	ActionDeny        = "deny"
	ActionRevoke      = "revoke"
	ActionTokens      = "tokens"
	ActionPending     = "pending"
	ActionResetLimit  = "reset_limit"
	ActionClear       = "clear"
)

const (
	autoApproveLimit   = 3
	autoApproveTTL     = 5 * time.Minute
	defaultTimeoutMins = 60
	maxTimeoutMins     = 7 * 24 * 60
	maxUserAgentLen    = 200
	maxIDLen           = 128
	maxEmailLen        = 254
	notifyTimeout      = 15 * time.Second
)

var adminActions = map[string]bool{
	ActionApprove:    true,
	ActionDeny:       true,
	ActionRevoke:     true,
	ActionTokens:     true,
	ActionPending:    true,
	ActionResetLimit: true,
	ActionClear:      true,
}

var limitedActions = map[string]bool{
	ActionRequest:     true,
	ActionSubmitEmail: true,
}

// Request is the /token body.
type Request struct {
	Action         string `json:"action"`
	AdminKey       string `json:"admin_key,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	Email          string `json:"email,omitempty"`
	Token          string `json:"token,omitempty"`
	JTI            string `json:"jti,omitempty"`
	TimeoutMinutes int    `json:"timeout_minutes,omitempty"`
}

// Caller identifies who sent a Request.
type Caller struct {
	IP        string
	UserAgent string
}

type issuedResponse struct {
	RequestID string `json:"request_id"`
	Token     string `json:"token,omitempty"`
	JTI       string `json:"jti,omitempty"`
	Expires   int64  `json:"expires,omitempty"`
}

type pollResponse struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Expires int64  `json:"expires,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type tokenView struct {
	session.Token
	Count   int  `json:"count"`
	Expired bool `json:"expired"`
}

type tokensResponse struct {
	Tokens []tokenView `json:"tokens"`
}

type pendingResponse struct {
	Pending []session.PendingRequest `json:"pending"`
}

type clearResponse struct {
	Cleared int `json:"cleared"`
}

// Config wires a Service.
type Config struct {
	Store         *session.Store
	SigningSecret string
	AdminKey      string
	Limiter       *RateLimiter
	Notifier      Notifier
	Logger        logging.Logger
	Now           func() time.Time
}

// Service implements the admission actions.
type Service struct {
	store    *session.Store
	secret   string
	adminKey string
	limiter  *RateLimiter
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewService(cfg Config) *Service {
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		secret:   cfg.SigningSecret,
		adminKey: cfg.AdminKey,
		limiter:  cfg.Limiter,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Configured reports whether tokens can be signed.
func (s *Service) Configured() bool {
	return s.secret != "" && s.store != nil
}

// Wait blocks until detached notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Handle dispatches req.Action. The returned value is JSON-encodable.
func (s *Service) Handle(ctx context.Context, caller Caller, req Request) (any, error) {
	action := strings.TrimSpace(req.Action)
	resp, err := s.dispatch(ctx, caller, action, req)
	outcome := "ok"
	if err != nil {
		_, outcome = StatusOf(err)
	}
	if action == "" || (!adminActions[action] && !isVisitorAction(action)) {
		action = "unknown"
	}
	actionsTotal.WithLabelValues(action, outcome).Inc()
	return resp, err
}

func isVisitorAction(action string) bool {
	switch action {
	case ActionRequest, ActionSubmitEmail, ActionPoll, ActionValidate:
		return true
	}
	return false
}

func (s *Service) dispatch(ctx context.Context, caller Caller, action string, req Request) (any, error) {
	if !s.Configured() {
		return nil, ErrMisconfigured
	}
	if adminActions[action] && !s.isAdmin(req.AdminKey) {
		return nil, ErrUnauthorized
	}
	if limitedActions[action] {
		if allowed, _, reset := s.limiter.Allow(caller.IP); !allowed {
			return nil, &RateLimitError{RetryAfter: reset}
		}
	}

	switch action {
	case ActionRequest:
		return s.request(ctx, caller, req.DeviceID)
	case ActionSubmitEmail:
		return s.submitEmail(ctx, req.RequestID, req.Email)
	case ActionPoll:
		return s.poll(ctx, req.RequestID)
	case ActionValidate:
		return s.validate(ctx, req.Token)
	case ActionApprove:
		return s.approve(ctx, req.RequestID, req.TimeoutMinutes)
	case ActionDeny:
		return s.deny(ctx, req.RequestID)
	case ActionRevoke:
		return s.revoke(ctx, req.JTI)
	case ActionTokens:
		return s.tokens(ctx)
	case ActionPending:
		return s.pending(ctx)
	case ActionResetLimit:
		return s.resetLimit(ctx, req.JTI)
	case ActionClear:
		return s.clear(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (s *Service) isAdmin(key string) bool {
	if s.adminKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) == 1
}

// Authorize verifies a bearer token for chat: the signature must hold, the
// expiry must be in the future and the jti must still be stored.
func (s *Service) Authorize(ctx context.Context, token string) (*session.Payload, error) {
	if !s.Configured() {
		return nil, ErrMisconfigured
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrAccessRequired
	}
	payload := session.Verify(token, s.secret)
	if payload == nil {
		return nil, ErrAccessRequired
	}
	if payload.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	if _, err := s.store.GetToken(ctx, payload.JTI); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return payload, nil
}

func (s *Service) request(ctx context.Context, caller Caller, deviceID string) (any, error) {
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) > maxIDLen {
		return nil, fmt.Errorf("%w: device_id too long", ErrInvalidInput)
	}
	requestID := uuid.NewString()
	now := s.now()

	auto, err := s.canAutoApprove(ctx, caller.IP, deviceID)
	if err != nil {
		return nil, err
	}
	if auto {
		tok, err := s.issue(ctx, requestID, caller.IP, autoApproveTTL, now)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.IncrementAutoApprovals(ctx, "ip:"+caller.IP); err != nil {
			s.logger.WithError(err).Warn("Failed to bump ip auto-approval counter")
		}
		if deviceID != "" {
			if _, err := s.store.IncrementAutoApprovals(ctx, "dev:"+deviceID); err != nil {
				s.logger.WithError(err).Warn("Failed to bump device auto-approval counter")
			}
		}
		tokensIssued.WithLabelValues("auto").Inc()
		s.logger.WithFields(logging.Fields{
			"request_id": requestID,
			"jti":        tok.JTI,
		}).Info("Auto-approved access request")
		return issuedResponse{RequestID: requestID, Token: tok.SignedToken, JTI: tok.JTI, Expires: tok.Expires}, nil
	}

	pending := session.PendingRequest{
		ID:       requestID,
		IP:       caller.IP,
		UA:       truncate(caller.UserAgent, maxUserAgentLen),
		TS:       now.UnixMilli(),
		Status:   session.StatusPending,
		DeviceID: deviceID,
	}
	if err := s.store.PutPending(ctx, pending); err != nil {
		return nil, fmt.Errorf("store pending request: %w", err)
	}
	s.detach("access requested", func(ctx context.Context) error {
		return s.notifier.AccessRequested(ctx, pending)
	})
	s.logger.WithField("request_id", requestID).Info("Access request pending approval")
	return issuedResponse{RequestID: requestID}, nil
}

func (s *Service) canAutoApprove(ctx context.Context, ip, deviceID string) (bool, error) {
	byIP, err := s.store.GetAutoApprovals(ctx, "ip:"+ip)
	if err != nil {
		return false, fmt.Errorf("read auto approvals: %w", err)
	}
	if byIP.Count >= autoApproveLimit {
		return false, nil
	}
	if deviceID == "" {
		return true, nil
	}
	byDevice, err := s.store.GetAutoApprovals(ctx, "dev:"+deviceID)
	if err != nil {
		return false, fmt.Errorf("read auto approvals: %w", err)
	}
	return byDevice.Count < autoApproveLimit, nil
}

func (s *Service) issue(ctx context.Context, requestID, ip string, ttl time.Duration, now time.Time) (session.Token, error) {
	payload, signed, err := session.Issue(requestID, ttl, now, s.secret)
	if err != nil {
		return session.Token{}, fmt.Errorf("sign token: %w", err)
	}
	tok := session.Token{
		JTI:            payload.JTI,
		RequestID:      requestID,
		IP:             ip,
		Created:        payload.IAT,
		Expires:        payload.Exp,
		TimeoutMinutes: int(ttl / time.Minute),
		SignedToken:    signed,
	}
	if err := s.store.PutToken(ctx, tok); err != nil {
		return session.Token{}, fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

func (s *Service) submitEmail(ctx context.Context, requestID, address string) (any, error) {
	if err := checkID(requestID); err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	if address == "" || len(address) > maxEmailLen {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return nil, fmt.Errorf("%w: email", ErrInvalidInput)
	}

	pending, err := s.livePending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	pending.Email = address
	if err := s.store.PutPending(ctx, pending); err != nil {
		return nil, fmt.Errorf("store pending request: %w", err)
	}
	return okResponse{OK: true}, nil
}

func (s *Service) poll(ctx context.Context, requestID string) (any, error) {
	if err := checkID(requestID); err != nil {
		return nil, err
	}
	pending, err := s.store.GetPending(ctx, requestID)
	switch {
	case err == nil:
		if s.expired(pending) {
			s.evict(ctx, pending.ID)
			return pollResponse{Status: session.StatusExpired}, nil
		}
		return pollResponse{Status: session.StatusPending}, nil
	case !errors.Is(err, session.ErrNotFound):
		return nil, fmt.Errorf("read pending request: %w", err)
	}

	tok, err := s.store.TokenForRequest(ctx, requestID)
	switch {
	case err == nil:
		return pollResponse{Status: session.StatusApproved, Token: tok.SignedToken, Expires: tok.Expires}, nil
	case errors.Is(err, session.ErrNotFound):
		return pollResponse{Status: session.StatusDenied}, nil
	default:
		return nil, fmt.Errorf("read tokens: %w", err)
	}
}

func (s *Service) validate(ctx context.Context, token string) (any, error) {
	payload, err := s.Authorize(ctx, token)
	switch {
	case err == nil:
		return validateResponse{Valid: true, Expires: payload.Exp}, nil
	case errors.Is(err, ErrAccessRequired):
		return validateResponse{Reason: "invalid"}, nil
	case errors.Is(err, ErrTokenExpired):
		return validateResponse{Reason: "expired"}, nil
	case errors.Is(err, ErrTokenRevoked):
		return validateResponse{Reason: "revoked"}, nil
	default:
		return nil, err
	}
}

func (s *Service) approve(ctx context.Context, requestID string, minutes int) (any, error) {
	if err := checkID(requestID); err != nil {
		return nil, err
	}
	if minutes <= 0 {
		minutes = defaultTimeoutMins
	}
	if minutes > maxTimeoutMins {
		minutes = maxTimeoutMins
	}

	pending, err := s.livePending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	tok, err := s.issue(ctx, pending.ID, pending.IP, time.Duration(minutes)*time.Minute, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.DeletePending(ctx, pending.ID); err != nil {
		return nil, fmt.Errorf("delete pending request: %w", err)
	}
	tokensIssued.WithLabelValues("approved").Inc()
	s.logger.WithFields(logging.Fields{
		"request_id": pending.ID,
		"jti":        tok.JTI,
		"minutes":    minutes,
	}).Info("Approved access request")

	if pending.Email != "" {
		s.detach("access approved", func(ctx context.Context) error {
			return s.notifier.AccessApproved(ctx, pending.Email, tok)
		})
	}
	return issuedResponse{RequestID: pending.ID, Token: tok.SignedToken, JTI: tok.JTI, Expires: tok.Expires}, nil
}

func (s *Service) deny(ctx context.Context, requestID string) (any, error) {
	if err := checkID(requestID); err != nil {
		return nil, err
	}
	if _, err := s.livePending(ctx, requestID); err != nil {
		return nil, err
	}
	if err := s.store.DeletePending(ctx, requestID); err != nil {
		return nil, fmt.Errorf("delete pending request: %w", err)
	}
	s.logger.WithField("request_id", requestID).Info("Denied access request")
	return okResponse{OK: true}, nil
}

func (s *Service) revoke(ctx context.Context, jti string) (any, error) {
	if err := checkID(jti); err != nil {
		return nil, err
	}
	if _, err := s.store.GetToken(ctx, jti); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	if err := s.store.DeleteToken(ctx, jti); err != nil {
		return nil, fmt.Errorf("delete token: %w", err)
	}
	s.logger.WithField("jti", jti).Info("Revoked token")
	return okResponse{OK: true}, nil
}

func (s *Service) tokens(ctx context.Context) (any, error) {
	list, err := s.store.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	now := s.now().UnixMilli()
	views := make([]tokenView, 0, len(list))
	for _, tok := range list {
		count, err := s.store.GetCount(ctx, tok.JTI)
		if err != nil {
			s.logger.WithError(err).WithField("jti", tok.JTI).Warn("Failed to read message count")
		}
		views = append(views, tokenView{Token: tok, Count: count.Count, Expired: now > tok.Expires})
	}
	return tokensResponse{Tokens: views}, nil
}

func (s *Service) pending(ctx context.Context) (any, error) {
	list, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	live := make([]session.PendingRequest, 0, len(list))
	for _, req := range list {
		if s.expired(req) {
			s.evict(ctx, req.ID)
			continue
		}
		live = append(live, req)
	}
	return pendingResponse{Pending: live}, nil
}

func (s *Service) resetLimit(ctx context.Context, jti string) (any, error) {
	if err := checkID(jti); err != nil {
		return nil, err
	}
	if err := s.store.PutCount(ctx, jti, session.Counter{}); err != nil {
		return nil, fmt.Errorf("reset count: %w", err)
	}
	return okResponse{OK: true}, nil
}

func (s *Service) clear(ctx context.Context) (any, error) {
	n, err := s.store.ClearPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear pending requests: %w", err)
	}
	s.logger.WithField("cleared", n).Info("Cleared pending requests")
	return clearResponse{Cleared: n}, nil
}

// livePending loads a request, evicting and hiding it when past its TTL.
func (s *Service) livePending(ctx context.Context, id string) (session.PendingRequest, error) {
	pending, err := s.store.GetPending(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return session.PendingRequest{}, ErrNotFound
	}
	if err != nil {
		return session.PendingRequest{}, fmt.Errorf("read pending request: %w", err)
	}
	if s.expired(pending) {
		s.evict(ctx, pending.ID)
		return session.PendingRequest{}, ErrNotFound
	}
	return pending, nil
}

func (s *Service) expired(req session.PendingRequest) bool {
	return s.now().Sub(time.UnixMilli(req.TS)) > session.PendingTTL
}

func (s *Service) evict(ctx context.Context, id string) {
	if err := s.store.DeletePending(ctx, id); err != nil {
		s.logger.WithError(err).WithField("request_id", id).Warn("Failed to evict expired request")
	}
}

// detach runs fn on its own goroutine with a bounded context that outlives
// the request. Errors are logged.
func (s *Service) detach(what string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.WithError(err).WithField("notice", what).Warn("Notification failed")
		}
	}()
}

func checkID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLen {
		return fmt.Errorf("%w: id", ErrInvalidInput)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
