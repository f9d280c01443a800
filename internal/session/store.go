package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key namespaces under the store prefix.
const (
	NamespacePending       = "pending"
	NamespaceTokens        = "tokens"
	NamespaceCounts        = "counts"
	NamespaceAutoApprovals = "auto_approvals"
)

// PendingTTL bounds how long an access request survives in Redis.
const PendingTTL = 7 * 24 * time.Hour

// counterTTL keeps per-token and per-subject counters from outliving any
// token they could apply to.
const counterTTL = 30 * 24 * time.Hour

const maxTxRetries = 5

// Pending request states.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("session: record not found")
	// ErrLimitReached is returned by IncrementCount when the counter is at its limit.
	ErrLimitReached = errors.New("session: limit reached")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("session: concurrent update conflict")
)

// PendingRequest is an access request awaiting a decision.
type PendingRequest struct {
	ID       string `json:"id"`
	IP       string `json:"ip"`
	UA       string `json:"ua"`
	TS       int64  `json:"ts"`
	Status   string `json:"status"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Token is an issued access token. Created and Expires are Unix milliseconds.
type Token struct {
	JTI            string `json:"jti"`
	RequestID      string `json:"request_id"`
	IP             string `json:"ip"`
	Created        int64  `json:"created"`
	Expires        int64  `json:"expires"`
	TimeoutMinutes int    `json:"timeout_minutes"`
	SignedToken    string `json:"signed_token"`
}

// Counter is the stored shape of message counts and auto-approval counts.
type Counter struct {
	Count int `json:"count"`
}

// Store persists admission state as JSON strings under
// "<prefix>:<namespace>:<id>".
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// NewStore returns a store over client. An empty prefix defaults to "concierge".
func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "concierge"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(namespace, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, namespace, id)
}

func (s *Store) pattern(namespace string) string {
	return fmt.Sprintf("%s:%s:*", s.prefix, namespace)
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, bytes, ttl).Err()
}

func getJSON[T any](ctx context.Context, s *Store, key string) (T, error) {
	var out T
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// PutPending stores a request with the pending TTL.
func (s *Store) PutPending(ctx context.Context, req PendingRequest) error {
	return s.setJSON(ctx, s.key(NamespacePending, req.ID), req, PendingTTL)
}

// GetPending returns ErrNotFound for unknown or evicted requests.
func (s *Store) GetPending(ctx context.Context, id string) (PendingRequest, error) {
	return getJSON[PendingRequest](ctx, s, s.key(NamespacePending, id))
}

func (s *Store) DeletePending(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(NamespacePending, id)).Err()
}

// ListPending returns every stored request, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]PendingRequest, error) {
	items, err := scanJSON[PendingRequest](ctx, s, s.pattern(NamespacePending))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].TS < items[j].TS })
	return items, nil
}

// ClearPending removes every pending request and returns how many were removed.
func (s *Store) ClearPending(ctx context.Context) (int, error) {
	return s.deleteMatching(ctx, s.pattern(NamespacePending))
}

// PutToken stores a token until a week past its expiry so a late poll can
// still report it.
func (s *Store) PutToken(ctx context.Context, tok Token) error {
	ttl := time.Until(time.UnixMilli(tok.Expires)) + PendingTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.setJSON(ctx, s.key(NamespaceTokens, tok.JTI), tok, ttl)
}

// GetToken returns ErrNotFound for unknown or revoked tokens.
func (s *Store) GetToken(ctx context.Context, jti string) (Token, error) {
	return getJSON[Token](ctx, s, s.key(NamespaceTokens, jti))
}

func (s *Store) DeleteToken(ctx context.Context, jti string) error {
	return s.client.Del(ctx, s.key(NamespaceTokens, jti)).Err()
}

// ListTokens returns every stored token, newest first.
func (s *Store) ListTokens(ctx context.Context) ([]Token, error) {
	items, err := scanJSON[Token](ctx, s, s.pattern(NamespaceTokens))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Created > items[j].Created })
	return items, nil
}

// TokenForRequest finds the token issued for a request id.
func (s *Store) TokenForRequest(ctx context.Context, requestID string) (Token, error) {
	tokens, err := s.ListTokens(ctx)
	if err != nil {
		return Token{}, err
	}
	for _, tok := range tokens {
		if tok.RequestID == requestID {
			return tok, nil
		}
	}
	return Token{}, ErrNotFound
}

// GetCount returns the message count for jti; missing counts are zero.
func (s *Store) GetCount(ctx context.Context, jti string) (Counter, error) {
	c, err := getJSON[Counter](ctx, s, s.key(NamespaceCounts, jti))
	if errors.Is(err, ErrNotFound) {
		return Counter{}, nil
	}
	return c, err
}

func (s *Store) PutCount(ctx context.Context, jti string, c Counter) error {
	return s.setJSON(ctx, s.key(NamespaceCounts, jti), c, counterTTL)
}

// IncrementCount atomically raises the count for jti by one unless it has
// already reached limit, in which case it returns the current count and
// ErrLimitReached. A limit of zero or less means unlimited.
func (s *Store) IncrementCount(ctx context.Context, jti string, limit int) (int, error) {
	return s.increment(ctx, s.key(NamespaceCounts, jti), limit)
}

// GetAutoApprovals returns the auto-approval counter for key; missing counters are zero.
func (s *Store) GetAutoApprovals(ctx context.Context, key string) (Counter, error) {
	c, err := getJSON[Counter](ctx, s, s.key(NamespaceAutoApprovals, key))
	if errors.Is(err, ErrNotFound) {
		return Counter{}, nil
	}
	return c, err
}

func (s *Store) PutAutoApprovals(ctx context.Context, key string, c Counter) error {
	return s.setJSON(ctx, s.key(NamespaceAutoApprovals, key), c, counterTTL)
}

// IncrementAutoApprovals raises the auto-approval counter for key by one.
func (s *Store) IncrementAutoApprovals(ctx context.Context, key string) (int, error) {
	return s.increment(ctx, s.key(NamespaceAutoApprovals, key), 0)
}

func (s *Store) increment(ctx context.Context, key string, limit int) (int, error) {
	var result int
	txf := func(tx *goredis.Tx) error {
		var current Counter
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}
		if limit > 0 && current.Count >= limit {
			result = current.Count
			return ErrLimitReached
		}
		next, err := json.Marshal(Counter{Count: current.Count + 1})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, counterTTL)
			return nil
		})
		if err == nil {
			result = current.Count + 1
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return 0, ErrConflict
}

const scanBatch = 100

func scanJSON[T any](ctx context.Context, s *Store, pattern string) ([]T, error) {
	var (
		mu  sync.Mutex
		out []T
	)
	err := s.scanKeys(ctx, pattern, func(ctx context.Context, keys []string) error {
		for _, key := range keys {
			item, err := getJSON[T](ctx, s, key)
			if err != nil {
				// Expired between SCAN and GET, or unreadable.
				continue
			}
			mu.Lock()
			out = append(out, item)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deleteMatching removes keys one DEL each so a batch never spans cluster
// slots.
func (s *Store) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var removed atomic.Int64
	err := s.scanKeys(ctx, pattern, func(ctx context.Context, keys []string) error {
		cmds, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, key := range keys {
				pipe.Del(ctx, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			if del, ok := cmd.(*goredis.IntCmd); ok {
				removed.Add(del.Val())
			}
		}
		return nil
	})
	return int(removed.Load()), err
}

type keyScanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

// scanKeys feeds fn every key matching pattern. A cluster client is scanned
// master by master, concurrently, since SCAN only walks the node it reaches.
func (s *Store) scanKeys(ctx context.Context, pattern string, fn func(ctx context.Context, keys []string) error) error {
	if cluster, ok := s.client.(*goredis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scanNode(ctx, node, pattern, fn)
		})
	}
	return scanNode(ctx, s.client, pattern, fn)
}

func scanNode(ctx context.Context, c keyScanner, pattern string, fn func(ctx context.Context, keys []string) error) error {
	cursor := uint64(0)
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(ctx, keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
