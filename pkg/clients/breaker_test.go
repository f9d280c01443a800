package clients

import (
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig("mcp"))
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
	if b.Name() != "mcp" {
		t.Fatalf("unexpected name %q", b.Name())
	}
}

func TestBreaker_TripsAndRejects(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		Name:     "test-trip",
		Failures: 3,
		Window:   3,
		Delay:    time.Second,
		OnStateChange: func(_ string, _, to BreakerState) {
			transitions = append(transitions, to.String())
		},
	})

	for i := 0; i < 3; i++ {
		_ = b.Call(func() error { return errors.New("boom") })
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if len(transitions) == 0 || transitions[0] != "open" {
		t.Fatalf("expected open transition, got %v", transitions)
	}

	var invoked bool
	err := b.Call(func() error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if invoked {
		t.Fatal("expected fn to be skipped while open")
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "probe", Failures: 2, Window: 2, Delay: 40 * time.Millisecond})
	for i := 0; i < 2; i++ {
		_ = b.Call(func() error { return errors.New("boom") })
	}
	time.Sleep(60 * time.Millisecond)
	if err := b.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe, got %s", b.State())
	}
}

//nolint:bodyclose // synthetic responses carry no body
func TestNewHTTPExecutor_RetriesUntilSuccess(t *testing.T) {
	executor := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	var attempts int32
	resp, err := executor.Get(func() (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.StatusCode != http.StatusOK || atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("unexpected result status=%d attempts=%d", resp.StatusCode, attempts)
	}
}

//nolint:bodyclose // synthetic responses carry no body
func TestNewHTTPExecutor_NegativeRetriesMeansSingleAttempt(t *testing.T) {
	executor := NewHTTPExecutor(HTTPExecutorConfig{MaxRetries: -1})
	var attempts int32
	_, err := executor.Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(&http.Response{StatusCode: tc.status}, nil); got != tc.want {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, got)
		}
	}
	if !DefaultShouldRetry(nil, errors.New("dial")) {
		t.Fatal("expected transport errors to retry")
	}
}
