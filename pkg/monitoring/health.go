package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult represents the result of an individual health check
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck is a function that performs a health check
type HealthCheck func() CheckResult

// HealthChecker manages and executes health checks
type HealthChecker struct {
	service string
	version string

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthChecker creates a new health checker instance
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

// AddCheck adds a health check to the checker
func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// CheckHealth runs all health checks and returns the overall status
func (hc *HealthChecker) CheckHealth() HealthStatus {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(names)),
	}

	anyUnhealthy := false
	anyDegraded := false
	for _, name := range names {
		result := checks[name]()
		status.Checks[name] = result
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			anyDegraded = true
		default:
			anyUnhealthy = true
		}
	}

	switch {
	case anyUnhealthy:
		status.Status = StatusUnhealthy
	case anyDegraded:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}

	return status
}

// Handler returns a middleware handler for the health check endpoint
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		statusCode := http.StatusOK
		if health.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

// Pinger is satisfied by store clients that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingHealthCheck reports unhealthy when the dependency cannot be pinged within 3s.
func PingHealthCheck(name string, p Pinger) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		if p == nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("%s client is nil", name),
				Latency: time.Since(start).String(),
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("%s ping failed: %v", name, err),
				Latency: time.Since(start).String(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%s reachable", name),
			Latency: time.Since(start).String(),
		}
	}
}

// OptionalCheck downgrades an unhealthy result to degraded, for dependencies
// the service can run without.
func OptionalCheck(check HealthCheck) HealthCheck {
	return func() CheckResult {
		result := check()
		if result.Status == StatusUnhealthy {
			result.Status = StatusDegraded
		}
		return result
	}
}

// ConfigurationHealthCheck creates a health check for required configuration
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		missing := []string{}

		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		sort.Strings(missing)

		if len(missing) > 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("Missing required configuration: %v", missing),
				Latency: time.Since(start).String(),
			}
		}

		return CheckResult{
			Status:  StatusHealthy,
			Message: "All required configuration present",
			Latency: time.Since(start).String(),
		}
	}
}
