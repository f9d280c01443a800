package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loganventer/loganventerprofile-sub000/pkg/llm"
	"github.com/loganventer/loganventerprofile-sub000/pkg/logging"
)

var (
	ErrNilProvider       = errors.New("tools: provider is nil")
	ErrUnnamedProvider   = errors.New("tools: provider has no name")
	ErrDuplicateProvider = errors.New("tools: provider already registered")
)

// Registry routes tool calls to the provider that first claimed each name.
type Registry struct {
	logger logging.Logger

	mu        sync.RWMutex
	providers []Provider
	owners    map[string]Provider
}

func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Registry{logger: logger, owners: make(map[string]Provider)}
}

// Register appends p. Registration order decides tool-name ties.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return ErrNilProvider
	}
	if strings.TrimSpace(p.Name()) == "" {
		return ErrUnnamedProvider
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.providers {
		if existing.Name() == p.Name() {
			return ErrDuplicateProvider
		}
	}
	r.providers = append(r.providers, p)
	return nil
}

// Initialize runs every provider's Initialize in parallel, then maps tool
// names to available providers. Provider failures are logged, never returned.
func (r *Registry) Initialize(ctx context.Context) {
	r.mu.RLock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.RUnlock()

	var g errgroup.Group
	for _, p := range providers {
		g.Go(func() error {
			if err := p.Initialize(ctx); err != nil {
				r.logger.WithError(err).WithField("provider", p.Name()).Warn("Tool provider unavailable")
			}
			return nil
		})
	}
	_ = g.Wait()

	owners := make(map[string]Provider)
	for _, p := range providers {
		available := p.Available()
		providersAvailable.WithLabelValues(p.Name()).Set(boolGauge(available))
		if !available {
			continue
		}
		for _, d := range p.Tools() {
			if prev, taken := owners[d.Name]; taken {
				r.logger.WithFields(logging.Fields{
					"tool":     d.Name,
					"provider": p.Name(),
					"owner":    prev.Name(),
				}).Debug("Tool name already claimed")
				continue
			}
			owners[d.Name] = p
		}
	}

	r.mu.Lock()
	r.owners = owners
	r.mu.Unlock()
}

// AllTools lists the tools of available providers in registration order,
// one entry per claimed name.
func (r *Registry) AllTools() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, p := range r.providers {
		if !p.Available() {
			continue
		}
		for _, d := range p.Tools() {
			if r.owners[d.Name] == p {
				out = append(out, d)
			}
		}
	}
	return out
}

// LLMTools is AllTools in the LLM provider's shape.
func (r *Registry) LLMTools() []llm.Tool {
	descs := r.AllTools()
	out := make([]llm.Tool, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.LLMTool())
	}
	return out
}

func (r *Registry) owner(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.owners[name]
	return p, ok
}

// Validate delegates to the owning provider; unknown tools are invalid.
func (r *Registry) Validate(name string, input json.RawMessage) bool {
	p, ok := r.owner(name)
	if !ok {
		return false
	}
	return p.Validate(name, input)
}

// Execute dispatches to the owning provider.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) string {
	p, ok := r.owner(name)
	if !ok {
		return ErrorResult("No provider for tool: " + name)
	}

	start := time.Now()
	out := p.Execute(ctx, name, input)
	toolDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	toolCallsTotal.WithLabelValues(p.Name(), name, outcomeOf(out)).Inc()
	return out
}

// Dispose disposes every provider concurrently and waits for them. Errors are
// logged and dropped.
func (r *Registry) Dispose(ctx context.Context) {
	r.mu.RLock()
	providers := append([]Provider(nil), r.providers...)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Dispose(ctx); err != nil {
				r.logger.WithError(err).WithField("provider", p.Name()).Debug("Tool provider dispose failed")
			}
		}()
	}
	wg.Wait()
}

// outcomeOf classifies a tool result by its top-level "error" field.
func outcomeOf(result string) string {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(result), &probe); err == nil && probe.Error != nil {
		return "error"
	}
	return "ok"
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
