package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("provider not available")

// NotFoundError reports an unregistered provider together with the names that
// are registered.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Provider '%s' not available. Available providers: [%s]", e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Factory builds a provider instance. An error excludes the provider.
type Factory func() (ai.Provider, error)

// Known is a statically known provider type.
type Known struct {
	Name string
	New  Factory
}

// Ordered provider preferences per task type.
var taskPreferences = map[string][]string{
	"math":        {"ollama", "openai", "google"},
	"coding":      {"anthropic", "ollama", "openai"},
	"creative":    {"anthropic", "openai", "ollama"},
	"translation": {"google", "openai", "ollama"},
	"analysis":    {"anthropic", "openai", "ollama"},
	"general":     {"ollama", "openai", "anthropic"},
}

// TaskTypes lists the task categories with a preference table, general excluded.
var TaskTypes = []string{"math", "coding", "creative", "translation", "analysis"}

// Registry holds the providers that were available when last probed.
// Reload is not atomic: readers may observe an empty registry while it runs.
type Registry struct {
	known []Known

	mu        sync.RWMutex
	order     []string
	providers map[string]ai.Provider
}

// New probes every known provider and keeps those that report available.
func New(ctx context.Context, known ...Known) *Registry {
	r := &Registry{known: known, providers: make(map[string]ai.Provider)}
	r.probeAll(ctx)
	return r
}

func (r *Registry) probeAll(ctx context.Context) {
	for _, k := range r.known {
		p, err := build(k.New)
		if err != nil {
			log.Warn().Str("provider", k.Name).Err(err).Msg("provider init failed")
			continue
		}
		r.add(ctx, k.Name, p)
	}
}

func build(f Factory) (p ai.Provider, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return f()
}

func (r *Registry) add(ctx context.Context, name string, p ai.Provider) bool {
	if p == nil || !ai.HealthCheck(ctx, p) {
		log.Warn().Str("provider", name).Msg("provider not available (check configuration)")
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
	log.Info().Str("provider", name).Msg("provider initialized")
	return true
}

// Add registers a custom provider if it is available.
func (r *Registry) Add(ctx context.Context, name string, p ai.Provider) bool {
	return r.add(ctx, name, p)
}

// Reload drops every registration and probes the known providers again.
func (r *Registry) Reload(ctx context.Context) {
	r.mu.Lock()
	r.order = nil
	r.providers = make(map[string]ai.Provider)
	r.mu.Unlock()
	r.probeAll(ctx)
}

func (r *Registry) Get(name string) (ai.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Available: slices.Clone(r.order)}
	}
	return p, nil
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Clone(r.order)
	if out == nil {
		out = []string{}
	}
	return out
}

// BestForTask returns the first registered provider in the task's preference
// order, falling back to the general table's order for unknown tasks and then
// to the first registered provider. ok is false when nothing is registered.
func (r *Registry) BestForTask(task string) (ai.Provider, bool) {
	prefs, ok := taskPreferences[task]
	if !ok {
		prefs = taskPreferences["general"]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range prefs {
		if p, ok := r.providers[name]; ok {
			return p, true
		}
	}
	if len(r.order) > 0 {
		return r.providers[r.order[0]], true
	}
	return nil, false
}

func (r *Registry) snapshot() ([]string, map[string]ai.Provider) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[string]ai.Provider, len(r.providers))
	for k, v := range r.providers {
		m[k] = v
	}
	return slices.Clone(r.order), m
}

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Available   bool           `json:"available"`
	Models      []string       `json:"models,omitempty"`
	ModelsCount int            `json:"models_count"`
	Config      map[string]any `json:"config"`
}

func describe(ctx context.Context, name string, p ai.Provider) ProviderInfo {
	info := ProviderInfo{Name: name, Type: p.Kind(), Available: ai.HealthCheck(ctx, p)}
	info.Models = p.ListModels(ctx)
	info.ModelsCount = len(info.Models)
	if d, ok := p.(ai.Describer); ok {
		info.Config = d.ConfigInfo()
	} else {
		info.Config = map[string]any{"name": name, "type": p.Kind()}
	}
	return info
}

// Describe returns details for a single provider.
func (r *Registry) Describe(ctx context.Context, name string) (ProviderInfo, error) {
	p, err := r.Get(name)
	if err != nil {
		return ProviderInfo{}, err
	}
	return describe(ctx, name, p), nil
}

// Info returns details for every registered provider, keyed by name.
func (r *Registry) Info(ctx context.Context) map[string]ProviderInfo {
	order, providers := r.snapshot()
	out := make(map[string]ProviderInfo, len(order))
	for _, name := range order {
		info := describe(ctx, name, providers[name])
		info.Models = nil
		out[name] = info
	}
	return out
}

// CheckResult is the outcome of probing one provider.
type CheckResult struct {
	Status          string   `json:"status"`
	ResponseTimeMS  *float64 `json:"response_time"`
	ModelsAvailable int      `json:"models_available"`
	Error           *string  `json:"error"`
}

// Check probes every registered provider.
func (r *Registry) Check(ctx context.Context) map[string]CheckResult {
	order, providers := r.snapshot()
	out := make(map[string]CheckResult, len(order))
	for _, name := range order {
		p := providers[name]
		start := time.Now()
		healthy := ai.HealthCheck(ctx, p)
		ms := float64(time.Since(start).Microseconds()) / 1000
		res := CheckResult{Status: "unhealthy", ResponseTimeMS: &ms}
		if healthy {
			res.Status = "healthy"
			res.ModelsAvailable = len(p.ListModels(ctx))
		} else {
			msg := "provider not responding"
			res.Error = &msg
		}
		out[name] = res
	}
	return out
}

// AutoConfigure recommends configuration keys based on what is registered.
func (r *Registry) AutoConfigure() map[string]any {
	names := r.Names()
	cfg := map[string]any{}
	switch {
	case slices.Contains(names, "ollama"):
		cfg["default_provider"] = "ollama"
	case len(names) > 0:
		cfg["default_provider"] = names[0]
	default:
		cfg["default_provider"] = nil
	}
	for _, task := range TaskTypes {
		if p, ok := r.BestForTask(task); ok {
			cfg["provider_for_"+task] = p.Name()
		}
	}
	if len(names) > 1 {
		cfg["enable_fallback"] = true
		cfg["fallback_order"] = names
	} else {
		cfg["enable_fallback"] = false
	}
	return cfg
}
