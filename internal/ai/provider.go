package ai

import (
	"context"
	"iter"
)

// DefaultTemperature is used when neither the caller nor the app config sets one.
const DefaultTemperature = 0.7

// ChatRequest carries the parameters shared by Chat and ChatStream.
// MaxTokens <= 0 means no cap. Options holds provider-specific passthrough
// keys; each backend keeps only the keys it recognises.
type ChatRequest struct {
	Message      string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Options      map[string]any
}

// Provider is a backend capable of producing chat completions.
//
// Available and ListModels never fail: transport problems degrade to false and
// an empty list. Chat returns a *ProviderError on any upstream failure.
// ChatStream yields fragments and always finishes with exactly one chunk whose
// Done flag is set; errors are reported through that terminal chunk.
type Provider interface {
	Name() string
	Kind() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) []string
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatStream(ctx context.Context, req ChatRequest) iter.Seq[Chunk]
}

// ModelManager is implemented by providers that can download and remove models.
type ModelManager interface {
	PullModel(ctx context.Context, model string) iter.Seq[Chunk]
	DeleteModel(ctx context.Context, model string) bool
	ModelInfo(ctx context.Context, model string) (map[string]any, error)
	ClearModelCache()
}

// Describer exposes provider configuration for diagnostics.
type Describer interface {
	ConfigInfo() map[string]any
}
