package ai

import (
	"context"
	"slices"
	"time"
)

// FilterOptions returns the entries of opts whose key is in allowed.
// Unknown keys are dropped without error.
func FilterOptions(opts map[string]any, allowed ...string) map[string]any {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		if slices.Contains(allowed, k) {
			out[k] = v
		}
	}
	return out
}

// HealthCheck reports availability and turns a panicking probe into false.
func HealthCheck(ctx context.Context, p Provider) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.Available(ctx)
}

// ValidateModel reports whether model is among the provider's models.
func ValidateModel(ctx context.Context, p Provider, model string) bool {
	return slices.Contains(p.ListModels(ctx), model)
}

// ConnectionReport is the result of TestConnection.
type ConnectionReport struct {
	Provider       string   `json:"provider"`
	Available      bool     `json:"available"`
	ModelsCount    int      `json:"models_count"`
	TestMessage    *string  `json:"test_message"`
	Error          *string  `json:"error"`
	ResponseTimeMS *float64 `json:"response_time"`
}

// TestConnection probes p, counts its models and sends a tiny chat to the
// first one.
func TestConnection(ctx context.Context, p Provider) ConnectionReport {
	rep := ConnectionReport{Provider: p.Name()}
	start := time.Now()

	rep.Available = HealthCheck(ctx, p)
	if rep.Available {
		models := p.ListModels(ctx)
		rep.ModelsCount = len(models)
		if len(models) > 0 {
			resp, err := p.Chat(ctx, ChatRequest{
				Message:     "Hello",
				Model:       models[0],
				Temperature: DefaultTemperature,
				MaxTokens:   10,
			})
			if err != nil {
				msg := err.Error()
				rep.Error = &msg
				return rep
			}
			resp = truncate(resp, 50)
			rep.TestMessage = &resp
		}
	}

	ms := float64(time.Since(start).Microseconds()) / 1000
	rep.ResponseTimeMS = &ms
	return rep
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
