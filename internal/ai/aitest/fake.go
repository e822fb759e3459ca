// Package aitest provides a scriptable ai.Provider for tests.
package aitest

import (
	"context"
	"iter"
	"sync"

	"github.com/dioniDR/ai-forge/internal/ai"
)

type Provider struct {
	ProviderName string
	ProviderKind string
	Up           bool
	// PanicOnProbe makes Available panic.
	PanicOnProbe bool
	Models       []string
	Reply        string
	Err          error
	Chunks       []ai.Chunk

	mu       sync.Mutex
	requests []ai.ChatRequest
	probes   int
}

var _ ai.Provider = (*Provider)(nil)

func New(name string) *Provider {
	return &Provider{ProviderName: name, ProviderKind: "local", Up: true}
}

func (p *Provider) Name() string { return p.ProviderName }
func (p *Provider) Kind() string { return p.ProviderKind }

func (p *Provider) Available(ctx context.Context) bool {
	p.mu.Lock()
	p.probes++
	p.mu.Unlock()
	if p.PanicOnProbe {
		panic("probe exploded")
	}
	return p.Up
}

func (p *Provider) ListModels(ctx context.Context) []string {
	return append([]string{}, p.Models...)
}

func (p *Provider) Chat(ctx context.Context, req ai.ChatRequest) (string, error) {
	p.record(req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Reply, nil
}

func (p *Provider) ChatStream(ctx context.Context, req ai.ChatRequest) iter.Seq[ai.Chunk] {
	p.record(req)
	return func(yield func(ai.Chunk) bool) {
		for _, c := range p.Chunks {
			if !yield(c) {
				return
			}
		}
	}
}

func (p *Provider) record(req ai.ChatRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

// Requests returns the chat requests received so far.
func (p *Provider) Requests() []ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.ChatRequest{}, p.requests...)
}

// LastRequest returns the most recent chat request.
func (p *Provider) LastRequest() ai.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ai.ChatRequest{}
	}
	return p.requests[len(p.requests)-1]
}

func (p *Provider) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}
