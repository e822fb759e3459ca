// Package prompts stores reusable system prompt templates with usage counters.
package prompts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("prompt not found")

const (
	DefaultCategory = "general"
	Version         = "1.0"
)

type Prompt struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Prompt      string     `json:"prompt"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	LastUsed    *time.Time `json:"last_used"`
	UseCount    int        `json:"use_count"`
	Version     string     `json:"version"`
}

func (p Prompt) clone() Prompt {
	p.Tags = slices.Clone(p.Tags)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.ModifiedAt != nil {
		t := *p.ModifiedAt
		p.ModifiedAt = &t
	}
	if p.LastUsed != nil {
		t := *p.LastUsed
		p.LastUsed = &t
	}
	return p
}

// NewPrompt carries the caller supplied fields of a new record.
type NewPrompt struct {
	Name        string   `json:"name"`
	Prompt      string   `json:"prompt"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// Patch lists the fields Update may change. Nil fields are left alone; the
// id, creation time and use counter have no field here.
type Patch struct {
	Name        *string   `json:"name"`
	Prompt      *string   `json:"prompt"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	Version     *string   `json:"version"`
}

// Library owns one prompts file, stored as an object keyed by id.
type Library struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	prompts map[string]*Prompt
}

// Open loads path, starting with an empty library when it is missing or
// unreadable.
func Open(path string) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	l := &Library{path: path, now: time.Now, prompts: make(map[string]*Prompt)}

	raw, err := os.ReadFile(path)
	if err == nil {
		err = json.Unmarshal(raw, &l.prompts)
	}
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("file", path).Err(err).Msg("could not load prompts, starting fresh")
		}
		l.prompts = make(map[string]*Prompt)
		if err := l.save(); err != nil {
			log.Error().Str("file", path).Err(err).Msg("failed to save prompts")
		}
	}
	for id, p := range l.prompts {
		if p == nil {
			delete(l.prompts, id)
		}
	}
	return l, nil
}

func (l *Library) Path() string { return l.path }

// save must be called with mu held.
func (l *Library) save() error {
	raw, err := encode(l.prompts)
	if err != nil {
		return fmt.Errorf("failed to encode prompts: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write prompts: %w", err)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (l *Library) stamp() time.Time { return l.now().UTC() }

// Save stores a new record under a freshly minted id.
func (l *Library) Save(in NewPrompt) (Prompt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.create(in)
}

func (l *Library) create(in NewPrompt) (Prompt, error) {
	p := &Prompt{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Prompt:      in.Prompt,
		Description: in.Description,
		Category:    in.Category,
		Tags:        slices.Clone(in.Tags),
		CreatedAt:   l.stamp(),
		Version:     Version,
	}
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	l.prompts[p.ID] = p
	if err := l.save(); err != nil {
		delete(l.prompts, p.ID)
		return Prompt{}, err
	}
	return p.clone(), nil
}

func (l *Library) Get(id string) (Prompt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	return p.clone(), nil
}

// GetAll returns every record keyed by id.
func (l *Library) GetAll() map[string]Prompt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Prompt, len(l.prompts))
	for id, p := range l.prompts {
		out[id] = p.clone()
	}
	return out
}

// Update applies the non-nil fields of patch and stamps modified_at.
func (l *Library) Update(id string, patch Patch) (Prompt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.update(id, patch)
}

func (l *Library) update(id string, patch Patch) (Prompt, error) {
	p, ok := l.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	prev := p.clone()
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Prompt != nil {
		p.Prompt = *patch.Prompt
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Tags != nil {
		p.Tags = slices.Clone(*patch.Tags)
	}
	if patch.Version != nil {
		p.Version = *patch.Version
	}
	now := l.stamp()
	p.ModifiedAt = &now
	if err := l.save(); err != nil {
		*p = prev
		return Prompt{}, err
	}
	return p.clone(), nil
}

func (l *Library) Delete(id string) (Prompt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	delete(l.prompts, id)
	if err := l.save(); err != nil {
		l.prompts[id] = p
		return Prompt{}, err
	}
	return p.clone(), nil
}

// MarkUsed increments the use counter and stamps last_used.
func (l *Library) MarkUsed(id string) (Prompt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.prompts[id]
	if !ok {
		return Prompt{}, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	prev := p.clone()
	now := l.stamp()
	p.LastUsed = &now
	p.UseCount++
	if err := l.save(); err != nil {
		*p = prev
		return Prompt{}, err
	}
	return p.clone(), nil
}

func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, p := range l.prompts {
		c := p.Category
		if c == "" {
			c = DefaultCategory
		}
		seen[c] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

func (l *Library) Tags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, p := range l.prompts {
		for _, t := range p.Tags {
			seen[t] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
