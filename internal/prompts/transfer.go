package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const exportSource = "ai-forge"

// Export is the document written by Export and read by Import.
type Export struct {
	ExportedAt     time.Time         `json:"exported_at"`
	Source         string            `json:"source"`
	Version        string            `json:"version"`
	CategoryFilter *string           `json:"category_filter"`
	Prompts        map[string]Prompt `json:"prompts"`
}

// Snapshot builds an export document, limited to category when it is set.
func (l *Library) Snapshot(category string) Export {
	doc := Export{
		ExportedAt: l.stamp(),
		Source:     exportSource,
		Version:    Version,
		Prompts:    map[string]Prompt{},
	}
	if category != "" {
		doc.CategoryFilter = &category
	}
	for id, p := range l.GetAll() {
		if category == "" || p.Category == category {
			doc.Prompts[id] = p
		}
	}
	return doc
}

func (l *Library) Export(w io.Writer, category string) error {
	raw, err := encode(l.Snapshot(category))
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	_, err = w.Write(raw)
	return err
}

func (l *Library) ExportFile(path, category string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := l.Export(f, category); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type ImportStats struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type importRecord struct {
	Name        *string  `json:"name"`
	Prompt      *string  `json:"prompt"`
	Description *string  `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Version     *string  `json:"version"`
}

// Import reads an export document. Records are matched to existing ones by
// name; matches are skipped unless overwrite is set, in which case they are
// updated in place. Failures are collected per record.
func (l *Library) Import(r io.Reader, overwrite bool) (ImportStats, error) {
	var doc struct {
		Prompts map[string]json.RawMessage `json:"prompts"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportStats{}, fmt.Errorf("failed to decode import: %w", err)
	}

	st := ImportStats{Total: len(doc.Prompts), Errors: []string{}}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range slices.Sorted(maps.Keys(doc.Prompts)) {
		name, err := l.importOne(doc.Prompts[key], overwrite)
		switch {
		case errors.Is(err, errSkipped):
			st.Skipped++
		case err != nil:
			if name == "" {
				name = "unknown"
			}
			st.Errors = append(st.Errors, fmt.Sprintf("Error importing '%s': %v", name, err))
		default:
			st.Imported++
		}
	}
	return st, nil
}

var errSkipped = errors.New("skipped")

// importOne must be called with mu held.
func (l *Library) importOne(raw json.RawMessage, overwrite bool) (string, error) {
	var rec importRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	if rec.Name == nil {
		return "", errors.New("missing name")
	}
	name := *rec.Name
	if rec.Prompt == nil {
		return name, errors.New("missing prompt")
	}

	existing := l.findByName(name)
	if existing != nil && !overwrite {
		return name, errSkipped
	}
	if existing != nil {
		patch := Patch{Name: rec.Name, Prompt: rec.Prompt, Description: rec.Description, Version: rec.Version}
		if rec.Category != "" {
			patch.Category = &rec.Category
		}
		if rec.Tags != nil {
			patch.Tags = &rec.Tags
		}
		_, err := l.update(existing.ID, patch)
		return name, err
	}
	in := NewPrompt{Name: name, Prompt: *rec.Prompt, Category: rec.Category, Tags: rec.Tags}
	if rec.Description != nil {
		in.Description = *rec.Description
	}
	_, err := l.create(in)
	return name, err
}

// findByName returns the oldest record named name.
func (l *Library) findByName(name string) *Prompt {
	var found *Prompt
	for _, p := range l.prompts {
		if p.Name != name {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) || (p.CreatedAt.Equal(found.CreatedAt) && p.ID < found.ID) {
			found = p
		}
	}
	return found
}

func (l *Library) ImportFile(path string, overwrite bool) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()
	return l.Import(f, overwrite)
}
