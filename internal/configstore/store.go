// Package configstore persists an app's flat configuration document as JSON,
// merged with a set of defaults.
package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MetadataKey holds the save timestamp and schema version on disk.
	MetadataKey = "_metadata"
	Version     = "1.0"

	reservedPrefix = "_"
)

type Metadata struct {
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version"`
}

// Store owns one configuration file. It is safe for concurrent use within a
// process; nothing coordinates multiple processes sharing the same file.
type Store struct {
	path     string
	defaults map[string]any

	// now is swapped in tests.
	now func() time.Time

	mu   sync.RWMutex
	doc  map[string]any
	meta *Metadata
}

// Open loads path, seeding it from defaults when it is missing or unreadable.
func Open(path string, defaults map[string]any) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	s := &Store{
		path:     path,
		defaults: withoutReserved(cloneMap(defaults)),
		now:      time.Now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s, nil
}

// load must be called with mu held.
func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.seed()
		return
	}
	var doc map[string]any
	if err == nil {
		err = json.Unmarshal(raw, &doc)
	}
	if err != nil || doc == nil {
		log.Warn().Str("file", s.path).Err(err).Msg("could not load config, using defaults")
		s.seed()
		return
	}

	s.meta = nil
	if m, ok := doc[MetadataKey].(map[string]any); ok {
		s.meta = &Metadata{}
		s.meta.LastUpdated, _ = m["last_updated"].(string)
		s.meta.Version, _ = m["version"].(string)
	}
	s.doc = withoutReserved(doc)
	for k, v := range s.defaults {
		if _, ok := s.doc[k]; !ok {
			s.doc[k] = cloneValue(v)
		}
	}
}

func (s *Store) seed() {
	s.doc = cloneMap(s.defaults)
	s.meta = nil
	if err := s.save(); err != nil {
		log.Error().Str("file", s.path).Err(err).Msg("failed to save config")
	}
}

// save rewrites the whole file. Must be called with mu held.
func (s *Store) save() error {
	meta := &Metadata{LastUpdated: s.now().Format(time.RFC3339), Version: Version}
	out := make(map[string]any, len(s.doc)+1)
	maps.Copy(out, s.doc)
	out[MetadataKey] = meta

	raw, err := encode(out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	s.meta = meta
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

func (s *Store) Path() string { return s.path }

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.doc[key]
	return cloneValue(v), ok
}

// Snapshot returns a copy of the document without metadata.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMap(s.doc)
}

// Defaults returns a copy of the default mapping.
func (s *Store) Defaults() map[string]any {
	return cloneMap(s.defaults)
}

// Update merges updates into the document and saves it. Reserved keys are
// dropped. The merged snapshot is returned.
func (s *Store) Update(updates map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneMap(s.doc)
	for k, v := range updates {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		next[k] = cloneValue(v)
	}
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return cloneMap(s.doc), nil
}

// Set stores a single value. Reserved keys are ignored.
func (s *Store) Set(key string, value any) error {
	if strings.HasPrefix(key, reservedPrefix) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneMap(s.doc)
	next[key] = cloneValue(value)
	return s.commit(next)
}

// Reset restores the given keys to their defaults, or the whole document when
// no keys are given. Keys without a default are left alone.
func (s *Store) Reset(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneMap(s.doc)
	if len(keys) == 0 {
		next = cloneMap(s.defaults)
	}
	for _, k := range keys {
		if v, ok := s.defaults[k]; ok {
			next[k] = cloneValue(v)
		}
	}
	return s.commit(next)
}

// commit saves next as the document, keeping the previous one if the write
// fails. Must be called with mu held.
func (s *Store) commit(next map[string]any) error {
	prev := s.doc
	s.doc = next
	if err := s.save(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// Backup copies the config file to path, or to a timestamped sibling when
// path is empty, and returns the path written.
func (s *Store) Backup(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if path == "" {
		path = fmt.Sprintf("%s.backup_%s", s.path, s.now().Format("20060102_150405"))
	}
	if err := copyFile(s.path, path); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return path, nil
}

// Restore replaces the config file with the backup at path and reloads it.
func (s *Store) Restore(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := copyFile(path, s.path); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}
	s.load()
	return nil
}

func copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(dst, raw, 0644)
}

type Info struct {
	ConfigFile  string  `json:"config_file"`
	Exists      bool    `json:"exists"`
	Size        int64   `json:"size"`
	LastUpdated *string `json:"last_updated"`
	Version     *string `json:"version"`
	KeysCount   int     `json:"keys_count"`
	HasDefaults bool    `json:"has_defaults"`
}

func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ConfigFile:  s.path,
		KeysCount:   len(s.doc),
		HasDefaults: len(s.defaults) > 0,
	}
	if fi, err := os.Stat(s.path); err == nil {
		info.Exists = true
		info.Size = fi.Size()
	}
	if s.meta != nil {
		info.LastUpdated = &s.meta.LastUpdated
		info.Version = &s.meta.Version
	}
	return info
}

func withoutReserved(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	for k := range m {
		if strings.HasPrefix(k, reservedPrefix) {
			delete(m, k)
		}
	}
	return m
}
