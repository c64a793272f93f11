// Package cache implements the content-addressed audio store behind the
// speech pipeline. Each entry is one WAV file named by its synthesis key; a
// JSON manifest in the same directory carries the index across restarts and
// is rewritten in full after every mutation. The store enforces a total-size
// budget with least-recently-used eviction.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultMaxBytes is the on-disk budget used when none is configured.
	DefaultMaxBytes = 500 * 1024 * 1024

	manifestName = "manifest.json"
	entrySuffix  = ".wav"
)

// Entry records one cached audio file.
type Entry struct {
	Key        string    `json:"key"`
	File       string    `json:"file"`
	SizeBytes  int64     `json:"size_bytes"`
	AccessedAt time.Time `json:"accessed_at"`
}

type manifest struct {
	Entries    []Entry `json:"entries"`
	TotalBytes int64   `json:"total_bytes"`
}

// Stats describes the store's current footprint.
type Stats struct {
	TotalBytes int64
	FileCount  int
	MaxBytes   int64
}

// Store is a size-bounded audio store. It owns every file in its directory:
// callers only ever receive paths to read, never permission to delete.
type Store struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	entries  map[string]*Entry
	total    int64
	logger   *log.Logger
}

// New opens the store at dir, creating the directory if needed. A manifest
// that cannot be read or parsed degrades to an empty store rather than
// failing.
func New(dir string, maxBytes int64, logger *log.Logger) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		maxBytes: maxBytes,
		entries:  make(map[string]*Entry),
		logger:   logger,
	}
	s.loadManifest()
	return s, nil
}

// Get returns the path of the cached audio for key. A hit refreshes the
// entry's recency and persists the manifest. An entry whose backing file has
// vanished is dropped silently and reported as a miss.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	path := filepath.Join(s.dir, e.File)
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("cache entry lost its backing file, dropping", "key", key, "err", err)
		s.total -= e.SizeBytes
		delete(s.entries, key)
		s.saveManifest()
		return "", false
	}
	e.AccessedAt = time.Now()
	s.saveManifest()
	return path, true
}

// Put writes data to a file named after key, replacing any prior entry under
// the same key, then enforces the size budget and persists the manifest. It
// returns the path to the written file.
func (s *Store) Put(key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := key + entrySuffix
	path := filepath.Join(s.dir, file)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write cache entry: %w", err)
	}

	// Same key means same file name, so replacing an entry never leaks a
	// file or double-counts its size.
	if old, ok := s.entries[key]; ok {
		s.total -= old.SizeBytes
	}
	s.entries[key] = &Entry{Key: key, File: file, SizeBytes: int64(len(data)), AccessedAt: time.Now()}
	s.total += int64(len(data))

	s.evict()
	s.saveManifest()
	return path, nil
}

// Clear deletes every backing file best-effort and resets the manifest to
// empty. It returns the number of bytes freed from the index.
func (s *Store) Clear() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	freed := s.total
	for _, e := range s.entries {
		if err := os.Remove(filepath.Join(s.dir, e.File)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to delete cache file", "file", e.File, "err", err)
		}
	}
	s.entries = make(map[string]*Entry)
	s.total = 0
	s.saveManifest()
	return freed
}

// Stats reports the store's current totals.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{TotalBytes: s.total, FileCount: len(s.entries), MaxBytes: s.maxBytes}
}

// evict removes the oldest-accessed entries until the store fits its budget.
// A single entry larger than the whole budget is allowed to remain once
// everything else is gone; callers are expected not to insert such items.
func (s *Store) evict() {
	for s.total > s.maxBytes && len(s.entries) > 1 {
		victim := s.oldest()
		if err := os.Remove(filepath.Join(s.dir, victim.File)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to delete evicted file", "file", victim.File, "err", err)
		}
		s.total -= victim.SizeBytes
		delete(s.entries, victim.Key)
		s.logger.Debug("evicted cache entry", "key", victim.Key, "size", victim.SizeBytes)
	}
}

// oldest picks the least recently used entry, breaking timestamp ties by key
// so eviction order is deterministic.
func (s *Store) oldest() *Entry {
	var victim *Entry
	for _, e := range s.entries {
		switch {
		case victim == nil:
			victim = e
		case e.AccessedAt.Before(victim.AccessedAt):
			victim = e
		case e.AccessedAt.Equal(victim.AccessedAt) && e.Key < victim.Key:
			victim = e
		}
	}
	return victim
}

func (s *Store) loadManifest() {
	data, err := os.ReadFile(s.manifestPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache manifest unreadable, starting empty", "err", err)
		}
		return
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("cache manifest corrupt, starting empty", "err", err)
		return
	}
	for i := range m.Entries {
		e := m.Entries[i]
		s.entries[e.Key] = &e
		s.total += e.SizeBytes
	}
}

// saveManifest rewrites the manifest in full through a temp-file rename.
// Disk errors are logged, not propagated; the in-memory index remains the
// source of truth.
func (s *Store) saveManifest() {
	m := manifest{Entries: make([]Entry, 0, len(s.entries)), TotalBytes: s.total}
	for _, e := range s.entries {
		m.Entries = append(m.Entries, *e)
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Key < m.Entries[j].Key })

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		s.logger.Warn("failed to marshal cache manifest", "err", err)
		return
	}
	tmp := s.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Warn("failed to write cache manifest", "err", err)
		return
	}
	if err := os.Rename(tmp, s.manifestPath()); err != nil {
		_ = os.Remove(tmp)
		s.logger.Warn("failed to replace cache manifest", "err", err)
	}
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dir, manifestName)
}
