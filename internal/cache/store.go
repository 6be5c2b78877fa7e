// Package cache is the durable fingerprint → audio blob store. Existence of a
// non-empty file at the canonical path is the only hit signal; there is no
// separate index, so multiple processes can share one cache root.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	audioExt   = ".mp3"
	tempSuffix = ".part"
)

type Store struct {
	root string
	log  *slog.Logger
}

func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}
	return &Store{root: root, log: logger.With("component", "cache")}, nil
}

func (s *Store) Root() string { return s.root }

// EntryName returns the file name an entry is published under.
func (s *Store) EntryName(fp string) string { return fp + audioExt }

// LocationFor returns the canonical path for a fingerprint.
func (s *Store) LocationFor(fp string) string {
	return filepath.Join(s.root, s.EntryName(fp))
}

// Has reports whether a finalized, non-empty entry exists.
func (s *Store) Has(fp string) bool {
	st, err := os.Stat(s.LocationFor(fp))
	return err == nil && st.Size() > 0
}

// Lookup returns the cached audio, or ok=false when the entry is absent,
// empty, or unreadable. Empty files count as a miss so a crashed writer never
// poisons the cache.
func (s *Store) Lookup(fp string) ([]byte, bool) {
	data, err := os.ReadFile(s.LocationFor(fp))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Put writes audio to a temp path and renames it into place, so readers only
// ever observe complete entries. Returns the canonical path. On failure the
// temp file is removed and no canonical entry is left behind.
func (s *Store) Put(fp string, data []byte) (string, error) {
	path := s.LocationFor(fp)
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("cache: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("cache: finalize: %w", err)
	}
	s.log.Debug("cache write complete", "fingerprint", fp, "bytes", len(data))
	return path, nil
}
