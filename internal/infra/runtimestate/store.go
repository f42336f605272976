// Package runtimestate persists the current-phase cursor (spec.md §4.4)
// through an atomic temp-file-then-rename write, mirroring the teacher's
// internal/infra/persistence/file.WriteFileAtomic and
// internal/app/state.SaveStateAtomic.
package runtimestate

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/kobuchi/dirorch/internal/infra/log"
)

// Store loads and saves the {"current_phase": "..."} runtime state file.
type Store struct {
	fs     afero.Fs
	path   string
	logger log.Logger
}

// New returns a Store persisting to path (typically <root>/<state-file>).
func New(fs afero.Fs, path string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Store{fs: fs, path: path, logger: logger}
}

type document struct {
	CurrentPhase string `json:"current_phase"`
}

// Load returns the persisted phase name, or "" if the file is absent.
// A parse failure is logged at WARN and treated as absent (spec.md §7,
// §9 — "Corrupt runtime state").
func (s *Store) Load() (string, error) {
	exists, err := afero.Exists(s.fs, s.path)
	if err != nil {
		return "", fmt.Errorf("runtimestate: stat %s: %w", s.path, err)
	}
	if !exists {
		return "", nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return "", fmt.Errorf("runtimestate: read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("runtimestate: %s is corrupt (%v); treating as fresh start", s.path, err)
		return "", nil
	}
	return doc.CurrentPhase, nil
}

// Save persists phase as the current-phase cursor, atomically.
func (s *Store) Save(phase string) error {
	data, err := json.MarshalIndent(document{CurrentPhase: phase}, "", "  ")
	if err != nil {
		return fmt.Errorf("runtimestate: marshal: %w", err)
	}
	return writeFileAtomic(s.fs, s.path, data)
}

// writeFileAtomic mirrors internal/infra/persistence/file.WriteFileAtomic:
// write to a sibling temp file, sync, then rename over the destination.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runtimestate: create dir %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, ".dirorch-state-*.tmp")
	if err != nil {
		return fmt.Errorf("runtimestate: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer fs.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("runtimestate: write temp file: %w", err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("runtimestate: sync temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("runtimestate: close temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("runtimestate: rename temp file to %s: %w", path, err)
	}
	return nil
}
