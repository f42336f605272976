// Package store implements the filesystem store (spec.md §4.1): it owns
// the phase/state directory layout under the workflow root and the
// move-on-success entity transition. It is grounded on the teacher's
// afero-backed atomic-write idiom (internal/infra/persistence/file) and the
// original dirorch/entities.py EntityStore.
package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/kobuchi/dirorch/internal/domain/workflow"
)

// Store owns entity movement under root. All paths are resolved through
// an injected afero.Fs so tests can run against afero.NewMemMapFs()
// without touching a real disk.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root, using fs for all directory and file
// operations.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Dir returns the absolute path of a phase/state directory without
// touching the filesystem.
func (s *Store) Dir(phase, state string) string {
	return filepath.Join(s.root, phase, state)
}

// EnsureDirs creates every declared (phase, state) directory plus each
// phase's reserved _failed directory, idempotently (spec.md invariant 1).
func (s *Store) EnsureDirs(phases []workflow.Phase) error {
	for _, p := range phases {
		for _, st := range p.States {
			if err := s.fs.MkdirAll(s.Dir(p.Name, st), 0o755); err != nil {
				return fmt.Errorf("store: create %s/%s: %w", p.Name, st, err)
			}
		}
		if err := s.fs.MkdirAll(s.Dir(p.Name, workflow.FailedState), 0o755); err != nil {
			return fmt.Errorf("store: create %s/%s: %w", p.Name, workflow.FailedState, err)
		}
	}
	return nil
}

// ListEntities returns the filenames of regular, non-hidden files in
// phase/state, sorted byte-ascending (spec.md invariant 5).
func (s *Store) ListEntities(phase, state string) ([]string, error) {
	dir := s.Dir(phase, state)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("store: list %s/%s: %w", phase, state, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// EntityPath returns the absolute path of an entity currently sitting in
// phase/state.
func (s *Store) EntityPath(phase, state, name string) string {
	return filepath.Join(s.Dir(phase, state), name)
}

// Exists reports whether an entity is currently sitting in phase/state.
func (s *Store) Exists(phase, state, name string) (bool, error) {
	exists, err := afero.Exists(s.fs, s.EntityPath(phase, state, name))
	if err != nil {
		return false, fmt.Errorf("store: stat %s/%s/%s: %w", phase, state, name, err)
	}
	return exists, nil
}

// Move renames an entity from fromState to toState within phase. It is a
// fatal invariant violation (spec.md §4.1) if an entity with the same name
// already exists at the destination — the caller aborts rather than
// silently overwriting or merging identities.
func (s *Store) Move(phase, fromState, toState, name string) error {
	src := s.EntityPath(phase, fromState, name)
	dst := s.EntityPath(phase, toState, name)

	if exists, err := afero.Exists(s.fs, dst); err != nil {
		return fmt.Errorf("store: move %s: stat destination: %w", name, err)
	} else if exists {
		return fmt.Errorf("store: move %s: destination %s already exists (invariant violation)", name, dst)
	}

	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("store: move %s: create destination dir: %w", name, err)
	}
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("store: move %s from %s to %s: %w", name, fromState, toState, err)
	}
	return nil
}
