package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FileStore keeps the seen-set in a single UTF-8 JSON file: a sorted array of
// fingerprint strings, overwritten wholesale each cycle. Sorting keeps the
// file deterministic and diffable for operators inspecting it directly.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (map[string]struct{}, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// First run: nothing has been seen yet.
			return map[string]struct{}{}, nil
		}
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	var fingerprints []string
	if err := json.Unmarshal(data, &fingerprints); err != nil {
		return nil, &PersistenceError{Op: "load", Err: fmt.Errorf("corrupt state file %s: %w", s.path, err)}
	}

	seen := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		seen[fp] = struct{}{}
	}
	return seen, nil
}

func (s *FileStore) Save(_ context.Context, fingerprints map[string]struct{}) error {
	sorted := make([]string, 0, len(fingerprints))
	for fp := range fingerprints {
		sorted = append(sorted, fp)
	}
	sort.Strings(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	// Write to a temp file first so a crash mid-write never corrupts the
	// previous state.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	return nil
}
