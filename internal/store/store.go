// Package store persists the set of product fingerprints that have already
// been notified. State is read once and written once per check cycle by a
// single owner.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Store loads and overwrites the seen-set wholesale. Load on a never-written
// backend returns an empty set; Load on corrupted state must fail loudly
// (a silently empty set would re-notify every historical product).
type Store interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Save(ctx context.Context, fingerprints map[string]struct{}) error
}

// PersistenceError marks corrupted or unreachable state. It is fatal to the
// cycle that hits it and requires operator intervention.
type PersistenceError struct {
	Op  string // load, save
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("seen-set %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
