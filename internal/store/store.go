// Package store abstracts persistence for the trial directory.
//
// Two implementations exist behind one interface: Postgres, backed by a
// live database, and Static, backed by a JSON document loaded once at
// startup. The rest of the application never branches on which one it
// is talking to.
package store

import (
	"context"
	"errors"
	"fmt"

	"trialdex/internal/audit"
	"trialdex/internal/trial"
)

// Store is the persistence seam for trial records and the audit trail.
// List returns trials ordered by ID ascending. Insert assigns the ID.
// InsertBatch writes one importer chunk; a failed chunk leaves earlier
// chunks committed.
type Store interface {
	List(ctx context.Context) ([]trial.Trial, error)
	Insert(ctx context.Context, t trial.Trial) (trial.Trial, error)
	InsertBatch(ctx context.Context, batch []trial.Trial) error
	Update(ctx context.Context, id int64, t trial.Trial) error

	RecordAudit(ctx context.Context, e audit.Entry) error
	ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error)

	Close()
}

// ErrNotFound is returned by Update when no trial has the given ID.
var ErrNotFound = errors.New("trial not found")

// Error wraps a failed store operation with the operation name, so the
// web layer can surface which call against the backend failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FetchError reports that the static data source could not be loaded:
// the file or URL was unreachable, returned a non-OK response, or did
// not contain valid JSON. It is surfaced to the user with a manual
// reload action and never retried automatically.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
