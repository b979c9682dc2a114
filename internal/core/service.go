// Package core holds the application services behind the HTTP layer:
// directory search, trial editing, CSV export, the audit trail, and
// bulk import sessions.
package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"trialdex/internal/audit"
	"trialdex/internal/csvio"
	"trialdex/internal/logging"
	"trialdex/internal/metrics"
	"trialdex/internal/store"
	"trialdex/internal/trial"
)

// ErrInvalidTrial is returned when a submitted trial has no title,
// disease, or principal investigator. Such rows carry nothing the
// directory can be searched by.
var ErrInvalidTrial = errors.New("trial needs a title, disease, or investigator")

// Actor identifies the signed-in admin an operation is attributed to.
type Actor struct {
	ID    string
	Email string
}

// Config carries the service's operational knobs. Zero values fall
// back to defaults in NewService.
type Config struct {
	MaxFileSize   int64
	BatchSize     int
	MaxConcurrent int
	MaxWaitTime   time.Duration
	ImportTimeout time.Duration
}

// Service implements the directory's operations over a record store.
type Service struct {
	store   store.Store
	limiter *ImportLimiter
	cfg     Config

	mu      sync.RWMutex
	imports map[string]*activeImport
}

// NewService creates a Service over the given store.
func NewService(st store.Store, cfg Config) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ImportTimeout <= 0 {
		cfg.ImportTimeout = 10 * time.Minute
	}

	return &Service{
		store:   st,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:     cfg,
		imports: make(map[string]*activeImport),
	}
}

// List returns every trial in the directory, ordered by ID.
func (s *Service) List(ctx context.Context) ([]trial.Trial, error) {
	return s.store.List(ctx)
}

// GetTrial returns the trial with the given ID, or store.ErrNotFound.
func (s *Service) GetTrial(ctx context.Context, id int64) (trial.Trial, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return trial.Trial{}, err
	}
	for _, t := range records {
		if t.ID == id {
			return t, nil
		}
	}
	return trial.Trial{}, store.ErrNotFound
}

// Search returns the trials matching the query. An empty query
// returns the full directory.
func (s *Service) Search(ctx context.Context, query string) ([]trial.Trial, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) != "" {
		metrics.RecordSearch()
	}
	return trial.Filter(records, query), nil
}

// CreateTrial stores a new trial and records who created it.
func (s *Service) CreateTrial(ctx context.Context, actor Actor, t trial.Trial) (trial.Trial, error) {
	if !keepable(t) {
		return trial.Trial{}, ErrInvalidTrial
	}

	created, err := s.store.Insert(ctx, t)
	if err != nil {
		return trial.Trial{}, err
	}

	s.recordAudit(ctx, actor, audit.ActionTrialCreate, map[string]any{
		"id":    created.ID,
		"title": created.Title,
	})
	return created, nil
}

// UpdateTrial replaces an existing trial's fields and records who
// changed it. Returns store.ErrNotFound for unknown IDs.
func (s *Service) UpdateTrial(ctx context.Context, actor Actor, t trial.Trial) error {
	if !t.Persisted() {
		return store.ErrNotFound
	}
	if !keepable(t) {
		return ErrInvalidTrial
	}

	if err := s.store.Update(ctx, t.ID, t); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, audit.ActionTrialUpdate, map[string]any{
		"id":    t.ID,
		"title": t.Title,
	})
	return nil
}

// ExportCSV renders the trials matching the query as a CSV document.
func (s *Service) ExportCSV(ctx context.Context, query string) (string, error) {
	records, err := s.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return csvio.Serialize(records), nil
}

// AuditLog returns audit entries, newest first.
func (s *Service) AuditLog(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.store.ListAudit(ctx, f)
}

// RecordSignIn appends a sign-in entry to the audit trail.
func (s *Service) RecordSignIn(ctx context.Context, actor Actor) {
	s.recordAudit(ctx, actor, audit.ActionSignIn, nil)
}

// RecordSignOut appends a sign-out entry to the audit trail.
func (s *Service) RecordSignOut(ctx context.Context, actor Actor) {
	s.recordAudit(ctx, actor, audit.ActionSignOut, nil)
}

// ImportSlots reports how many imports are running and the limit.
func (s *Service) ImportSlots() (active, capacity int) {
	return s.limiter.Active(), s.limiter.Capacity()
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actor Actor, action audit.Action, details map[string]any) {
	err := s.store.RecordAudit(ctx, audit.Entry{
		UserID:    actor.ID,
		UserEmail: actor.Email,
		Action:    action,
		Details:   details,
	})
	if err != nil {
		logAuditFailure(ctx, action, err)
	}
}

func logAuditFailure(ctx context.Context, action audit.Action, err error) {
	logging.FromContext(ctx).Error("audit write failed",
		"action", string(action),
		"error", err,
	)
}

// keepable reports whether a trial carries at least one searchable
// identifying field.
func keepable(t trial.Trial) bool {
	return strings.TrimSpace(t.Title) != "" ||
		strings.TrimSpace(t.Disease) != "" ||
		strings.TrimSpace(t.PI) != ""
}
