package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trialdex/internal/audit"
	"trialdex/internal/csvio"
	"trialdex/internal/importer"
	"trialdex/internal/logging"
	"trialdex/internal/metrics"
)

// ErrImportNotFound is returned for unknown import session IDs.
var ErrImportNotFound = errors.New("import not found")

// ErrFileTooLarge is returned when an uploaded CSV exceeds the
// configured size limit.
var ErrFileTooLarge = errors.New("file exceeds the size limit")

// sessionRetention is how long a finished session stays queryable.
const sessionRetention = 5 * time.Minute

// Phase names where an import session is in its lifecycle.
type Phase string

const (
	PhaseDecoding  Phase = "decoding"
	PhaseInserting Phase = "inserting"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// ImportStatus is a snapshot of a running or finished session.
type ImportStatus struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Phase    Phase  `json:"phase"`
	Total    int    `json:"total"`
	Imported int    `json:"imported"`
	Percent  int    `json:"percent"`
	Error    string `json:"error,omitempty"`
}

// ImportSummary is the terminal outcome of a session. Imported counts
// committed records even when a later chunk failed; those records are
// not rolled back.
type ImportSummary struct {
	ID       string        `json:"id"`
	FileName string        `json:"fileName"`
	Imported int           `json:"imported"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type activeImport struct {
	id       string
	fileName string
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	status    ImportStatus
	summary   *ImportSummary
	listeners []chan ImportStatus
}

// StartImport begins an asynchronous bulk import of a CSV payload and
// returns the session ID immediately. The session holds an import slot
// for its whole run; when all slots are busy StartImport waits up to
// the configured window and then fails with ErrTooManyImports.
func (s *Service) StartImport(ctx context.Context, actor Actor, fileName string, data []byte) (string, error) {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != ".csv" {
		return "", &importer.Error{
			Stage: importer.StageFile,
			Err:   fmt.Errorf("unsupported file type %q", ext),
		}
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(data))
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	id := uuid.New().String()
	imp := &activeImport{
		id:       id,
		fileName: fileName,
		done:     make(chan struct{}),
		status: ImportStatus{
			ID:       id,
			FileName: fileName,
			Phase:    PhaseDecoding,
		},
	}

	importCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ImportTimeout)
	imp.cancel = cancel

	s.mu.Lock()
	s.imports[id] = imp
	s.mu.Unlock()

	go s.runImport(importCtx, imp, actor, data)

	return id, nil
}

// SubscribeProgress returns a channel of status snapshots for a
// session. The current status is delivered immediately and the channel
// closes when the session finishes.
func (s *Service) SubscribeProgress(id string) (<-chan ImportStatus, error) {
	imp, ok := s.lookup(id)
	if !ok {
		return nil, ErrImportNotFound
	}

	ch := make(chan ImportStatus, 10)

	imp.mu.Lock()
	if imp.summary != nil {
		// Already finished: deliver the terminal status and close.
		ch <- imp.status
		close(ch)
	} else {
		imp.listeners = append(imp.listeners, ch)
		select {
		case ch <- imp.status:
		default:
		}
	}
	imp.mu.Unlock()

	return ch, nil
}

// ImportProgress returns the current status without blocking.
func (s *Service) ImportProgress(id string) (ImportStatus, error) {
	imp, ok := s.lookup(id)
	if !ok {
		return ImportStatus{}, ErrImportNotFound
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.status, nil
}

// ImportResult blocks until the session finishes and returns its
// summary.
func (s *Service) ImportResult(ctx context.Context, id string) (ImportSummary, error) {
	imp, ok := s.lookup(id)
	if !ok {
		return ImportSummary{}, ErrImportNotFound
	}

	select {
	case <-imp.done:
	case <-ctx.Done():
		return ImportSummary{}, ctx.Err()
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return *imp.summary, nil
}

// CancelImport stops a running session. Chunks already committed stay
// committed.
func (s *Service) CancelImport(id string) error {
	imp, ok := s.lookup(id)
	if !ok {
		return ErrImportNotFound
	}

	imp.cancel()
	return nil
}

func (s *Service) lookup(id string) (*activeImport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	imp, ok := s.imports[id]
	return imp, ok
}

func (s *Service) runImport(ctx context.Context, imp *activeImport, actor Actor, data []byte) {
	start := time.Now()
	log := logging.WithFields(ctx, "import_id", imp.id, "file", imp.fileName)
	recordOutcome := metrics.ImportStarted()

	defer func() {
		imp.closeListeners()
		close(imp.done)
		s.limiter.Release()
		s.forget(imp.id, sessionRetention)
	}()

	records, err := csvio.Parse(string(data))
	if err == nil && len(records) == 0 {
		err = errors.New("no importable rows")
	}
	if err != nil {
		decodeErr := &importer.Error{Stage: importer.StageDecode, Err: err}
		log.Warn("import decode failed", "error", err)
		imp.finish(PhaseFailed, ImportSummary{
			ID:       imp.id,
			FileName: imp.fileName,
			Duration: time.Since(start),
			Error:    decodeErr.Error(),
		})
		recordOutcome("failed", 0)
		return
	}

	imp.setInserting(len(records))
	log.Info("import started", "records", len(records))

	im := importer.New(s.store.InsertBatch,
		importer.WithBatchSize(s.cfg.BatchSize),
		importer.WithAudit(s.store),
		importer.WithProgress(func(p importer.Progress) {
			imp.updateProgress(p)
		}),
	)

	by := audit.Entry{UserID: actor.ID, UserEmail: actor.Email}
	res, err := im.Run(ctx, imp.fileName, records, by)
	if err != nil {
		imported := 0
		var impErr *importer.Error
		if errors.As(err, &impErr) {
			imported = impErr.Imported
		}

		phase := PhaseFailed
		if ctx.Err() != nil {
			phase = PhaseCancelled
		}
		log.Warn("import stopped", "phase", string(phase), "committed", imported, "error", err)
		imp.finish(phase, ImportSummary{
			ID:       imp.id,
			FileName: imp.fileName,
			Imported: imported,
			Duration: time.Since(start),
			Error:    err.Error(),
		})
		recordOutcome(string(phase), imported)
		return
	}

	log.Info("import complete", "records", res.Imported, "batches", res.Batches)
	imp.finish(PhaseComplete, ImportSummary{
		ID:       imp.id,
		FileName: imp.fileName,
		Imported: res.Imported,
		Batches:  res.Batches,
		Duration: res.Duration,
	})
	recordOutcome("complete", res.Imported)
}

// forget drops a finished session from tracking after a delay.
func (s *Service) forget(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}

func (imp *activeImport) setInserting(total int) {
	imp.mu.Lock()
	imp.status.Phase = PhaseInserting
	imp.status.Total = total
	imp.mu.Unlock()
	imp.notify()
}

func (imp *activeImport) updateProgress(p importer.Progress) {
	imp.mu.Lock()
	imp.status.Total = p.Total
	imp.status.Imported = p.Imported
	imp.status.Percent = p.Percent
	imp.mu.Unlock()
	imp.notify()
}

func (imp *activeImport) finish(phase Phase, summary ImportSummary) {
	imp.mu.Lock()
	imp.status.Phase = phase
	imp.status.Imported = summary.Imported
	imp.status.Error = summary.Error
	if phase == PhaseComplete {
		imp.status.Percent = 100
	}
	imp.summary = &summary
	imp.mu.Unlock()
	imp.notify()
}

// notify fans the current status out to listeners. Slow listeners
// miss intermediate snapshots rather than stalling the import loop.
func (imp *activeImport) notify() {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	for _, ch := range imp.listeners {
		select {
		case ch <- imp.status:
		default:
		}
	}
}

func (imp *activeImport) closeListeners() {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	for _, ch := range imp.listeners {
		close(ch)
	}
	imp.listeners = nil
}
