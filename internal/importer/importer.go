// Package importer drives bulk CSV-sourced inserts through the record
// store in fixed-size chunks, tracking progress and partial failure.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"trialdex/internal/audit"
	"trialdex/internal/trial"
)

// DefaultBatchSize is the number of records written per store call.
const DefaultBatchSize = 10

// Stage names the part of the import pipeline that failed.
type Stage string

const (
	StageFile   Stage = "file"
	StageDecode Stage = "decode"
	StageInsert Stage = "insert"
)

// Error reports an import failure and which stage produced it. For
// insert failures, Imported carries how many records earlier chunks
// had already committed; those records are NOT rolled back.
type Error struct {
	Stage    Stage
	Imported int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("import failed at %s stage: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// InsertFunc writes one chunk to the backing store. A chunk either
// commits or fails as a unit.
type InsertFunc func(ctx context.Context, batch []trial.Trial) error

// Progress is a snapshot emitted after each committed chunk.
type Progress struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Percent  int `json:"percent"`
}

// ProgressFunc receives progress snapshots. Called synchronously from
// the import loop, so implementations must be fast and non-blocking.
type ProgressFunc func(Progress)

// Result is the terminal outcome of a successful import.
type Result struct {
	FileName string        `json:"fileName"`
	Imported int           `json:"imported"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// Importer writes decoded records in strictly sequential chunks.
type Importer struct {
	batchSize  int
	insert     InsertFunc
	onProgress ProgressFunc
	auditor    audit.Recorder
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(im *Importer) { im.onProgress = fn }
}

// WithAudit registers the audit recorder that receives the single
// bulk-import entry written on full success.
func WithAudit(rec audit.Recorder) Option {
	return func(im *Importer) { im.auditor = rec }
}

// New creates an Importer around the given chunk writer.
func New(insert InsertFunc, opts ...Option) *Importer {
	im := &Importer{
		batchSize: DefaultBatchSize,
		insert:    insert,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run imports records in order, one chunk at a time. Each chunk is
// awaited before the next begins: chunks never overlap, so reported
// progress is monotonic and the store sees at most one in-flight write.
//
// On the first chunk failure Run stops immediately and returns an
// *Error; chunks committed before the failure stay committed and no
// later chunk is attempted. There are no retries. On full success the
// result is recorded once in the audit trail (count and source file
// name) attributed to the actor in by.
func (im *Importer) Run(ctx context.Context, fileName string, records []trial.Trial, by audit.Entry) (Result, error) {
	start := time.Now()
	total := len(records)
	imported := 0
	batches := 0

	for offset := 0; offset < total; offset += im.batchSize {
		end := offset + im.batchSize
		if end > total {
			end = total
		}

		if err := im.insert(ctx, records[offset:end]); err != nil {
			return Result{}, &Error{Stage: StageInsert, Imported: imported, Err: err}
		}

		imported = end
		batches++
		if im.onProgress != nil {
			im.onProgress(Progress{
				Total:    total,
				Imported: imported,
				Percent:  percent(imported, total),
			})
		}
	}

	result := Result{
		FileName: fileName,
		Imported: imported,
		Batches:  batches,
		Duration: time.Since(start),
	}

	if im.auditor != nil {
		entry := by
		entry.Action = audit.ActionBulkImport
		entry.Details = map[string]any{
			"count":    imported,
			"fileName": fileName,
		}
		if err := im.auditor.RecordAudit(ctx, entry); err != nil {
			// The records are committed; a failed audit write does not
			// fail the import.
			slog.Error("bulk import audit write failed",
				"file", fileName,
				"count", imported,
				"error", err,
			)
		}
	}

	return result, nil
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
