package importer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"trialdex/internal/audit"
	"trialdex/internal/trial"
)

func makeRecords(n int) []trial.Trial {
	records := make([]trial.Trial, n)
	for i := range records {
		records[i] = trial.Trial{Title: fmt.Sprintf("trial-%d", i)}
	}
	return records
}

type auditSink struct {
	entries []audit.Entry
}

func (a *auditSink) RecordAudit(_ context.Context, e audit.Entry) error {
	a.entries = append(a.entries, e)
	return nil
}

func TestRun_ChunkSizesAndProgress(t *testing.T) {
	var batchSizes []int
	insert := func(_ context.Context, batch []trial.Trial) error {
		batchSizes = append(batchSizes, len(batch))
		return nil
	}

	var percents []int
	im := New(insert, WithProgress(func(p Progress) {
		percents = append(percents, p.Percent)
	}))

	result, err := im.Run(context.Background(), "trials.csv", makeRecords(23), audit.Entry{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := []int{10, 10, 3}; !reflect.DeepEqual(batchSizes, want) {
		t.Errorf("batch sizes = %v, want %v", batchSizes, want)
	}
	if want := []int{43, 87, 100}; !reflect.DeepEqual(percents, want) {
		t.Errorf("progress = %v, want %v", percents, want)
	}
	if result.Imported != 23 {
		t.Errorf("Imported = %d, want 23", result.Imported)
	}
	if result.Batches != 3 {
		t.Errorf("Batches = %d, want 3", result.Batches)
	}
}

func TestRun_PreservesOrder(t *testing.T) {
	var titles []string
	insert := func(_ context.Context, batch []trial.Trial) error {
		for _, rec := range batch {
			titles = append(titles, rec.Title)
		}
		return nil
	}

	records := makeRecords(25)
	if _, err := New(insert).Run(context.Background(), "f.csv", records, audit.Entry{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, title := range titles {
		if want := fmt.Sprintf("trial-%d", i); title != want {
			t.Fatalf("position %d = %q, want %q", i, title, want)
		}
	}
}

func TestRun_StopsAtFirstFailedChunk(t *testing.T) {
	boom := errors.New("insert rejected")
	calls := 0
	committed := 0
	insert := func(_ context.Context, batch []trial.Trial) error {
		calls++
		if calls == 2 {
			return boom
		}
		committed += len(batch)
		return nil
	}

	sink := &auditSink{}
	im := New(insert, WithAudit(sink))

	_, err := im.Run(context.Background(), "f.csv", makeRecords(23), audit.Entry{})

	var impErr *Error
	if !errors.As(err, &impErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if impErr.Stage != StageInsert {
		t.Errorf("Stage = %q, want %q", impErr.Stage, StageInsert)
	}
	if !errors.Is(err, boom) {
		t.Error("cause not preserved")
	}

	// Chunk 1 stays committed, chunk 3 is never attempted.
	if calls != 2 {
		t.Errorf("insert calls = %d, want 2", calls)
	}
	if committed != 10 {
		t.Errorf("committed = %d, want 10", committed)
	}
	if impErr.Imported != 10 {
		t.Errorf("Imported = %d, want 10", impErr.Imported)
	}
	if len(sink.entries) != 0 {
		t.Error("failed import must not write an audit entry")
	}
}

func TestRun_AuditEntryOnSuccess(t *testing.T) {
	insert := func(context.Context, []trial.Trial) error { return nil }
	sink := &auditSink{}
	im := New(insert, WithAudit(sink))

	by := audit.Entry{UserID: "u1", UserEmail: "admin@example.com"}
	if _, err := im.Run(context.Background(), "trials.csv", makeRecords(23), by); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Action != audit.ActionBulkImport {
		t.Errorf("Action = %q", e.Action)
	}
	if e.UserID != "u1" || e.UserEmail != "admin@example.com" {
		t.Errorf("actor = %q/%q", e.UserID, e.UserEmail)
	}
	if e.Details["count"] != 23 || e.Details["fileName"] != "trials.csv" {
		t.Errorf("Details = %v", e.Details)
	}
}

func TestRun_CustomBatchSize(t *testing.T) {
	var batchSizes []int
	insert := func(_ context.Context, batch []trial.Trial) error {
		batchSizes = append(batchSizes, len(batch))
		return nil
	}

	im := New(insert, WithBatchSize(4))
	if _, err := im.Run(context.Background(), "f.csv", makeRecords(9), audit.Entry{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := []int{4, 4, 1}; !reflect.DeepEqual(batchSizes, want) {
		t.Errorf("batch sizes = %v, want %v", batchSizes, want)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	calls := 0
	insert := func(context.Context, []trial.Trial) error { calls++; return nil }
	sink := &auditSink{}

	result, err := New(insert, WithAudit(sink)).Run(context.Background(), "empty.csv", nil, audit.Entry{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("insert calls = %d, want 0", calls)
	}
	if result.Imported != 0 || result.Batches != 0 {
		t.Errorf("result = %+v", result)
	}
}
