package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trialdex/internal/audit"
	"trialdex/internal/trial"
)

func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trials.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadStatic(t *testing.T) {
	path := writeDataFile(t, `[
		{"id": 2, "title": "B", "disease": "乳腺癌", "pi": "Li", "tags": ["HER2"]},
		{"id": 1, "title": "A", "disease": "肺癌", "pi": "Wang"}
	]`)

	s, err := LoadStatic(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadStatic() error = %v", err)
	}

	trials, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(trials) != 2 {
		t.Fatalf("len = %d, want 2", len(trials))
	}
	// Ordered by ID ascending regardless of source order.
	if trials[0].ID != 1 || trials[1].ID != 2 {
		t.Errorf("order = [%d %d], want [1 2]", trials[0].ID, trials[1].ID)
	}
	// Absent tags normalize to an empty slice.
	if trials[0].Tags == nil {
		t.Error("Tags = nil, want empty slice")
	}
}

func TestLoadStatic_MissingFile(t *testing.T) {
	_, err := LoadStatic(context.Background(), "/nonexistent/trials.json")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
}

func TestLoadStatic_InvalidJSON(t *testing.T) {
	path := writeDataFile(t, `{"not": "an array"`)

	_, err := LoadStatic(context.Background(), path)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
}

func TestStatic_InsertAssignsSequentialIDs(t *testing.T) {
	path := writeDataFile(t, `[{"id": 5, "title": "A", "pi": "Wang"}]`)
	s, err := LoadStatic(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	first, err := s.Insert(ctx, trial.Trial{Title: "B"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if first.ID != 6 {
		t.Errorf("first ID = %d, want 6", first.ID)
	}

	second, _ := s.Insert(ctx, trial.Trial{Title: "C"})
	if second.ID != 7 {
		t.Errorf("second ID = %d, want 7", second.ID)
	}
}

func TestStatic_Update(t *testing.T) {
	path := writeDataFile(t, `[{"id": 1, "title": "A", "pi": "Wang"}]`)
	s, err := LoadStatic(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Update(ctx, 1, trial.Trial{Title: "A2", PI: "Wang"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	trials, _ := s.List(ctx)
	if trials[0].Title != "A2" || trials[0].ID != 1 {
		t.Errorf("updated = %+v", trials[0])
	}

	err = s.Update(ctx, 99, trial.Trial{Title: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(99) error = %v, want ErrNotFound", err)
	}
}

func TestStatic_ListReturnsCopy(t *testing.T) {
	path := writeDataFile(t, `[{"id": 1, "title": "A", "pi": "Wang"}]`)
	s, err := LoadStatic(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	trials, _ := s.List(context.Background())
	trials[0].Title = "mutated"

	again, _ := s.List(context.Background())
	if again[0].Title != "A" {
		t.Error("List() exposed internal state")
	}
}

func TestStatic_AuditLog(t *testing.T) {
	path := writeDataFile(t, `[]`)
	s, err := LoadStatic(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, action := range []audit.Action{audit.ActionTrialUpdate, audit.ActionBulkImport, audit.ActionTrialUpdate} {
		if err := s.RecordAudit(ctx, audit.Entry{UserID: "u1", Action: action}); err != nil {
			t.Fatalf("RecordAudit() error = %v", err)
		}
	}

	all, err := s.ListAudit(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("ListAudit() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID == "" || all[0].CreatedAt.IsZero() {
		t.Error("entry missing assigned ID or timestamp")
	}

	imports, _ := s.ListAudit(ctx, audit.Filter{Action: audit.ActionBulkImport})
	if len(imports) != 1 {
		t.Errorf("filtered len = %d, want 1", len(imports))
	}

	limited, _ := s.ListAudit(ctx, audit.Filter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limited len = %d, want 2", len(limited))
	}
}
