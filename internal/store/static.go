package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trialdex/internal/audit"
	"trialdex/internal/trial"
)

// Static is the Store implementation backed by a JSON document loaded
// once at startup. Inserts and updates mutate memory only: nothing is
// written back to the source, and edits survive only until the process
// exits. Persisting changes means exporting the record set and
// replacing the source document by hand. This is a deliberate property
// of the static deployment, not an oversight.
type Static struct {
	source string

	mu      sync.RWMutex
	trials  []trial.Trial
	nextID  int64
	entries []audit.Entry
}

// LoadStatic reads the record set from a local file path or, when the
// source starts with http:// or https://, from a URL. A source that is
// unreachable, returns a non-OK status, or holds invalid JSON yields a
// *FetchError; the load is not retried.
func LoadStatic(ctx context.Context, source string) (*Static, error) {
	data, err := readSource(ctx, source)
	if err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}

	var trials []trial.Trial
	if err := json.Unmarshal(data, &trials); err != nil {
		return nil, &FetchError{Source: source, Err: fmt.Errorf("decode JSON: %w", err)}
	}

	sort.Slice(trials, func(i, j int) bool { return trials[i].ID < trials[j].ID })

	var maxID int64
	for i := range trials {
		if trials[i].Tags == nil {
			trials[i].Tags = []string{}
		}
		if trials[i].ID > maxID {
			maxID = trials[i].ID
		}
	}

	return &Static{
		source: source,
		trials: trials,
		nextID: maxID + 1,
	}, nil
}

func readSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

func (s *Static) Close() {}

// Source returns where the record set was loaded from.
func (s *Static) Source() string { return s.source }

func (s *Static) List(_ context.Context) ([]trial.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]trial.Trial, len(s.trials))
	copy(out, s.trials)
	return out, nil
}

func (s *Static) Insert(_ context.Context, t trial.Trial) (trial.Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextID
	s.nextID++
	if t.Tags == nil {
		t.Tags = []string{}
	}
	s.trials = append(s.trials, t)
	return t, nil
}

func (s *Static) InsertBatch(_ context.Context, batch []trial.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range batch {
		t.ID = s.nextID
		s.nextID++
		if t.Tags == nil {
			t.Tags = []string{}
		}
		s.trials = append(s.trials, t)
	}
	return nil
}

func (s *Static) Update(_ context.Context, id int64, t trial.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.trials {
		if s.trials[i].ID == id {
			t.ID = id
			if t.Tags == nil {
				t.Tags = []string{}
			}
			s.trials[i] = t
			return nil
		}
	}
	return &Error{Op: "update", Err: ErrNotFound}
}

func (s *Static) RecordAudit(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.New().String()
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, e)
	return nil
}

func (s *Static) ListAudit(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	if f.Limit <= 0 {
		f.Limit = audit.DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first, matching the Postgres implementation.
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
