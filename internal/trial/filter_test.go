package trial

import (
	"reflect"
	"testing"
)

func sampleTrials() []Trial {
	return []Trial{
		{ID: 1, Disease: "肺癌", Title: "NSCLC Trial", PI: "Wang", Tags: []string{"EGFR"}},
		{ID: 2, Disease: "乳腺癌", Title: "HER2+ Study", PI: "Li", Tags: []string{"HER2", "ADC"}},
		{ID: 3, Disease: "Gastric Cancer", Title: "Phase II", PI: "Zhang", Tags: nil},
	}
}

func TestFilter(t *testing.T) {
	records := sampleTrials()

	tests := []struct {
		name    string
		query   string
		wantIDs []int64
	}{
		{
			name:    "empty query matches all",
			query:   "",
			wantIDs: []int64{1, 2, 3},
		},
		{
			name:    "whitespace-only query matches all",
			query:   "   ",
			wantIDs: []int64{1, 2, 3},
		},
		{
			name:    "disease match",
			query:   "肺癌",
			wantIDs: []int64{1},
		},
		{
			name:    "title match case-insensitive",
			query:   "nsclc",
			wantIDs: []int64{1},
		},
		{
			name:    "pi match",
			query:   "zhang",
			wantIDs: []int64{3},
		},
		{
			name:    "tag match lower-case query",
			query:   "egfr",
			wantIDs: []int64{1},
		},
		{
			name:    "tag match upper-case query",
			query:   "EGFR",
			wantIDs: []int64{1},
		},
		{
			name:    "substring across multiple records preserves order",
			query:   "癌",
			wantIDs: []int64{1, 2},
		},
		{
			name:    "no match",
			query:   "melanoma",
			wantIDs: []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(records, tt.query)

			gotIDs := make([]int64, 0, len(got))
			for _, r := range got {
				gotIDs = append(gotIDs, r.ID)
			}
			if !reflect.DeepEqual(gotIDs, tt.wantIDs) {
				t.Errorf("Filter(%q) IDs = %v, want %v", tt.query, gotIDs, tt.wantIDs)
			}
		})
	}
}

func TestFilter_EmptyQueryReturnsSameSlice(t *testing.T) {
	records := sampleTrials()
	got := Filter(records, "")
	if len(got) != len(records) {
		t.Fatalf("len = %d, want %d", len(got), len(records))
	}
	// Identity pass-through: same backing array, not a copy.
	if &got[0] != &records[0] {
		t.Error("empty query should return the input slice unchanged")
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	records := sampleTrials()
	want := sampleTrials()

	Filter(records, "egfr")
	Filter(records, "wang")

	if !reflect.DeepEqual(records, want) {
		t.Error("Filter mutated its input")
	}
}

func TestFilter_CriteriaAndContactNotSearched(t *testing.T) {
	records := []Trial{
		{ID: 1, Title: "A", Criteria: "ECOG 0-1", Contact: "010-1234"},
	}
	if got := Filter(records, "ecog"); len(got) != 0 {
		t.Errorf("criteria should not be searched, got %d matches", len(got))
	}
	if got := Filter(records, "010-1234"); len(got) != 0 {
		t.Errorf("contact should not be searched, got %d matches", len(got))
	}
}
