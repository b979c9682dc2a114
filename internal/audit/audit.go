// Package audit defines the append-only audit trail written once per
// mutating admin action. Entries are write-once: nothing in this
// application mutates or deletes an entry after it is recorded.
package audit

import (
	"context"
	"time"
)

// Action identifies the kind of admin mutation being recorded.
type Action string

const (
	ActionTrialCreate Action = "trial_create"
	ActionTrialUpdate Action = "trial_update"
	ActionBulkImport  Action = "bulk_import"
	ActionSignIn      Action = "sign_in"
	ActionSignOut     Action = "sign_out"
)

// Entry is a single audit record. Details carries an action-specific
// structured payload, e.g. {"trial_id": 12, "disease": "肺癌"} for a
// record save or {"count": 23, "fileName": "trials.csv"} for an import.
type Entry struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UserID    string         `json:"userId"`
	UserEmail string         `json:"userEmail"`
	Action    Action         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recorder appends entries to the audit trail.
type Recorder interface {
	RecordAudit(ctx context.Context, e Entry) error
}

// Filter narrows audit log queries.
type Filter struct {
	Action Action
	Limit  int
	Offset int
}

// DefaultLimit caps audit log pages when the caller does not set one.
const DefaultLimit = 100
