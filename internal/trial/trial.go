// Package trial defines the Trial record type and the search filter
// over an in-memory record set. This package has no storage or UI
// dependencies.
package trial

// Trial is a single clinical-trial listing. A persisted Trial has a
// positive ID assigned by the store; a draft authored by an admin but
// not yet saved has ID zero.
type Trial struct {
	ID         int64    `json:"id,omitempty"`
	Department string   `json:"department"`
	PI         string   `json:"pi"`
	Title      string   `json:"title"`
	Disease    string   `json:"disease"`
	Tags       []string `json:"tags"`
	Criteria   string   `json:"criteria"`
	Contact    string   `json:"contact"`
}

// Persisted reports whether the trial has been assigned an ID by the store.
func (t Trial) Persisted() bool {
	return t.ID > 0
}
