package trial

import "strings"

// Filter returns the subset of records matching query, preserving the
// original relative order. The query is lower-cased and trimmed; an
// empty query matches everything and returns records unchanged.
//
// A record matches when the query is a case-insensitive substring of
// its disease, title, or PI, or of any of its tags. Filter is pure and
// performs a full rescan on every call; it is cheap enough to run per
// keystroke for directory-sized record sets, so no index is kept.
func Filter(records []Trial, query string) []Trial {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	matched := make([]Trial, 0, len(records))
	for _, t := range records {
		if matches(t, q) {
			matched = append(matched, t)
		}
	}
	return matched
}

// matches expects q to be lower-cased already.
func matches(t Trial, q string) bool {
	if strings.Contains(strings.ToLower(t.Disease), q) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(t.PI), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
