package web

import (
	"net/http"
	"strconv"

	"trialdex/internal/audit"
)

// handleAuditLog returns audit entries newest first, optionally
// filtered by action and paged with limit/offset.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	f := audit.Filter{
		Action: audit.Action(r.URL.Query().Get("action")),
		Limit:  intParam(r, "limit", audit.DefaultLimit),
		Offset: intParam(r, "offset", 0),
	}

	entries, err := s.service.AuditLog(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
