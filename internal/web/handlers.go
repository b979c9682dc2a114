package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trialdex/internal/core"
	"trialdex/internal/trial"
	"trialdex/internal/web/middleware"
)

// handleSearch returns the trials matching the query parameter, or the
// whole directory when it is absent.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	records, err := s.service.Search(r.Context(), query)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trials": records,
		"count":  len(records),
	})
}

func (s *Server) handleGetTrial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "trial id must be a positive integer")
		return
	}

	t, err := s.service.GetTrial(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleExport renders matching trials as a CSV download, or as JSON
// when format=json is requested.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	if r.URL.Query().Get("format") == "json" {
		records, err := s.service.Search(r.Context(), query)
		if err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="trials.json"`)
		writeJSON(w, http.StatusOK, records)
		return
	}

	out, err := s.service.ExportCSV(r.Context(), query)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="trials.csv"`)
	w.Write([]byte(out))
}

func (s *Server) handleCreateTrial(w http.ResponseWriter, r *http.Request) {
	var t trial.Trial
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		badRequest(w, "request body is not valid JSON")
		return
	}
	t.ID = 0 // the store assigns IDs

	created, err := s.service.CreateTrial(r.Context(), actorFrom(r), t)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTrial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "trial id must be a positive integer")
		return
	}

	var t trial.Trial
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		badRequest(w, "request body is not valid JSON")
		return
	}
	t.ID = id

	if err := s.service.UpdateTrial(r.Context(), actorFrom(r), t); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// actorFrom converts the request's authenticated principal to the
// service-layer actor. Routes behind RequireAuth always have one.
func actorFrom(r *http.Request) core.Actor {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return core.Actor{ID: p.ID, Email: p.Email}
}
