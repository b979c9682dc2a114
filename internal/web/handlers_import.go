package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trialdex/internal/core"
)

// handleStartImport accepts a CSV upload as multipart form data and
// starts an asynchronous import session. The session ID comes back
// immediately; progress is available on the progress and events
// endpoints.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		badRequest(w, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id, err := s.service.StartImport(r.Context(), actorFrom(r), header.Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"import_id": id})
}

// handleImportProgress returns the current session status as a JSON
// snapshot.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.ImportProgress(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleImportEvents streams session status over Server-Sent Events.
// The event ID is the progress percentage, so a client reconnecting
// with Last-Event-ID skips snapshots it already has.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	ch, err := s.service.SubscribeProgress(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	lastSeen := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		fmt.Sscanf(v, "%d", &lastSeen)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	for {
		select {
		case status, open := <-ch:
			if !open {
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Terminal snapshots always go out: a failed or cancelled
			// import ends at the same percent as its last committed
			// chunk, so percent dedup alone would swallow them.
			terminal := status.Phase == core.PhaseComplete ||
				status.Phase == core.PhaseFailed ||
				status.Phase == core.PhaseCancelled
			if !terminal && status.Percent <= lastSeen {
				continue
			}
			lastSeen = status.Percent

			data, _ := json.Marshal(status)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", status.Percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult blocks until the session finishes and returns its
// summary.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ImportResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
