package web

// errors.go maps internal errors to HTTP responses. Every failure is
// logged with full detail server-side and returned to the client as a
// short message, a suggested action, and a support code. Codes group
// by concern: AUTH for sessions, REC for records, SRC for the static
// data source, IMP for bulk imports, ERR000 as the fallback.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"trialdex/internal/auth"
	"trialdex/internal/core"
	"trialdex/internal/csvio"
	"trialdex/internal/importer"
	"trialdex/internal/logging"
	"trialdex/internal/store"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

type userMessage struct {
	Status  int
	Message string
	Action  string
	Code    string
}

// mapError translates an internal error to a status and user message.
// Matching is by error identity, not string patterns: sentinels via
// errors.Is and structured errors via errors.As.
func mapError(err error) userMessage {
	var (
		fetchErr *store.FetchError
		impErr   *importer.Error
		roleErr  *auth.RoleLookupError
	)

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return userMessage{http.StatusUnauthorized,
			"Email or password is incorrect",
			"Check your credentials and try again", "AUTH001"}

	case errors.Is(err, auth.ErrTokenExpired):
		return userMessage{http.StatusUnauthorized,
			"Your session has expired",
			"Sign in again", "AUTH003"}

	case errors.Is(err, auth.ErrInvalidToken):
		return userMessage{http.StatusUnauthorized,
			"Your session is not valid",
			"Sign in again", "AUTH002"}

	case errors.As(err, &roleErr):
		if roleErr.Misconfigured {
			return userMessage{http.StatusInternalServerError,
				"The access policy for this account is misconfigured",
				"Contact your administrator and quote this code", "AUTH010"}
		}
		return userMessage{http.StatusInternalServerError,
			"Could not determine your role",
			"Try again or contact your administrator", "AUTH011"}

	case errors.Is(err, store.ErrNotFound):
		return userMessage{http.StatusNotFound,
			"The trial record does not exist",
			"It may have been removed; refresh the list", "REC001"}

	case errors.Is(err, core.ErrInvalidTrial):
		return userMessage{http.StatusUnprocessableEntity,
			"The trial needs a title, disease, or investigator",
			"Fill in at least one identifying field", "REC002"}

	case errors.As(err, &fetchErr):
		return userMessage{http.StatusBadGateway,
			"The directory data source could not be loaded",
			"Reload to try again", "SRC001"}

	case errors.Is(err, core.ErrFileTooLarge):
		return userMessage{http.StatusRequestEntityTooLarge,
			"The file exceeds the upload size limit",
			"Split the CSV into smaller files", "IMP001"}

	case errors.Is(err, core.ErrTooManyImports):
		return userMessage{http.StatusTooManyRequests,
			"Another import is already running",
			"Wait for it to finish and try again", "IMP002"}

	case errors.Is(err, core.ErrImportNotFound):
		return userMessage{http.StatusNotFound,
			"The import session was not found",
			"It may have expired; start a new import", "IMP003"}

	case errors.Is(err, csvio.ErrEmptyFile):
		return userMessage{http.StatusBadRequest,
			"The uploaded file is empty",
			"Upload a CSV with a header row and data", "IMP004"}

	case errors.As(err, &impErr):
		switch impErr.Stage {
		case importer.StageFile:
			return userMessage{http.StatusUnsupportedMediaType,
				"Only CSV files can be imported",
				"Upload a file with a .csv extension", "IMP005"}
		case importer.StageDecode:
			return userMessage{http.StatusBadRequest,
				"The CSV could not be read",
				"Check the header row and column format", "IMP010"}
		case importer.StageInsert:
			return userMessage{http.StatusInternalServerError,
				fmt.Sprintf("The import stopped after %d records were saved", impErr.Imported),
				"Remove the already-imported rows and retry the rest", "IMP011"}
		default:
			return userMessage{http.StatusBadRequest,
				"The file could not be processed",
				"Check the file and try again", "IMP012"}
		}

	case errors.Is(err, context.DeadlineExceeded):
		return userMessage{http.StatusGatewayTimeout,
			"The operation timed out",
			"Try again, or with a smaller file", "ERR001"}

	default:
		return userMessage{http.StatusInternalServerError,
			"An unexpected error occurred",
			"Try again or contact support and quote this code", "ERR000"}
	}
}

// respondError logs the technical error and writes the mapped JSON
// response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	msg := mapError(err)

	logging.FromContext(r.Context()).Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", msg.Status,
		"code", msg.Code,
		"error", err,
	)

	writeJSON(w, msg.Status, ErrorResponse{
		Error:  msg.Message,
		Action: msg.Action,
		Code:   msg.Code,
	})
}

// writeJSON encodes v with the given status. Encoding failures are
// logged; the header is already gone by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}

// badRequest writes a plain 400 without going through mapError, for
// malformed inputs that never reach the service layer.
func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error: message,
		Code:  "REQ001",
	})
}
