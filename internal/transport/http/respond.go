// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services and encode; business rules live below.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// page is the envelope for paginated listings.
type page struct {
	Data       any `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func newPage(data any, total, pageNum, limit int) page {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return page{Data: data, Total: total, Page: pageNum, Limit: limit, TotalPages: totalPages}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeValidation:          http.StatusBadRequest,
	dErrors.CodeNotFound:            http.StatusNotFound,
	dErrors.CodeConflict:            http.StatusConflict,
	dErrors.CodeUnauthorized:        http.StatusUnauthorized,
	dErrors.CodeForbidden:           http.StatusForbidden,
	dErrors.CodeExternal:            http.StatusBadGateway,
	dErrors.CodeLedgerRejected:      http.StatusUnprocessableEntity,
	dErrors.CodeConfirmationTimeout: http.StatusAccepted,
	dErrors.CodeConsistency:         http.StatusInternalServerError,
	dErrors.CodeInternal:            http.StatusInternalServerError,
}

// respondError translates coded domain errors into the JSON error envelope.
// Anything uncoded is an internal error; its details stay in the logs.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal error"
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) && code != dErrors.CodeInternal {
		message = domainErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", requestcontext.RequestID(r.Context()))
	}

	respondJSON(w, status, map[string]string{
		"error":   string(code),
		"message": message,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid request body")
	}
	return nil
}
