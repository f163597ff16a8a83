package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laksac24/VeriFy/internal/issuance"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// maxBatchBytes bounds one multipart submission. Large batches should be
// split, not streamed.
const maxBatchBytes = 64 << 20

// DocumentsHandler serves the issuing institution's credential pipeline. The
// authenticated account ID doubles as the institution ID.
type DocumentsHandler struct {
	issuance *issuance.Service
	logger   *slog.Logger
}

func NewDocumentsHandler(issuanceSvc *issuance.Service, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{issuance: issuanceSvc, logger: logger}
}

func (h *DocumentsHandler) Register(r chi.Router) {
	r.Post("/documents", h.handleSubmit)
	r.Get("/documents", h.handleList)
	r.Get("/documents/{id}", h.handleGet)
	r.Post("/documents/anchor", h.handleAnchor)
	r.Post("/documents/finalize", h.handleFinalize)
	r.Post("/documents/{id}/resolve", h.handleResolve)
}

type submissionMeta struct {
	SubjectName string `json:"subject_name"`
	SubjectID   string `json:"subject_id"`
	Program     string `json:"program"`
	Period      string `json:"period"`
	Score       string `json:"score"`
}

// handleSubmit accepts a multipart batch: a "metadata" JSON array and one
// "documents" file per array entry, index-aligned.
func (h *DocumentsHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBatchBytes); err != nil {
		respondError(w, r, h.logger, dErrors.New(dErrors.CodeValidation, "invalid multipart body"))
		return
	}

	var metas []submissionMeta
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &metas); err != nil {
		respondError(w, r, h.logger, dErrors.New(dErrors.CodeValidation, "metadata must be a JSON array"))
		return
	}
	files := r.MultipartForm.File["documents"]
	if len(files) != len(metas) {
		respondError(w, r, h.logger, dErrors.New(dErrors.CodeValidation,
			"metadata entries and documents must correspond 1:1"))
		return
	}

	items := make([]issuance.Submission, len(metas))
	for i, meta := range metas {
		file, err := files[i].Open()
		if err != nil {
			respondError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "unreadable document"))
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, r, h.logger, dErrors.Wrap(err, dErrors.CodeValidation, "unreadable document"))
			return
		}
		items[i] = issuance.Submission{
			SubjectName: meta.SubjectName,
			SubjectID:   meta.SubjectID,
			Program:     meta.Program,
			Period:      meta.Period,
			Score:       meta.Score,
			Document:    data,
			ContentType: files[i].Header.Get("Content-Type"),
		}
	}

	results, err := h.issuance.SubmitBatch(r.Context(), requestcontext.AccountID(r.Context()), items)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, batchStatus(results, http.StatusCreated), map[string]any{"results": results})
}

func (h *DocumentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	pageNum, limit := queryPaging(r)
	credentials, total, err := h.issuance.List(r.Context(), requestcontext.AccountID(r.Context()), pageNum, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newPage(credentials, total, pageNum, limit))
}

func (h *DocumentsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	cred, err := h.issuance.Get(r.Context(), requestcontext.AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cred)
}

type batchRequest struct {
	CredentialIDs []string `json:"credential_ids"`
}

func (h *DocumentsHandler) handleAnchor(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	credentials, err := h.issuance.AnchorBatch(r.Context(), requestcontext.AccountID(r.Context()), req.CredentialIDs)
	if err != nil {
		// The timeout verdict still carries the parked credentials so the
		// client can show them and offer resolution.
		if dErrors.HasCode(err, dErrors.CodeConfirmationTimeout) {
			respondJSON(w, http.StatusAccepted, map[string]any{
				"message":     "anchor confirmation timed out; outcome unknown, resolve before retrying",
				"credentials": credentials,
			})
			return
		}
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"credentials": credentials})
}

func (h *DocumentsHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	results, err := h.issuance.FinalizeBatch(r.Context(), requestcontext.AccountID(r.Context()), req.CredentialIDs)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, batchStatus(results, http.StatusOK), map[string]any{"results": results})
}

func (h *DocumentsHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	cred, err := h.issuance.ResolvePending(r.Context(), requestcontext.AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cred)
}

// batchStatus maps per-item outcomes to one status line: all good, all bad,
// or 207 for a mixed batch.
func batchStatus(results []issuance.SubmitResult, success int) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	switch failed {
	case 0:
		return success
	case len(results):
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}
