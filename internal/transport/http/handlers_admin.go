package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/laksac24/VeriFy/internal/onboarding"
)

// AdminHandler serves the review queue for institution registrations.
type AdminHandler struct {
	onboarding *onboarding.Service
	logger     *slog.Logger
}

func NewAdminHandler(onboardingSvc *onboarding.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{onboarding: onboardingSvc, logger: logger}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/requests", h.handleListRequests)
	r.Post("/requests/{id}/approve", h.handleApprove)
	r.Post("/requests/{id}/reject", h.handleReject)
	r.Post("/issuers", h.handleWhitelistIssuer)
	r.Delete("/issuers/{identity}", h.handleRevokeIssuer)
}

func (h *AdminHandler) handleWhitelistIssuer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.onboarding.WhitelistIssuer(r.Context(), req.Identity); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "issuer whitelisted"})
}

func (h *AdminHandler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	pageNum, limit := queryPaging(r)
	requests, total, err := h.onboarding.ListPending(r.Context(), pageNum, limit, r.URL.Query().Get("search"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, newPage(requests, total, pageNum, limit))
}

func (h *AdminHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	inst, err := h.onboarding.Decide(r.Context(), chi.URLParam(r, "id"), onboarding.OutcomeApprove, "")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":     "institution approved",
		"institution": inst,
	})
}

func (h *AdminHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if _, err := h.onboarding.Decide(r.Context(), chi.URLParam(r, "id"), onboarding.OutcomeReject, req.Reason); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "registration rejected"})
}

func (h *AdminHandler) handleRevokeIssuer(w http.ResponseWriter, r *http.Request) {
	if err := h.onboarding.RevokeIssuer(r.Context(), chi.URLParam(r, "identity")); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "issuer revoked"})
}

func queryPaging(r *http.Request) (int, int) {
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if pageNum < 1 {
		pageNum = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return pageNum, limit
}
