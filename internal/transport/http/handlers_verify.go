package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laksac24/VeriFy/internal/verification"
)

// VerifyHandler serves the public, unauthenticated verification endpoint.
type VerifyHandler struct {
	verification *verification.Service
	logger       *slog.Logger
}

func NewVerifyHandler(verificationSvc *verification.Service, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verification: verificationSvc, logger: logger}
}

func (h *VerifyHandler) Register(r chi.Router) {
	r.Get("/{fingerprint}", h.handleVerify)
}

func (h *VerifyHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.verification.Verify(r.Context(), chi.URLParam(r, "fingerprint"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
