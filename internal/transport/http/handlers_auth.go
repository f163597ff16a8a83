package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/onboarding"
)

// AuthHandler serves login and the institution onboarding flow.
type AuthHandler struct {
	accounts   *accounts.Service
	onboarding *onboarding.Service
	logger     *slog.Logger
}

func NewAuthHandler(accountsSvc *accounts.Service, onboardingSvc *onboarding.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accountsSvc, onboarding: onboardingSvc, logger: logger}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/university/register", h.handleRegister)
	r.Post("/university/verify-otp", h.handleVerifyOtp)
}

// handleSignup registers a plain user account. Verification is public, so the
// user role grants no route access beyond login itself.
func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	account, err := h.accounts.Create(r.Context(), req.Email, req.Password, accounts.RoleUser)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "account created",
		"account": map[string]string{
			"id":    account.ID,
			"email": account.Email,
			"role":  string(account.Role),
		},
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	token, account, err := h.accounts.Login(r.Context(), req.Email, req.Password, accounts.Role(req.Role))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"account": map[string]string{
			"id":    account.ID,
			"email": account.Email,
			"role":  string(account.Role),
		},
	})
}

// handleLogout exists so clients have a uniform sign-out call. Tokens are
// stateless bearer JWTs, so the server has nothing to invalidate; clients
// discard the token and it lapses at its expiry.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var profile onboarding.Profile
	if err := decodeJSON(r, &profile); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.onboarding.BeginRegistration(r.Context(), profile); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "verification code sent",
	})
}

func (h *AuthHandler) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	pending, err := h.onboarding.VerifyOtp(r.Context(), req.Email, req.Code)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "registration submitted for review",
		"request": pending,
	})
}
