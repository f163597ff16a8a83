package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/platform/middleware"
)

// RouterConfig gathers everything the router wires together.
type RouterConfig struct {
	Auth      *AuthHandler
	Admin     *AdminHandler
	Documents *DocumentsHandler
	Verify    *VerifyHandler
	Verifier  middleware.TokenVerifier
	Logger    *slog.Logger
}

// NewRouter builds the full route tree. Authentication is enforced per
// subtree; the verification endpoint and the onboarding flow stay public.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", cfg.Auth.Register)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Verifier, cfg.Logger))
			r.Use(middleware.RequireRole(cfg.Logger, string(accounts.RoleAdmin)))
			cfg.Admin.Register(r)
		})

		r.Route("/university", func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.Verifier, cfg.Logger))
			r.Use(middleware.RequireRole(cfg.Logger, string(accounts.RoleUniversity)))
			cfg.Documents.Register(r)
		})

		r.Route("/verify", cfg.Verify.Register)
	})

	return r
}
