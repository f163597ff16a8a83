package httpserver

import (
	"net/http"
	"time"

	"github.com/laksac24/VeriFy/internal/platform/config"
)

// New builds an HTTP server with the configured timeouts. Zero timeouts fall
// back to values that suit a small JSON API; document uploads are the largest
// request bodies, so the read timeout bounds them.
func New(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
