package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/audit"
	"github.com/laksac24/VeriFy/internal/issuance"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/notify"
	"github.com/laksac24/VeriFy/internal/objectstore"
	"github.com/laksac24/VeriFy/internal/onboarding"
	"github.com/laksac24/VeriFy/internal/platform/config"
	"github.com/laksac24/VeriFy/internal/platform/httpserver"
	"github.com/laksac24/VeriFy/internal/platform/logger"
	"github.com/laksac24/VeriFy/internal/platform/metrics"
	"github.com/laksac24/VeriFy/internal/platform/middleware"
	"github.com/laksac24/VeriFy/internal/platform/postgres"
	platformredis "github.com/laksac24/VeriFy/internal/platform/redis"
	httptransport "github.com/laksac24/VeriFy/internal/transport/http"
	"github.com/laksac24/VeriFy/internal/verification"
)

// main wires infrastructure into services and runs the HTTP server until a
// shutdown signal arrives. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	var challenges onboarding.ChallengeStore
	if redisClient != nil {
		defer redisClient.Close()
		challenges = onboarding.NewRedisChallengeStore(redisClient.Client)
	} else {
		log.Warn("REDIS_URL not set, keeping onboarding challenges in process memory")
		challenges = onboarding.NewInMemoryChallengeStore()
	}

	gateway, err := buildLedger(ctx, cfg, log)
	if err != nil {
		log.Error("ledger gateway unavailable", "error", err)
		os.Exit(1)
	}

	artifacts, err := objectstore.NewS3(ctx, cfg.S3)
	if err != nil {
		log.Error("object store unavailable", "error", err)
		os.Exit(1)
	}

	notifier, err := notify.NewSMTP(cfg.SMTP)
	if err != nil {
		log.Error("smtp client unavailable", "error", err)
		os.Exit(1)
	}

	var auditor audit.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		auditor, err = audit.NewKafka(cfg.Kafka, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("KAFKA_BROKERS not set, audit events stay in process memory")
		auditor = audit.NewInMemory()
	}
	defer auditor.Close()

	m := metrics.New()

	accountsSvc := accounts.NewService(accounts.NewPostgres(db), cfg.JWTSigningKey)
	institutions := onboarding.NewPostgresInstitutionStore(db)
	onboardingSvc := onboarding.NewService(onboarding.Config{
		Challenges:      challenges,
		Requests:        onboarding.NewPostgresRequestStore(db),
		Institutions:    institutions,
		Accounts:        accountsSvc,
		Ledger:          gateway,
		Notifier:        notifier,
		Auditor:         auditor,
		Metrics:         m,
		Logger:          log,
		OTPTTL:          cfg.OTPTTL,
		RegistrationTTL: cfg.RegistrationTTL,
		AdminEmail:      cfg.AdminEmail,
	})

	credentialStore := issuance.NewPostgresStore(db)
	issuanceSvc := issuance.NewService(issuance.Config{
		Store:             credentialStore,
		Artifacts:         artifacts,
		Stamper:           issuance.NewPDFStamper(),
		Ledger:            gateway,
		Institutions:      institutions,
		Auditor:           auditor,
		Metrics:           m,
		Logger:            log,
		VerifyBaseURL:     cfg.VerifyBaseURL,
		UploadConcurrency: cfg.UploadConcurrency,
	})
	verificationSvc := verification.NewService(gateway, credentialStore, institutions, m, log)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:      httptransport.NewAuthHandler(accountsSvc, onboardingSvc, log),
		Admin:     httptransport.NewAdminHandler(onboardingSvc, log),
		Documents: httptransport.NewDocumentsHandler(issuanceSvc, log),
		Verify:    httptransport.NewVerifyHandler(verificationSvc, log),
		Verifier:  middleware.NewHMACVerifier(cfg.JWTSigningKey),
		Logger:    log,
	})

	srv := httpserver.New(cfg.HTTP, router)
	go func() {
		log.Info("server listening", "addr", cfg.HTTP.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildLedger prefers the real chain and falls back to the in-memory gateway
// for local development without an RPC endpoint.
func buildLedger(ctx context.Context, cfg config.Config, log *slog.Logger) (ledger.Gateway, error) {
	if cfg.Ledger.RPCURL == "" {
		log.Warn("RPC_URL not set, anchoring against an in-memory ledger")
		return ledger.NewInMemory(), nil
	}
	return ledger.NewEthereum(ctx, cfg.Ledger, cfg.ConfirmationTimeout, cfg.LedgerMaxRetries, log)
}
