// Command createadmin seeds an administrator login. Run once per deployment:
//
//	createadmin -email admin@example.com -password 'change-me'
package main

import (
	"context"
	"flag"
	"os"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/platform/config"
	"github.com/laksac24/VeriFy/internal/platform/logger"
	"github.com/laksac24/VeriFy/internal/platform/postgres"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

func main() {
	email := flag.String("email", "", "admin email address")
	password := flag.String("password", "", "admin password")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New(cfg.Env)

	if *email == "" || *password == "" {
		log.Error("both -email and -password are required")
		os.Exit(2)
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc := accounts.NewService(accounts.NewPostgres(db), cfg.JWTSigningKey)
	account, err := svc.Create(ctx, *email, *password, accounts.RoleAdmin)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			log.Error("an admin with this email already exists", "email", *email)
		} else {
			log.Error("failed to create admin", "error", err)
		}
		os.Exit(1)
	}
	log.Info("admin account created", "id", account.ID, "email", account.Email)
}
