package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/laksac24/VeriFy/internal/platform/middleware"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

const tokenTTL = 24 * time.Hour

// Service handles login and account creation across all roles.
type Service struct {
	store      Store
	signingKey []byte
}

func NewService(store Store, signingKey string) *Service {
	return &Service{store: store, signingKey: []byte(signingKey)}
}

// Login verifies credentials for the given role and returns a signed token.
// Wrong email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string, role Role) (string, Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return "", Account{}, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	if !ValidRole(role) {
		return "", Account{}, dErrors.New(dErrors.CodeValidation, "invalid role")
	}

	account, err := s.store.FindByEmail(ctx, email, role)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", Account{}, dErrors.New(dErrors.CodeUnauthorized, "incorrect credentials")
	}
	if err != nil {
		return "", Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "look up account")
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", Account{}, dErrors.New(dErrors.CodeUnauthorized, "incorrect credentials")
	}

	now := requestcontext.Now(ctx)
	claims := middleware.Claims{
		Role: string(account.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return token, account, nil
}

// Create registers a new account with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, email, password string, role Role) (Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Account{}, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	if !ValidRole(role) {
		return Account{}, dErrors.New(dErrors.CodeValidation, "invalid role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}
	return s.CreateWithHash(ctx, email, string(hash), role)
}

// CreateIssuerAccount registers the login for an approved institution. The
// account deliberately shares the institution's ID so that tokens issued to
// it name the issuing institution as their subject.
func (s *Service) CreateIssuerAccount(ctx context.Context, institutionID, email, passwordHash string) (Account, error) {
	return s.createWithID(ctx, institutionID, email, passwordHash, RoleUniversity)
}

// CreateWithHash registers an account whose password is already hashed, as
// when an approved onboarding request carries the hash forward.
func (s *Service) CreateWithHash(ctx context.Context, email, passwordHash string, role Role) (Account, error) {
	return s.createWithID(ctx, uuid.NewString(), email, passwordHash, role)
}

func (s *Service) createWithID(ctx context.Context, id, email, passwordHash string, role Role) (Account, error) {
	now := requestcontext.Now(ctx)
	account := Account{
		ID:           id,
		Email:        strings.TrimSpace(strings.ToLower(email)),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Account{}, dErrors.New(dErrors.CodeConflict, "email already registered for this role")
		}
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "create account")
	}
	return account, nil
}
