//go:build integration

package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/laksac24/VeriFy/internal/platform/postgres"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
	"github.com/laksac24/VeriFy/pkg/testutil/containers"
)

// =============================================================================
// Onboarding Store Integration Suite
// =============================================================================
// Runs the Postgres and Redis store implementations against real containers
// to pin the behaviors the unit doubles only imitate: unique violations,
// RowsAffected race arbitration, key TTLs and the atomic OTP consume.

type OnboardingStoreIntegrationSuite struct {
	suite.Suite
	pg         *containers.PostgresContainer
	rd         *containers.RedisContainer
	requests   *PostgresRequestStore
	challenges *RedisChallengeStore
}

func TestOnboardingStoreIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(OnboardingStoreIntegrationSuite))
}

func (s *OnboardingStoreIntegrationSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.pg.DB))
	s.rd = containers.NewRedisContainer(s.T())
}

func (s *OnboardingStoreIntegrationSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pg.DB.ExecContext(ctx, "TRUNCATE pending_requests, credentials, institutions, accounts CASCADE")
	s.Require().NoError(err)
	s.Require().NoError(s.rd.FlushAll(ctx))

	s.requests = NewPostgresRequestStore(s.pg.DB)
	s.challenges = NewRedisChallengeStore(s.rd.Client)
}

func pendingFixture(email string) PendingRequest {
	return PendingRequest{
		ID:                uuid.NewString(),
		Name:              "Integration University",
		AccreditationCode: "IU-" + uuid.NewString()[:8],
		Email:             email,
		LedgerIdentity:    "0x" + uuid.NewString()[:8],
		LetterRef:         "letters/iu.pdf",
		PasswordHash:      "$2a$10$fixturefixturefixturefixturefix",
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *OnboardingStoreIntegrationSuite) TestRequestStore() {
	ctx := context.Background()

	s.Run("round trips a request", func() {
		req := pendingFixture("roundtrip@iu.edu")
		s.Require().NoError(s.requests.Create(ctx, req))

		got, err := s.requests.Get(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(req.Email, got.Email)
		s.Equal(req.PasswordHash, got.PasswordHash)
	})

	s.Run("duplicate email hits the unique index", func() {
		req := pendingFixture("dup@iu.edu")
		s.Require().NoError(s.requests.Create(ctx, req))

		again := pendingFixture("dup@iu.edu")
		s.ErrorIs(s.requests.Create(ctx, again), sentinel.ErrConflict)
	})

	s.Run("second delete loses the race", func() {
		req := pendingFixture("race@iu.edu")
		s.Require().NoError(s.requests.Create(ctx, req))

		s.Require().NoError(s.requests.Delete(ctx, req.ID))
		s.ErrorIs(s.requests.Delete(ctx, req.ID), sentinel.ErrNotFound)
	})

	s.Run("list filters by name and counts the full match set", func() {
		for _, email := range []string{"l1@iu.edu", "l2@iu.edu"} {
			s.Require().NoError(s.requests.Create(ctx, pendingFixture(email)))
		}
		page, total, err := s.requests.List(ctx, 1, 1, "integration")
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Len(page, 1)

		_, total, err = s.requests.List(ctx, 1, 10, "no-such-name")
		s.Require().NoError(err)
		s.Zero(total)
	})
}

func (s *OnboardingStoreIntegrationSuite) TestChallengeStore() {
	ctx := context.Background()

	s.Run("otp consumes exactly once", func() {
		s.Require().NoError(s.challenges.PutChallenge(ctx, "once@iu.edu", "123456", time.Minute))

		s.NoError(s.challenges.ConsumeChallenge(ctx, "once@iu.edu", "123456"))
		s.ErrorIs(s.challenges.ConsumeChallenge(ctx, "once@iu.edu", "123456"), sentinel.ErrNotFound)
	})

	s.Run("wrong code leaves the challenge intact", func() {
		s.Require().NoError(s.challenges.PutChallenge(ctx, "wrong@iu.edu", "123456", time.Minute))

		s.ErrorIs(s.challenges.ConsumeChallenge(ctx, "wrong@iu.edu", "654321"), sentinel.ErrNotFound)
		s.NoError(s.challenges.ConsumeChallenge(ctx, "wrong@iu.edu", "123456"))
	})

	s.Run("otp expires by key ttl", func() {
		s.Require().NoError(s.challenges.PutChallenge(ctx, "ttl@iu.edu", "123456", 500*time.Millisecond))
		time.Sleep(time.Second)
		s.ErrorIs(s.challenges.ConsumeChallenge(ctx, "ttl@iu.edu", "123456"), sentinel.ErrNotFound)
	})

	s.Run("temp registration round trips and expires", func() {
		temp := TempRegistration{
			Profile: Profile{
				Name: "Integration University", AccreditationCode: "IU-T",
				Email: "temp@iu.edu", LedgerIdentity: "0xtemp",
				LetterRef: "letters/t.pdf", Password: "correct-horse-battery",
			},
			CreatedAt: time.Now().UTC(),
		}
		s.Require().NoError(s.challenges.PutTempRegistration(ctx, temp, time.Minute))

		got, err := s.challenges.GetTempRegistration(ctx, "temp@iu.edu")
		s.Require().NoError(err)
		s.Equal(temp.Password, got.Password, "plaintext survives the snapshot round trip")

		s.Require().NoError(s.challenges.PutTempRegistration(ctx, temp, 500*time.Millisecond))
		time.Sleep(time.Second)
		_, err = s.challenges.GetTempRegistration(ctx, "temp@iu.edu")
		s.ErrorIs(err, sentinel.ErrExpired)
	})
}
