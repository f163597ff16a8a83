package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

const (
	otpKeyPrefix  = "onboarding:otp:"
	tempKeyPrefix = "onboarding:temp:"
)

// consumeScript deletes the challenge only when the supplied code matches, in
// one round trip, so a correct code can never be redeemed twice.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisChallengeStore keeps OTP codes and temp registrations in Redis, with
// expiry enforced by key TTLs. SET is the atomic last-write-wins upsert that
// resolves duplicate concurrent OTP requests for one email.
type RedisChallengeStore struct {
	client redis.UniversalClient
}

func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) PutChallenge(ctx context.Context, email, code string, ttl time.Duration) error {
	key := otpKeyPrefix + strings.ToLower(email)
	if err := s.client.Set(ctx, key, code, ttl).Err(); err != nil {
		return fmt.Errorf("put otp challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) ConsumeChallenge(ctx context.Context, email, code string) error {
	key := otpKeyPrefix + strings.ToLower(email)
	ok, err := consumeScript.Run(ctx, s.client, []string{key}, code).Int()
	if err != nil {
		return fmt.Errorf("consume otp challenge: %w", err)
	}
	if ok != 1 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisChallengeStore) PutTempRegistration(ctx context.Context, temp TempRegistration, ttl time.Duration) error {
	payload, err := json.Marshal(temp)
	if err != nil {
		return fmt.Errorf("marshal temp registration: %w", err)
	}
	key := tempKeyPrefix + strings.ToLower(temp.Email)
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("put temp registration: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) GetTempRegistration(ctx context.Context, email string) (TempRegistration, error) {
	key := tempKeyPrefix + strings.ToLower(email)
	payload, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// A vanished key means the registration window elapsed; Redis does
		// not distinguish "expired" from "never existed".
		return TempRegistration{}, sentinel.ErrExpired
	}
	if err != nil {
		return TempRegistration{}, fmt.Errorf("get temp registration: %w", err)
	}
	var temp TempRegistration
	if err := json.Unmarshal(payload, &temp); err != nil {
		return TempRegistration{}, fmt.Errorf("unmarshal temp registration: %w", err)
	}
	return temp, nil
}

func (s *RedisChallengeStore) DeleteTempRegistration(ctx context.Context, email string) error {
	key := tempKeyPrefix + strings.ToLower(email)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete temp registration: %w", err)
	}
	return nil
}
