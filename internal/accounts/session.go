package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

var ErrNoSession = errors.New("session not found or expired")

// Sessions stores principals in redis under an opaque token.
type Sessions struct {
	Redis *redis.Client
	TTL   time.Duration
}

func (s *Sessions) Create(ctx context.Context, p Principal) (string, error) {
	token := uuid.NewString()
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.Redis.Set(ctx, fmt.Sprintf(redisx.KeySession, token), b, s.TTL).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *Sessions) Get(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrNoSession
	}
	b, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeySession, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Principal{}, ErrNoSession
	}
	if err != nil {
		return Principal{}, err
	}
	var p Principal
	if err := json.Unmarshal(b, &p); err != nil {
		return Principal{}, fmt.Errorf("decode session: %w", err)
	}
	return p, nil
}

func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeySession, token)).Err()
}
