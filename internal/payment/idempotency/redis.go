package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// NewRedisClient builds a client from cfg.RedisURL. An empty URL yields a nil
// client and the memory guard is used instead.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	raw := strings.TrimSpace(cfg.RedisURL)
	if raw == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisGuard stores idempotency records and in-flight locks in Redis.
type RedisGuard struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	if client == nil {
		return nil
	}
	return &RedisGuard{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (g *RedisGuard) Lookup(ctx context.Context, key string) (snowflake.ID, bool, error) {
	if key == "" {
		return 0, false, errors.New("idempotency key is empty")
	}
	value, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, false, fmt.Errorf("corrupt idempotency record %q", key)
	}
	return id, true, nil
}

func (g *RedisGuard) Record(ctx context.Context, key string, id snowflake.ID, ttl time.Duration) error {
	if key == "" {
		return errors.New("idempotency key is empty")
	}
	if ttl <= 0 {
		return errors.New("idempotency ttl must be positive")
	}
	return g.client.Set(ctx, key, id.String(), ttl).Err()
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, domain.LockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return g.script.Run(ctx, g.client, []string{domain.LockKey(key)}, token).Err()
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
