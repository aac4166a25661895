package idempotency

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.uber.org/zap"
)

const startupPingTimeout = 2 * time.Second

// NewGuard returns a RedisGuard when client answers a ping, and a MemoryGuard
// otherwise. The choice is made once at startup.
func NewGuard(ctx context.Context, client *redis.Client, c clock.Clock, log *zap.Logger) domain.Guard {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		log.Warn("REDIS_URL not set, idempotency records are kept in process memory")
		return NewMemoryGuard(c)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, idempotency records are kept in process memory",
			zap.String("addr", client.Options().Addr),
			zap.Error(err),
		)
		return NewMemoryGuard(c)
	}
	return NewRedisGuard(client)
}
