package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
)

const keyPaymentClient = "ratelimit:payments:"

// PaymentLimiter bounds payment submissions per client.
type PaymentLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

type PaymentLimiterParams struct {
	fx.In

	Cfg    config.Config
	Client *redis.Client `optional:"true"`
}

// NewPaymentLimiter returns nil when no rate is configured or Redis is absent.
func NewPaymentLimiter(p PaymentLimiterParams) *PaymentLimiter {
	limitCfg := p.Cfg.RateLimit
	if limitCfg.PaymentsPerSecond <= 0 || p.Client == nil {
		return nil
	}
	burst := limitCfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &PaymentLimiter{
		bucket: NewTokenBucket(p.Client),
		rate:   limitCfg.PaymentsPerSecond,
		burst:  burst,
	}
}

func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PaymentLimiter) Allow(ctx context.Context, clientKey string) (RateLimitResult, error) {
	if !l.Enabled() {
		return RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "anonymous"
	}
	return l.bucket.Allow(ctx, keyPaymentClient+clientKey, l.rate, l.burst)
}
