package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewPaymentLimiterDisabled(t *testing.T) {
	client, _ := newClient(t)

	assert.Nil(t, NewPaymentLimiter(PaymentLimiterParams{Cfg: config.Config{}, Client: client}))
	assert.Nil(t, NewPaymentLimiter(PaymentLimiterParams{
		Cfg: config.Config{RateLimit: config.RateLimitConfig{PaymentsPerSecond: 1, Burst: 1}},
	}))

	var limiter *PaymentLimiter
	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPaymentLimiterExhaustsBurst(t *testing.T) {
	client, mr := newClient(t)
	limiter := NewPaymentLimiter(PaymentLimiterParams{
		Cfg:    config.Config{RateLimit: config.RateLimitConfig{PaymentsPerSecond: 0.001, Burst: 2}},
		Client: client,
	})
	require.True(t, limiter.Enabled())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2, res.Limit)
	}

	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Positive(t, res.RetryAfter)

	// buckets are per client
	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.True(t, mr.Exists(keyPaymentClient+"10.0.0.1"))
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	client, _ := newClient(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	require.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	require.Error(t, err)

	var unset *TokenBucket
	_, err = unset.Allow(context.Background(), "k", 1, 1)
	require.Error(t, err)
}

func TestTokenBucketUnavailable(t *testing.T) {
	client, mr := newClient(t)
	bucket := NewTokenBucket(client)
	mr.Close()

	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	require.Error(t, err)
}
