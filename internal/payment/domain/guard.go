package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	IdempotencyKeyPrefix = "payment:"
	LockKeyPrefix        = "lock:"
)

func IdempotencyKey(orderID string) string {
	return IdempotencyKeyPrefix + orderID
}

// LockKey is the in-flight lock slot for an idempotency key. Lock keys never
// start with IdempotencyKeyPrefix, so no order id can address another
// order's lock.
func LockKey(key string) string {
	return LockKeyPrefix + key
}

// Guard maps an idempotency key to the payment it produced. Entries are
// advisory; the Repository stays the source of truth.
type Guard interface {
	Lookup(ctx context.Context, key string) (snowflake.ID, bool, error)
	Record(ctx context.Context, key string, id snowflake.ID, ttl time.Duration) error
	// Acquire takes the in-flight lock for key. ok is false when another
	// holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
	Ping(ctx context.Context) error
}
