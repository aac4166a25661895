package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/paycore/internal/clock"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryGuard keeps records and locks in process memory. Expired entries are
// dropped lazily on access.
type MemoryGuard struct {
	clock   clock.Clock
	mu      sync.Mutex
	records map[string]memoryEntry
	locks   map[string]memoryEntry
}

func NewMemoryGuard(c clock.Clock) *MemoryGuard {
	if c == nil {
		c = clock.System()
	}
	return &MemoryGuard{
		clock:   c,
		records: make(map[string]memoryEntry),
		locks:   make(map[string]memoryEntry),
	}
}

func (g *MemoryGuard) Lookup(ctx context.Context, key string) (snowflake.ID, bool, error) {
	if key == "" {
		return 0, false, errors.New("idempotency key is empty")
	}
	value, ok := g.get(key)
	if !ok {
		return 0, false, nil
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return 0, false, fmt.Errorf("corrupt idempotency record %q", key)
	}
	return id, true, nil
}

func (g *MemoryGuard) Record(ctx context.Context, key string, id snowflake.ID, ttl time.Duration) error {
	if key == "" {
		return errors.New("idempotency key is empty")
	}
	if ttl <= 0 {
		return errors.New("idempotency ttl must be positive")
	}
	g.mu.Lock()
	g.records[key] = memoryEntry{value: id.String(), expiresAt: g.clock.Now().Add(ttl)}
	g.mu.Unlock()
	return nil
}

func (g *MemoryGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.locks[key]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	g.locks[key] = memoryEntry{value: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if entry, ok := g.locks[key]; ok && entry.value == token {
		delete(g.locks, key)
	}
	return nil
}

func (g *MemoryGuard) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (g *MemoryGuard) get(key string) (string, bool) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.records[key]
	if !ok {
		return "", false
	}
	if !now.Before(entry.expiresAt) {
		delete(g.records, key)
		return "", false
	}
	return entry.value, true
}
