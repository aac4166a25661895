package gateway

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

const (
	ReasonInsufficientFunds = "Card declined: Insufficient funds"
	ReasonTimeout           = "Gateway timeout"
	ReferencePrefix         = "GW-"
)

var declineAmount = decimal.RequireFromString("666.00")

// ConfigSource supplies the current simulation parameters.
type ConfigSource interface {
	Get() config.GatewayConfig
}

// LatencyObserver receives the simulated round trip of every charge.
type LatencyObserver func(ctx context.Context, latency time.Duration)

// InFlightObserver is called with +1 when a charge starts and -1 when it ends.
type InFlightObserver func(ctx context.Context, delta int64)

type Option func(*Simulator)

// WithRand replaces the random source used for latency and failure rolls.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

func WithLatencyObserver(fn LatencyObserver) Option {
	return func(s *Simulator) { s.onLatency = fn }
}

func WithInFlightObserver(fn InFlightObserver) Option {
	return func(s *Simulator) { s.onInFlight = fn }
}

// WithReferenceGenerator overrides gateway reference generation.
func WithReferenceGenerator(fn func() string) Option {
	return func(s *Simulator) { s.newReference = fn }
}

// Simulator is a domain.Gateway that models an external settlement network.
type Simulator struct {
	cfg          ConfigSource
	mu           sync.Mutex
	rng          *rand.Rand
	onLatency    LatencyObserver
	onInFlight   InFlightObserver
	newReference func() string
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewSimulator(cfg ConfigSource, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		newReference: NewReference,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) Charge(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	cfg := s.config()
	latency, roll := s.draw(cfg)

	if s.onInFlight != nil {
		s.onInFlight(ctx, 1)
		defer s.onInFlight(ctx, -1)
	}

	start := time.Now()
	err := s.sleep(ctx, latency)
	if s.onLatency != nil {
		s.onLatency(ctx, time.Since(start))
	}
	if err != nil {
		return domain.ChargeResult{}, err
	}

	if req.Amount.Equal(declineAmount) {
		return domain.ChargeResult{Success: false, Error: ReasonInsufficientFunds}, nil
	}
	if roll < cfg.FailureRate {
		return domain.ChargeResult{Success: false, Error: ReasonTimeout}, nil
	}
	return domain.ChargeResult{Success: true, Reference: s.newReference()}, nil
}

// NewReference returns GW- followed by the upper-case hex of a random UUID.
func NewReference() string {
	id := uuid.New()
	return ReferencePrefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

func (s *Simulator) config() config.GatewayConfig {
	if s.cfg == nil {
		return config.DefaultGatewayConfig()
	}
	return s.cfg.Get()
}

func (s *Simulator) draw(cfg config.GatewayConfig) (time.Duration, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := cfg.MinLatency
	if spread := cfg.MaxLatency - cfg.MinLatency; spread > 0 {
		latency += time.Duration(s.rng.Int63n(int64(spread) + 1))
	}
	return latency, s.rng.Float64()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
