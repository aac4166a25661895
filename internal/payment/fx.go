package payment

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/gateway"
	"github.com/smallbiznis/paycore/internal/payment/idempotency"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/smallbiznis/paycore/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.New),
	fx.Provide(provideRedisClient),
	fx.Provide(provideGuard),
	fx.Provide(provideGateway),
	fx.Provide(service.New),
)

func provideRedisClient(lc fx.Lifecycle, cfg config.Config) (*redis.Client, error) {
	client, err := idempotency.NewRedisClient(cfg)
	if err != nil || client == nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

type guardParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Clock  clock.Clock
	Log    *zap.Logger
}

func provideGuard(p guardParams) domain.Guard {
	return idempotency.NewGuard(context.Background(), p.Client, p.Clock, p.Log)
}

type gatewayParams struct {
	fx.In

	Config     *config.GatewayConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func provideGateway(p gatewayParams) domain.Gateway {
	return gateway.NewSimulator(p.Config,
		gateway.WithLatencyObserver(p.ObsMetrics.RecordGatewayLatency),
		gateway.WithInFlightObserver(p.ObsMetrics.AddActivePayments),
	)
}
