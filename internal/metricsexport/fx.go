package metricsexport

import (
	"context"

	"github.com/smallbiznis/paycore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.export",
	fx.Provide(NewPusher),
	fx.Provide(provideExporter),
	fx.Invoke(startExporter),
)

func provideExporter(cfg config.Config, db *gorm.DB, pusher Pusher, log *zap.Logger) *Exporter {
	if pusher == nil {
		return nil
	}
	return NewExporter(db, pusher, log, cfg.MetricsExport.Interval)
}

func startExporter(lc fx.Lifecycle, e *Exporter, log *zap.Logger) {
	if e == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics export worker")
			go func() {
				defer close(done)
				e.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
