package metricsexport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pushTimeout = 10 * time.Second

// Exporter snapshots settlement totals from the payments table into its own
// registry and pushes them on an interval.
type Exporter struct {
	db       *gorm.DB
	pusher   Pusher
	log      *zap.Logger
	interval time.Duration

	registry *prometheus.Registry
	payments *prometheus.GaugeVec
	volume   *prometheus.GaugeVec
	pushes   *prometheus.CounterVec
}

func NewExporter(db *gorm.DB, pusher Pusher, log *zap.Logger, interval time.Duration) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	e := &Exporter{
		db:       db,
		pusher:   pusher,
		log:      log.Named("metrics.export"),
		interval: interval,
		registry: prometheus.NewRegistry(),
		payments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paycore_payments",
			Help: "Stored payments by status and currency.",
		}, []string{"status", "currency"}),
		volume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paycore_payment_volume",
			Help: "Sum of stored payment amounts by status and currency.",
		}, []string{"status", "currency"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paycore_metrics_pushes_total",
			Help: "Metrics push attempts by result.",
		}, []string{"result"}),
	}
	e.registry.MustRegister(e.payments, e.volume, e.pushes)
	return e
}

// Registry exposes the exporter's private registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

type settlementRow struct {
	Status   string          `gorm:"column:status"`
	Currency string          `gorm:"column:currency"`
	Count    int64           `gorm:"column:payment_count"`
	Total    decimal.Decimal `gorm:"column:total_amount"`
}

// Refresh replaces the gauges with the current per-status totals.
func (e *Exporter) Refresh(ctx context.Context) error {
	if e.db == nil {
		return errors.New("metrics export requires a database")
	}

	var rows []settlementRow
	err := e.db.WithContext(ctx).Raw(
		`SELECT status, currency, COUNT(*) AS payment_count, COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		GROUP BY status, currency`,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	e.payments.Reset()
	e.volume.Reset()
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		currency := strings.ToUpper(strings.TrimSpace(row.Currency))
		e.payments.WithLabelValues(status, currency).Set(float64(row.Count))
		e.volume.WithLabelValues(status, currency).Set(row.Total.InexactFloat64())
	}
	return nil
}

// PushOnce refreshes the snapshot and ships it.
func (e *Exporter) PushOnce(ctx context.Context) error {
	if err := e.Refresh(ctx); err != nil {
		e.pushes.WithLabelValues("refresh_error").Inc()
		return err
	}
	if e.pusher == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := e.pusher.Push(ctx, e.registry); err != nil {
		e.pushes.WithLabelValues("error").Inc()
		return err
	}
	e.pushes.WithLabelValues("ok").Inc()
	return nil
}

// Run pushes immediately and then on every tick until ctx ends.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	if err := e.PushOnce(ctx); err != nil {
		e.log.Warn("initial metrics push failed", zap.Error(err))
	}
	for {
		select {
		case <-ticker.C:
			if err := e.PushOnce(ctx); err != nil {
				e.log.Warn("periodic metrics push failed", zap.Error(err))
			}
		case <-ctx.Done():
			e.log.Info("stopping metrics export worker")
			return
		}
	}
}
