package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultCurrency    = "USD"
	maxOrderIDLength   = 64
	maxReasonLength    = 500
	defaultRecordTTL   = 24 * time.Hour
	defaultInFlightTTL = 30 * time.Second
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	// DECIMAL(12,2)
	maxAmount = decimal.New(1, 10)
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Guard      domain.Guard
	Gateway    domain.Gateway
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	guard       domain.Guard
	gateway     domain.Gateway
	obsMetrics  *obsmetrics.Metrics
	tracer      trace.Tracer
	recordTTL   time.Duration
	inFlightTTL time.Duration
}

func New(p Params) domain.Service {
	recordTTL := p.Cfg.Payment.IdempotencyTTL
	if recordTTL <= 0 {
		recordTTL = defaultRecordTTL
	}
	inFlightTTL := p.Cfg.Payment.InFlightLockTTL
	if inFlightTTL <= 0 {
		inFlightTTL = defaultInFlightTTL
	}
	c := p.Clock
	if c == nil {
		c = clock.System()
	}

	return &Service{
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       c,
		repo:        p.Repo,
		guard:       p.Guard,
		gateway:     p.Gateway,
		obsMetrics:  p.ObsMetrics,
		tracer:      otel.Tracer("paycore/payment"),
		recordTTL:   recordTTL,
		inFlightTTL: inFlightTTL,
	}
}

func (s *Service) ProcessPayment(ctx context.Context, req domain.ProcessPaymentRequest) (payment domain.Payment, err error) {
	start := time.Now()
	defer func() {
		s.obsMetrics.RecordProcessingDuration(ctx, outcome(payment, err), time.Since(start))
	}()

	req, err = normalizePaymentRequest(req)
	if err != nil {
		return domain.Payment{}, err
	}

	key := domain.IdempotencyKey(req.OrderID)
	log := logger.WithContext(ctx, s.log).With(zap.String("order_id", req.OrderID))

	if existing, hit, err := s.replay(ctx, log, key); hit {
		return existing, err
	}

	token, acquired, err := s.guard.Acquire(ctx, key, s.inFlightTTL)
	switch {
	case err != nil:
		log.Warn("idempotency lock unavailable, continuing unlocked", zap.Error(err))
		s.obsMetrics.RecordGuardError(ctx, "lock")
	case !acquired:
		if existing, hit, err := s.replay(ctx, log, key); hit {
			return existing, err
		}
		return domain.Payment{}, domain.ErrPaymentInProgress
	default:
		defer s.release(ctx, log, key, token)
		// a concurrent holder may have finished between lookup and acquire
		if existing, hit, err := s.replay(ctx, log, key); hit {
			return existing, err
		}
	}

	result, err := s.charge(ctx, req)
	if err != nil {
		log.Warn("gateway charge aborted", zap.Error(err))
		return domain.Payment{}, fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}

	payment = s.newPayment(req, result)

	// The charge is settled; record it even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.repo.Insert(persistCtx, &payment); err != nil {
		log.Error("failed to persist settled payment",
			zap.Bool("gateway_success", result.Success),
			zap.String("gateway_reference", result.Reference),
			zap.Error(err),
		)
		return domain.Payment{}, &domain.StoreError{Op: "insert", Err: err}
	}

	if err := s.guard.Record(persistCtx, key, payment.ID, s.recordTTL); err != nil {
		log.Warn("failed to record idempotency key",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		s.obsMetrics.RecordGuardError(ctx, "record")
	}

	s.obsMetrics.RecordPaymentAttempt(ctx, string(payment.Status), string(payment.PaymentMethod))

	if payment.Status == domain.StatusFailed {
		log.Info("payment declined",
			zap.String("payment_id", payment.ID.String()),
			zap.String("reason", result.Error),
		)
		return domain.Payment{}, declined(payment)
	}

	s.obsMetrics.RecordPaymentAmount(ctx, payment.Currency, payment.Amount.InexactFloat64())
	log.Info("payment completed",
		zap.String("payment_id", payment.ID.String()),
		zap.String("gateway_reference", result.Reference),
	)
	return payment, nil
}

func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.Payment, error) {
	id, err := parseID(req.PaymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || len(reason) > maxReasonLength {
		return domain.Payment{}, domain.ErrInvalidReason
	}
	if req.Amount != nil && !validAmount(*req.Amount) {
		return domain.Payment{}, domain.ErrInvalidRefundAmount
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Payment{}, &domain.StoreError{Op: "find", Err: err}
	}
	if current == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	if current.Status != domain.StatusCompleted {
		return domain.Payment{}, domain.ErrInvalidState
	}

	amount := current.Amount
	if req.Amount != nil {
		if req.Amount.GreaterThan(current.Amount) {
			return domain.Payment{}, domain.ErrInvalidRefundAmount
		}
		amount = *req.Amount
	}

	updated, err := s.repo.UpdateRefund(ctx, id, domain.RefundUpdate{
		Amount: amount,
		Reason: reason,
		At:     s.clock.Now().UTC(),
	})
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState):
		return domain.Payment{}, err
	case err != nil:
		return domain.Payment{}, &domain.StoreError{Op: "refund", Err: err}
	}

	s.obsMetrics.RecordRefund(ctx)
	logger.WithContext(ctx, s.log).Info("payment refunded",
		zap.String("payment_id", id.String()),
		zap.String("order_id", updated.OrderID),
		zap.String("refund_amount", amount.StringFixed(2)),
	)
	return *updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Payment, error) {
	paymentID, err := parseID(id)
	if err != nil {
		return domain.Payment{}, err
	}
	item, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, &domain.StoreError{Op: "find", Err: err}
	}
	if item == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" || len(orderID) > maxOrderIDLength {
		return nil, domain.ErrInvalidOrderID
	}
	items, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	return items, nil
}

// replay returns the payment a previous request produced for key. hit is
// false when the guard has no usable entry; guard failures count as a miss.
func (s *Service) replay(ctx context.Context, log *zap.Logger, key string) (domain.Payment, bool, error) {
	id, ok, err := s.guard.Lookup(ctx, key)
	if err != nil {
		log.Warn("idempotency lookup failed, treating as miss", zap.Error(err))
		s.obsMetrics.RecordGuardError(ctx, "lookup")
		return domain.Payment{}, false, nil
	}
	if !ok {
		return domain.Payment{}, false, nil
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Payment{}, true, &domain.StoreError{Op: "find", Err: err}
	}
	if existing == nil {
		log.Warn("idempotency record points at missing payment", zap.String("payment_id", id.String()))
		return domain.Payment{}, false, nil
	}

	s.obsMetrics.RecordIdempotentReplay(ctx)
	log.Debug("idempotent replay", zap.String("payment_id", id.String()))
	if existing.Status == domain.StatusFailed {
		return domain.Payment{}, true, declined(*existing)
	}
	return *existing, true, nil
}

func (s *Service) charge(ctx context.Context, req domain.ProcessPaymentRequest) (domain.ChargeResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.gateway.charge", trace.WithAttributes(
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	result, err := s.gateway.Charge(ctx, domain.ChargeRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Method:   req.PaymentMethod,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway aborted")
		return domain.ChargeResult{}, err
	}
	span.SetAttributes(attribute.Bool("payment.success", result.Success))
	return result, nil
}

func (s *Service) release(ctx context.Context, log *zap.Logger, key, token string) {
	if err := s.guard.Release(context.WithoutCancel(ctx), key, token); err != nil {
		log.Warn("failed to release idempotency lock", zap.Error(err))
		s.obsMetrics.RecordGuardError(ctx, "release")
	}
}

func (s *Service) newPayment(req domain.ProcessPaymentRequest, result domain.ChargeResult) domain.Payment {
	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:            s.genID.Generate(),
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if result.Success {
		ref := result.Reference
		payment.Status = domain.StatusCompleted
		payment.GatewayReference = &ref
	} else {
		reason := result.Error
		if reason == "" {
			reason = "Payment declined"
		}
		payment.Status = domain.StatusFailed
		payment.ErrorMessage = &reason
	}
	return payment
}

func normalizePaymentRequest(req domain.ProcessPaymentRequest) (domain.ProcessPaymentRequest, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" || len(req.OrderID) > maxOrderIDLength {
		return req, domain.ErrInvalidOrderID
	}
	if !validAmount(req.Amount) {
		return req, domain.ErrInvalidAmount
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if !currencyPattern.MatchString(req.Currency) {
		return req, domain.ErrInvalidCurrency
	}
	req.PaymentMethod = domain.Method(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if !req.PaymentMethod.Valid() {
		return req, domain.ErrInvalidPaymentMethod
	}
	return req, nil
}

func validAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() || amount.GreaterThanOrEqual(maxAmount) {
		return false
	}
	return amount.Equal(amount.Truncate(2))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func declined(payment domain.Payment) *domain.DeclinedError {
	reason := ""
	if payment.ErrorMessage != nil {
		reason = *payment.ErrorMessage
	}
	return &domain.DeclinedError{PaymentID: payment.ID, Reason: reason, Payment: payment}
}

func outcome(payment domain.Payment, err error) string {
	switch {
	case err == nil:
		return string(payment.Status)
	case errors.Is(err, domain.ErrPaymentDeclined):
		return string(domain.StatusFailed)
	default:
		return "error"
	}
}
