package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type ProcessPaymentRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod Method
}

type RefundRequest struct {
	PaymentID string
	Reason    string
	// Amount defaults to the full payment amount when nil.
	Amount *decimal.Decimal
}

type Service interface {
	ProcessPayment(context.Context, ProcessPaymentRequest) (Payment, error)
	Refund(context.Context, RefundRequest) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
}

var (
	ErrInvalidOrderID       = errors.New("invalid_order_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidReason        = errors.New("invalid_reason")
	ErrInvalidRefundAmount  = errors.New("invalid_refund_amount")
	ErrNotFound             = errors.New("not_found")
	ErrInvalidState         = errors.New("invalid_state")
	ErrPaymentDeclined      = errors.New("payment_declined")
	ErrPaymentInProgress    = errors.New("payment_in_progress")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
	ErrStore                = errors.New("store_unavailable")
)

// IsValidation reports whether err rejects the request shape.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidOrderID),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrInvalidRefundAmount):
		return true
	default:
		return false
	}
}
