package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RefundUpdate struct {
	Amount decimal.Decimal
	Reason string
	At     time.Time
}

type Repository interface {
	Insert(ctx context.Context, payment *Payment) error
	// FindByID returns nil, nil when the payment does not exist.
	FindByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	// ListByOrder returns payments newest first.
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	// UpdateRefund moves a completed payment to refunded and merges the
	// refund details into its metadata. Returns ErrNotFound or ErrInvalidState
	// without mutating anything when the transition is not allowed.
	UpdateRefund(ctx context.Context, id snowflake.ID, update RefundUpdate) (*Payment, error)
	Ping(ctx context.Context) error
}
