package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	Amount   decimal.Decimal
	Currency string
	Method   Method
}

type ChargeResult struct {
	Success   bool
	Reference string
	Error     string
}

// Gateway settles a charge. A returned error means the attempt was aborted
// before an outcome was known; declines are reported through ChargeResult.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
