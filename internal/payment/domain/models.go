package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

type Method string

const (
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank_transfer"
	MethodWallet       Method = "wallet"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodWallet:
		return true
	default:
		return false
	}
}

const (
	MetadataRefundReason = "refund_reason"
	MetadataRefundAmount = "refund_amount"
	MetadataRefundedAt   = "refunded_at"
)

// Payment is the durable record of one settlement attempt.
type Payment struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderID          string            `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Amount           decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency         string            `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status           Status            `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod    Method            `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	GatewayReference *string           `gorm:"type:varchar(255)" json:"gateway_reference"`
	ErrorMessage     *string           `gorm:"type:text" json:"error_message"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Consistent reports whether status, gateway reference and error message agree.
func (p Payment) Consistent() bool {
	hasRef := p.GatewayReference != nil && *p.GatewayReference != ""
	hasErr := p.ErrorMessage != nil && *p.ErrorMessage != ""
	switch p.Status {
	case StatusCompleted, StatusRefunded:
		return hasRef && !hasErr
	case StatusFailed:
		return hasErr && !hasRef
	case StatusPending:
		return !hasRef && !hasErr
	default:
		return false
	}
}
