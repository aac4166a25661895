package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const paymentColumns = `id, order_id, amount, currency, status, payment_method,
	gateway_reference, error_message, metadata, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, payment *domain.Payment) error {
	metadata := payment.Metadata
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.PaymentMethod,
		payment.GatewayReference,
		payment.ErrorMessage,
		metadata,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	return findByID(ctx, r.db, id, false)
}

func (r *repo) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	var items []domain.Payment
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE order_id = ?
		 ORDER BY created_at DESC, id DESC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Payment{}
	}
	return items, nil
}

func (r *repo) UpdateRefund(ctx context.Context, id snowflake.ID, update domain.RefundUpdate) (*domain.Payment, error) {
	var updated *domain.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := findByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status != domain.StatusCompleted {
			return domain.ErrInvalidState
		}

		metadata := mergeRefundMetadata(current.Metadata, update)
		res := tx.WithContext(ctx).Exec(
			`UPDATE payments
			 SET status = ?, metadata = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			domain.StatusRefunded,
			metadata,
			update.At,
			id,
			domain.StatusCompleted,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return domain.ErrInvalidState
		}

		current.Status = domain.StatusRefunded
		current.Metadata = metadata
		current.UpdatedAt = update.At
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		 FROM payments
		 WHERE id = ?`
	if forUpdate && supportsRowLocks(db) {
		query += `
		 FOR UPDATE`
	}

	var item domain.Payment
	err := db.WithContext(ctx).Raw(query, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return !strings.EqualFold(db.Dialector.Name(), "sqlite")
}

// mergeRefundMetadata adds the refund keys to a copy of existing, keeping
// every other key untouched.
func mergeRefundMetadata(existing datatypes.JSONMap, update domain.RefundUpdate) datatypes.JSONMap {
	merged := make(datatypes.JSONMap, len(existing)+3)
	for k, v := range existing {
		merged[k] = v
	}
	merged[domain.MetadataRefundReason] = update.Reason
	merged[domain.MetadataRefundAmount] = update.Amount.StringFixed(2)
	merged[domain.MetadataRefundedAt] = update.At.UTC().Format(time.RFC3339Nano)
	return merged
}
