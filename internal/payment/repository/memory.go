package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"gorm.io/datatypes"
)

// Memory is an in-process Repository. Records are copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	payments map[snowflake.ID]domain.Payment
}

func NewMemory() *Memory {
	return &Memory{payments: map[snowflake.ID]domain.Payment{}}
}

func (m *Memory) Insert(ctx context.Context, payment *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[payment.ID]; exists {
		return domain.ErrStore
	}
	m.payments[payment.ID] = clonePayment(*payment)
	return nil
}

func (m *Memory) FindByID(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	out := clonePayment(item)
	return &out, nil
}

func (m *Memory) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	m.mu.RLock()
	items := make([]domain.Payment, 0)
	for _, item := range m.payments {
		if item.OrderID == orderID {
			items = append(items, clonePayment(item))
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (m *Memory) UpdateRefund(ctx context.Context, id snowflake.ID, update domain.RefundUpdate) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if item.Status != domain.StatusCompleted {
		return nil, domain.ErrInvalidState
	}

	item.Status = domain.StatusRefunded
	item.Metadata = mergeRefundMetadata(item.Metadata, update)
	item.UpdatedAt = update.At
	m.payments[id] = item

	out := clonePayment(item)
	return &out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func clonePayment(p domain.Payment) domain.Payment {
	if p.GatewayReference != nil {
		ref := *p.GatewayReference
		p.GatewayReference = &ref
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		p.ErrorMessage = &msg
	}
	metadata := make(datatypes.JSONMap, len(p.Metadata))
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	p.Metadata = metadata
	return p
}
