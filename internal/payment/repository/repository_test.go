package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&domain.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type repoFactory struct {
	name string
	new  func(t *testing.T) domain.Repository
}

func implementations() []repoFactory {
	return []repoFactory{
		{name: "gorm", new: func(t *testing.T) domain.Repository { return repository.New(setupTestDB(t)) }},
		{name: "memory", new: func(t *testing.T) domain.Repository { return repository.NewMemory() }},
	}
}

var node = mustNode()

func mustNode() *snowflake.Node {
	n, err := snowflake.NewNode(7)
	if err != nil {
		panic(err)
	}
	return n
}

func newPayment(orderID string, amount string, status domain.Status, createdAt time.Time) *domain.Payment {
	p := &domain.Payment{
		ID:            node.Generate(),
		OrderID:       orderID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "USD",
		Status:        status,
		PaymentMethod: domain.MethodCard,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	switch status {
	case domain.StatusCompleted:
		ref := "GW-ABCDEF0123456789"
		p.GatewayReference = &ref
	case domain.StatusFailed:
		msg := "Card declined: Insufficient funds"
		p.ErrorMessage = &msg
	}
	return p
}

func TestInsertAndFindByID(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			repo := impl.new(t)
			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			payment := newPayment("ORD-1", "50.00", domain.StatusCompleted, now)
			require.NoError(t, repo.Insert(ctx, payment))

			got, err := repo.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, payment.ID, got.ID)
			assert.Equal(t, "ORD-1", got.OrderID)
			assert.True(t, decimal.RequireFromString("50").Equal(got.Amount), got.Amount.String())
			assert.Equal(t, domain.StatusCompleted, got.Status)
			assert.Equal(t, domain.MethodCard, got.PaymentMethod)
			require.NotNil(t, got.GatewayReference)
			assert.Nil(t, got.ErrorMessage)
			assert.True(t, got.Consistent())
			assert.True(t, now.Equal(got.CreatedAt))

			missing, err := repo.FindByID(ctx, node.Generate())
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestListByOrderNewestFirst(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			repo := impl.new(t)
			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			first := newPayment("ORD-2", "10.00", domain.StatusFailed, base)
			second := newPayment("ORD-2", "10.00", domain.StatusCompleted, base.Add(time.Minute))
			other := newPayment("ORD-3", "10.00", domain.StatusCompleted, base.Add(2*time.Minute))
			for _, p := range []*domain.Payment{first, second, other} {
				require.NoError(t, repo.Insert(ctx, p))
			}

			items, err := repo.ListByOrder(ctx, "ORD-2")
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, second.ID, items[0].ID)
			assert.Equal(t, first.ID, items[1].ID)

			empty, err := repo.ListByOrder(ctx, "ORD-404")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)
		})
	}
}

func TestUpdateRefundMergesMetadata(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			repo := impl.new(t)
			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			refundedAt := created.Add(time.Hour)

			payment := newPayment("ORD-4", "100.00", domain.StatusCompleted, created)
			payment.Metadata = datatypes.JSONMap{"channel": "web"}
			require.NoError(t, repo.Insert(ctx, payment))

			updated, err := repo.UpdateRefund(ctx, payment.ID, domain.RefundUpdate{
				Amount: decimal.RequireFromString("40"),
				Reason: "customer request",
				At:     refundedAt,
			})
			require.NoError(t, err)
			assert.Equal(t, domain.StatusRefunded, updated.Status)
			assert.Equal(t, "40.00", updated.Metadata[domain.MetadataRefundAmount])
			assert.Equal(t, "customer request", updated.Metadata[domain.MetadataRefundReason])
			assert.Equal(t, "web", updated.Metadata["channel"])
			assert.True(t, refundedAt.Equal(updated.UpdatedAt))

			stored, err := repo.FindByID(ctx, payment.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusRefunded, stored.Status)
			assert.Equal(t, "40.00", stored.Metadata[domain.MetadataRefundAmount])
			assert.Equal(t, "web", stored.Metadata["channel"])
			assert.True(t, decimal.RequireFromString("100").Equal(stored.Amount))
			assert.True(t, stored.Consistent())
		})
	}
}

func TestUpdateRefundRejectsNonCompleted(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			repo := impl.new(t)
			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			failed := newPayment("ORD-5", "666.00", domain.StatusFailed, created)
			require.NoError(t, repo.Insert(ctx, failed))

			_, err := repo.UpdateRefund(ctx, failed.ID, domain.RefundUpdate{
				Amount: decimal.RequireFromString("1"),
				Reason: "nope",
				At:     created.Add(time.Hour),
			})
			assert.ErrorIs(t, err, domain.ErrInvalidState)

			stored, err := repo.FindByID(ctx, failed.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusFailed, stored.Status)
			assert.Empty(t, stored.Metadata)
			assert.True(t, created.Equal(stored.UpdatedAt))

			_, err = repo.UpdateRefund(ctx, node.Generate(), domain.RefundUpdate{Reason: "x", At: created})
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestUpdateRefundOnlyOnceUnderContention(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			ctx := context.Background()
			repo := impl.new(t)
			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			payment := newPayment("ORD-6", "20.00", domain.StatusCompleted, created)
			require.NoError(t, repo.Insert(ctx, payment))

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				invalid   int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := repo.UpdateRefund(ctx, payment.ID, domain.RefundUpdate{
						Amount: decimal.RequireFromString("20"),
						Reason: fmt.Sprintf("attempt %d", i),
						At:     created.Add(time.Duration(i+1) * time.Second),
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, domain.ErrInvalidState):
						invalid++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, 7, invalid)
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	payment := newPayment("ORD-7", "5.00", domain.StatusCompleted, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, payment))

	got, err := repo.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	got.Metadata["tampered"] = true
	*got.GatewayReference = "GW-CHANGED"

	again, err := repo.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.NotContains(t, again.Metadata, "tampered")
	assert.Equal(t, "GW-ABCDEF0123456789", *again.GatewayReference)

	assert.Error(t, repo.Insert(ctx, payment))
}

func TestPing(t *testing.T) {
	for _, impl := range implementations() {
		t.Run(impl.name, func(t *testing.T) {
			assert.NoError(t, impl.new(t).Ping(context.Background()))
		})
	}
}
