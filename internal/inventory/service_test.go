package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu      sync.Mutex
	stocks  map[string]ComponentStock
	entries []Transaction
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[string]ComponentStock)}
}

func stockKey(warehouseID, componentID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, componentID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetStockLevels(ctx context.Context, warehouseID int64) ([]ComponentStock, error) {
	var stocks []ComponentStock
	for _, stock := range r.stocks {
		if stock.WarehouseID == warehouseID {
			stocks = append(stocks, stock)
		}
	}
	return stocks, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	result := make([]Transaction, len(r.entries))
	copy(result, r.entries)
	return result, nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, warehouseID, componentID int64) (ComponentStock, error) {
	if stock, ok := tx.repo.stocks[stockKey(warehouseID, componentID)]; ok {
		return stock, nil
	}
	return ComponentStock{WarehouseID: warehouseID, ComponentID: componentID}, ErrStockNotFound
}

func (tx *memoryTx) UpsertStock(ctx context.Context, stock ComponentStock) error {
	tx.repo.stocks[stockKey(stock.WarehouseID, stock.ComponentID)] = stock
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, entry Transaction) (int64, error) {
	if entry.Quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

func TestPostAdjustmentCreatesStockAndLedgerRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	stock, err := svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: 40, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(40), stock.Quantity)
	require.Len(t, repo.entries, 1)
	require.Equal(t, TransactionAdjustment, repo.entries[0].Type)
	require.Equal(t, int64(40), repo.entries[0].Quantity)

	stock, err = svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: -15, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(25), stock.Quantity)
	require.Len(t, repo.entries, 2)
	require.Equal(t, int64(15), repo.entries[1].Quantity)
}

func TestPostAdjustmentNeverGoesNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: -1, ActorID: 9})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.entries)
	require.Empty(t, repo.stocks)

	var detail *InsufficientStockError
	require.ErrorAs(t, err, &detail)
	require.Equal(t, int64(5), detail.ComponentID)
	require.Equal(t, int64(1), detail.Needed)
	require.Equal(t, int64(0), detail.Available)
}

func TestPostAdjustmentRejectsZeroDelta(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestFailedAdjustmentLeavesStockUntouched(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: 10, ActorID: 9})
	require.NoError(t, err)

	_, err = svc.PostAdjustment(ctx, AdjustmentInput{WarehouseID: 1, ComponentID: 5, Delta: -11, ActorID: 9})
	require.ErrorIs(t, err, ErrInsufficientStock)

	stocks, err := svc.GetStockLevels(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	require.Equal(t, int64(10), stocks[0].Quantity)
	require.Len(t, repo.entries, 1)
}
