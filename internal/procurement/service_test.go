package procurement

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type stockKey struct {
	warehouseID int64
	componentID int64
}

type memoryRepo struct {
	mu     sync.Mutex
	orders map[int64]PurchaseOrder
	stock  map[stockKey]int64
	ledger []inventory.Transaction
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]PurchaseOrder), stock: make(map[stockKey]int64)}
}

type memoryTx struct {
	repo   *memoryRepo
	orders map[int64]PurchaseOrder
	stock  map[stockKey]int64
	ledger []inventory.Transaction
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:   r,
		orders: make(map[int64]PurchaseOrder, len(r.orders)),
		stock:  make(map[stockKey]int64, len(r.stock)),
	}
	for id, order := range r.orders {
		order.Lines = append([]Line(nil), order.Lines...)
		tx.orders[id] = order
	}
	for key, qty := range r.stock {
		tx.stock[key] = qty
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.orders = tx.orders
	r.stock = tx.stock
	r.ledger = append(r.ledger, tx.ledger...)
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (r *memoryRepo) List(ctx context.Context, status Status, page, limit int) ([]PurchaseOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for _, order := range r.orders {
		if status == "" || order.Status == status {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	order, ok := t.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (t *memoryTx) Insert(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error) {
	t.repo.nextID++
	order.ID = t.repo.nextID
	order.CreatedAt = time.Now()
	t.orders[order.ID] = order
	return order, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, from, to Status) error {
	order, ok := t.orders[id]
	if !ok || order.Status != from {
		return shared.ErrNotFound
	}
	order.Status = to
	t.orders[id] = order
	return nil
}

func (t *memoryTx) SetApproved(ctx context.Context, id, approverID int64) error {
	order, ok := t.orders[id]
	if !ok || order.Status != StatusSubmitted {
		return shared.ErrNotFound
	}
	order.Status = StatusApproved
	order.ApproverID = &approverID
	t.orders[id] = order
	return nil
}

func (t *memoryTx) SetReceived(ctx context.Context, id int64, at time.Time) error {
	order, ok := t.orders[id]
	if !ok || order.Status != StatusApproved {
		return shared.ErrNotFound
	}
	order.Status = StatusReceived
	order.ReceivedAt = &at
	t.orders[id] = order
	return nil
}

func (t *memoryTx) CreditStock(ctx context.Context, warehouseID, componentID, qty int64) (inventory.ComponentStock, error) {
	key := stockKey{warehouseID, componentID}
	t.stock[key] += qty
	return inventory.ComponentStock{WarehouseID: warehouseID, ComponentID: componentID, Quantity: t.stock[key]}, nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	t.ledger = append(t.ledger, entry)
	return int64(len(t.ledger)), nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil, nil)
}

func draftOrder(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		SupplierID:  2,
		WarehouseID: 1,
		ActorID:     3,
		Lines: []LineInput{
			{ComponentID: 7, Quantity: 50, UnitPrice: decimal.RequireFromString("1.25")},
			{ComponentID: 8, Quantity: 20, UnitPrice: decimal.NewFromInt(4)},
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateRequiresLines(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Create(context.Background(), CreateInput{SupplierID: 2, WarehouseID: 1, ActorID: 3})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.Create(context.Background(), CreateInput{
		SupplierID: 2, WarehouseID: 1, ActorID: 3,
		Lines: []LineInput{{ComponentID: 7, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestLifecycleEnforcesOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order := draftOrder(t, svc)

	// cannot approve or receive a draft
	require.ErrorIs(t, svc.Approve(ctx, order.ID, 9), statemachine.ErrInvalidTransition)
	_, err := svc.Receive(ctx, order.ID, 9)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	require.NoError(t, svc.Submit(ctx, order.ID, 3))
	// creator cannot approve their own order
	require.ErrorIs(t, svc.Approve(ctx, order.ID, 3), statemachine.ErrInvalidTransition)
	require.NoError(t, svc.Approve(ctx, order.ID, 9))
	_, err = svc.Receive(ctx, order.ID, 9)
	require.NoError(t, err)

	// received is terminal
	require.ErrorIs(t, svc.Cancel(ctx, order.ID, 9), statemachine.ErrInvalidTransition)
}

func TestReceiveCreditsStockAndLogsLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	order := draftOrder(t, svc)

	require.NoError(t, svc.Submit(ctx, order.ID, 3))
	require.NoError(t, svc.Approve(ctx, order.ID, 9))

	received, err := svc.Receive(ctx, order.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)

	require.Equal(t, int64(50), repo.stock[stockKey{1, 7}])
	require.Equal(t, int64(20), repo.stock[stockKey{1, 8}])
	require.Len(t, repo.ledger, 2)
	for _, entry := range repo.ledger {
		require.Equal(t, inventory.TransactionImportPurchase, entry.Type)
	}
}

func TestCancelFromDraftAndSubmitted(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first := draftOrder(t, svc)
	require.NoError(t, svc.Cancel(ctx, first.ID, 3))

	second := draftOrder(t, svc)
	require.NoError(t, svc.Submit(ctx, second.ID, 3))
	require.NoError(t, svc.Cancel(ctx, second.ID, 3))

	stored, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
}
