package sales

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type memoryInstance struct {
	id           int64
	productID    int64
	serialNumber string
	status       string
	orderID      int64
	createdAt    time.Time
}

type memoryRepo struct {
	mu        sync.Mutex
	orders    map[int64]SalesOrder
	instances map[int64]memoryInstance
	ledger    []inventory.Transaction
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]SalesOrder), instances: make(map[int64]memoryInstance)}
}

func (r *memoryRepo) seedInstances(productID int64, n int) {
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		r.nextID++
		r.instances[r.nextID] = memoryInstance{
			id:           r.nextID,
			productID:    productID,
			serialNumber: fmt.Sprintf("SN-%d-%03d", productID, i+1),
			status:       "IN_STOCK",
			createdAt:    base.Add(time.Duration(i) * time.Minute),
		}
	}
}

type memoryTx struct {
	repo      *memoryRepo
	orders    map[int64]SalesOrder
	instances map[int64]memoryInstance
	ledger    []inventory.Transaction
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:      r,
		orders:    make(map[int64]SalesOrder, len(r.orders)),
		instances: make(map[int64]memoryInstance, len(r.instances)),
	}
	for id, order := range r.orders {
		order.Lines = append([]Line(nil), order.Lines...)
		tx.orders[id] = order
	}
	for id, inst := range r.instances {
		tx.instances[id] = inst
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.orders = tx.orders
	r.instances = tx.instances
	r.ledger = append(r.ledger, tx.ledger...)
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (SalesOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return SalesOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (r *memoryRepo) List(ctx context.Context, status Status, page, limit int) ([]SalesOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SalesOrder
	for _, order := range r.orders {
		if status == "" || order.Status == status {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetShipment(ctx context.Context, orderID int64) (Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return Shipment{}, shared.ErrNotFound
	}
	shipment := Shipment{OrderID: orderID}
	for _, inst := range r.instances {
		if inst.orderID == orderID {
			shipment.Units = append(shipment.Units, ShippedUnit{
				ProductID:    inst.productID,
				InstanceID:   inst.id,
				SerialNumber: inst.serialNumber,
			})
		}
	}
	return shipment, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (SalesOrder, error) {
	order, ok := t.orders[id]
	if !ok {
		return SalesOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (t *memoryTx) Insert(ctx context.Context, order SalesOrder) (SalesOrder, error) {
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

func (t *memoryTx) SetFulfilled(ctx context.Context, id int64, at time.Time) error {
	order, ok := t.orders[id]
	if !ok || order.Status != StatusConfirmed {
		return shared.ErrNotFound
	}
	order.Status = StatusFulfilled
	order.FulfilledAt = &at
	t.orders[id] = order
	return nil
}

func (t *memoryTx) OldestInStock(ctx context.Context, productID, limit int64) ([]InstanceRef, error) {
	var candidates []memoryInstance
	for _, inst := range t.instances {
		if inst.productID == productID && inst.status == "IN_STOCK" {
			candidates = append(candidates, inst)
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].createdAt.Before(candidates[i].createdAt) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if int64(len(candidates)) > limit {
		candidates = candidates[:limit]
	}
	var refs []InstanceRef
	for _, inst := range candidates {
		refs = append(refs, InstanceRef{ID: inst.id, ProductID: inst.productID, SerialNumber: inst.serialNumber})
	}
	return refs, nil
}

func (t *memoryTx) MarkShipped(ctx context.Context, instanceID, orderID int64) error {
	inst, ok := t.instances[instanceID]
	if !ok || inst.status != "IN_STOCK" {
		return shared.ErrNotFound
	}
	inst.status = "SHIPPED"
	inst.orderID = orderID
	t.instances[instanceID] = inst
	return nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	t.ledger = append(t.ledger, entry)
	return int64(len(t.ledger)), nil
}

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil, nil, 1)
}

func confirmedOrder(t *testing.T, svc *Service, productID, qty int64) SalesOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Acme Industrial",
		ActorID:      3,
		Lines:        []LineInput{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(context.Background(), order.ID, 3))
	return order
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ActorID: 3, Lines: []LineInput{{ProductID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrEmptyCustomer)

	_, err = svc.Create(ctx, CreateInput{CustomerName: "Acme", ActorID: 3})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.Create(ctx, CreateInput{CustomerName: "Acme", ActorID: 3,
		Lines: []LineInput{{ProductID: 1, Quantity: -2}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestFulfilShipsOldestInstancesFirst(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedInstances(100, 5)
	svc := newTestService(repo)
	ctx := context.Background()
	order := confirmedOrder(t, svc, 100, 3)

	shipment, err := svc.Fulfil(ctx, order.ID, 3)
	require.NoError(t, err)
	require.Len(t, shipment.Units, 3)
	require.Equal(t, "SN-100-001", shipment.Units[0].SerialNumber)
	require.Equal(t, "SN-100-002", shipment.Units[1].SerialNumber)
	require.Equal(t, "SN-100-003", shipment.Units[2].SerialNumber)

	stored, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, stored.Status)
	require.NotNil(t, stored.FulfilledAt)

	// one quantity-1 export row per shipped unit
	require.Len(t, repo.ledger, 3)
	for _, entry := range repo.ledger {
		require.Equal(t, inventory.TransactionExportSale, entry.Type)
		require.Equal(t, int64(1), entry.Quantity)
		require.NotNil(t, entry.ProductInstanceID)
	}

	// the two newest units stay in stock
	remaining := 0
	for _, inst := range repo.instances {
		if inst.status == "IN_STOCK" {
			remaining++
		}
	}
	require.Equal(t, 2, remaining)
}

func TestFulfilShortStockAbortsWholeOrder(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedInstances(100, 2)
	svc := newTestService(repo)
	ctx := context.Background()
	order := confirmedOrder(t, svc, 100, 3)

	_, err := svc.Fulfil(ctx, order.ID, 3)
	var short *InsufficientInstancesError
	require.ErrorAs(t, err, &short)
	require.Equal(t, int64(100), short.ProductID)
	require.Equal(t, int64(3), short.Needed)
	require.Equal(t, int64(2), short.Available)

	// nothing shipped, nothing posted, order still CONFIRMED
	for _, inst := range repo.instances {
		require.Equal(t, "IN_STOCK", inst.status)
	}
	require.Empty(t, repo.ledger)
	stored, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, stored.Status)
}

func TestFulfilRequiresConfirmed(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedInstances(100, 5)
	svc := newTestService(repo)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{
		CustomerName: "Acme Industrial",
		ActorID:      3,
		Lines:        []LineInput{{ProductID: 100, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Fulfil(ctx, order.ID, 3)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}

func TestCancelledOrderIsTerminal(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedInstances(100, 5)
	svc := newTestService(repo)
	ctx := context.Background()
	order := confirmedOrder(t, svc, 100, 1)

	require.NoError(t, svc.Cancel(ctx, order.ID, 3))
	require.ErrorIs(t, svc.Confirm(ctx, order.ID, 3), statemachine.ErrInvalidTransition)
	_, err := svc.Fulfil(ctx, order.ID, 3)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}
