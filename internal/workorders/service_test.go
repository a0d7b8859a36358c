package workorders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/bom"
	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type memoryState struct {
	requests  map[int64]RequestRef
	orders    map[int64]WorkOrder
	batches   map[int64]ProductionBatch
	instances map[int64]ProductInstance
	material  map[int64]materials.MaterialRequest
	ledger    []inventory.Transaction
	links     map[int64]int64 // work order -> production request
	codeSeq   int64
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		requests:  make(map[int64]RequestRef, len(s.requests)),
		orders:    make(map[int64]WorkOrder, len(s.orders)),
		batches:   make(map[int64]ProductionBatch, len(s.batches)),
		instances: make(map[int64]ProductInstance, len(s.instances)),
		material:  make(map[int64]materials.MaterialRequest, len(s.material)),
		ledger:    append([]inventory.Transaction(nil), s.ledger...),
		links:     make(map[int64]int64, len(s.links)),
		codeSeq:   s.codeSeq,
		nextID:    s.nextID,
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.instances {
		out.instances[k] = v
	}
	for k, v := range s.material {
		out.material[k] = v
	}
	for k, v := range s.links {
		out.links[k] = v
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: &memoryState{
		requests:  make(map[int64]RequestRef),
		orders:    make(map[int64]WorkOrder),
		batches:   make(map[int64]ProductionBatch),
		instances: make(map[int64]ProductInstance),
		material:  make(map[int64]materials.MaterialRequest),
		links:     make(map[int64]int64),
	}}
}

type memoryTx struct {
	state *memoryState
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (WorkOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.state.orders[id]
	if !ok {
		return WorkOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []WorkOrder
	for _, order := range r.state.orders {
		if filter.Status == "" || order.Status == filter.Status {
			out = append(out, order)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, workOrderID int64) (ProductionBatch, []ProductInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, batch := range r.state.batches {
		if batch.WorkOrderID == workOrderID {
			var instances []ProductInstance
			for _, instance := range r.state.instances {
				if instance.BatchID == batch.ID {
					instances = append(instances, instance)
				}
			}
			return batch, instances, nil
		}
	}
	return ProductionBatch{}, nil, shared.ErrNotFound
}

func (t *memoryTx) GetRequestForUpdate(ctx context.Context, id int64) (RequestRef, error) {
	ref, ok := t.state.requests[id]
	if !ok {
		return RequestRef{}, shared.ErrNotFound
	}
	return ref, nil
}

func (t *memoryTx) NextCode(ctx context.Context) (string, error) {
	t.state.codeSeq++
	return fmt.Sprintf("WO-%06d", t.state.codeSeq), nil
}

func (t *memoryTx) InsertWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error) {
	t.state.nextID++
	order.ID = t.state.nextID
	order.CreatedAt = time.Now()
	t.state.orders[order.ID] = order
	return order, nil
}

func (t *memoryTx) InsertFulfillment(ctx context.Context, requestID, workOrderID int64) error {
	t.state.links[workOrderID] = requestID
	return nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	order, ok := t.state.orders[id]
	if !ok {
		return WorkOrder{}, shared.ErrNotFound
	}
	return order, nil
}

func (t *memoryTx) SetStarted(ctx context.Context, id int64, at time.Time) error {
	order, ok := t.state.orders[id]
	if !ok || order.Status != StatusPlanned {
		return shared.ErrNotFound
	}
	order.Status = StatusInProgress
	order.StartedAt = &at
	t.state.orders[id] = order
	return nil
}

func (t *memoryTx) SetCompleted(ctx context.Context, id int64, at time.Time) error {
	order, ok := t.state.orders[id]
	if !ok || order.Status != StatusInProgress {
		return shared.ErrNotFound
	}
	order.Status = StatusCompleted
	order.CompletedAt = &at
	t.state.orders[id] = order
	return nil
}

func (t *memoryTx) InsertMaterialRequest(ctx context.Context, request materials.MaterialRequest) (materials.MaterialRequest, error) {
	if len(request.Lines) == 0 {
		return materials.MaterialRequest{}, materials.ErrNoLines
	}
	t.state.nextID++
	request.ID = t.state.nextID
	t.state.material[request.ID] = request
	return request, nil
}

func (t *memoryTx) InsertBatch(ctx context.Context, batch ProductionBatch) (ProductionBatch, error) {
	for _, existing := range t.state.batches {
		if existing.WorkOrderID == batch.WorkOrderID || existing.Code == batch.Code {
			return ProductionBatch{}, shared.ErrDuplicateCode
		}
	}
	t.state.nextID++
	batch.ID = t.state.nextID
	t.state.batches[batch.ID] = batch
	return batch, nil
}

func (t *memoryTx) InsertInstance(ctx context.Context, instance ProductInstance) (ProductInstance, error) {
	t.state.nextID++
	instance.ID = t.state.nextID
	instance.CreatedAt = time.Now()
	t.state.instances[instance.ID] = instance
	return instance, nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error) {
	t.state.ledger = append(t.state.ledger, entry)
	return int64(len(t.state.ledger)), nil
}

type staticBuilder struct {
	lines map[int64][]materials.Line // product -> per-unit lines
}

func (b staticBuilder) BuildRequest(ctx context.Context, workOrderID, productID, quantity, actorID int64) (materials.MaterialRequest, error) {
	perUnit, ok := b.lines[productID]
	if !ok {
		return materials.MaterialRequest{}, bom.ErrNoBOMDefined
	}
	request := materials.MaterialRequest{
		WorkOrderID: workOrderID,
		WarehouseID: 1,
		Status:      materials.StatusPending,
		RequesterID: actorID,
	}
	for _, line := range perUnit {
		request.Lines = append(request.Lines, materials.Line{
			ComponentID: line.ComponentID,
			Quantity:    line.Quantity * quantity,
		})
	}
	return request, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func newTestService(repo *memoryRepo, builder MaterialBuilder) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, builder, &memoryIdempotency{}, nil, nil, 1)
}

func fixtures() (*memoryRepo, *Service) {
	repo := newMemoryRepo()
	repo.state.requests[20] = RequestRef{ID: 20, ProductID: 100, Status: "APPROVED"}
	repo.state.requests[21] = RequestRef{ID: 21, ProductID: 100, Status: "PENDING"}
	builder := staticBuilder{lines: map[int64][]materials.Line{
		100: {{ComponentID: 7, Quantity: 2}},
	}}
	return repo, newTestService(repo, builder)
}

func createPlanned(t *testing.T, repo *memoryRepo, svc *Service) WorkOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateInput{
		ProductionRequestID: 20, ProductID: 100, Quantity: 5, ActorID: 3,
	})
	require.NoError(t, err)
	// the pg repository joins the product code onto the row
	order.ProductCode = "PRD-001"
	repo.mu.Lock()
	repo.state.orders[order.ID] = order
	repo.mu.Unlock()
	return order
}

func TestCreateRequiresApprovedRequest(t *testing.T) {
	_, svc := fixtures()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ProductionRequestID: 21, ProductID: 100, Quantity: 5, ActorID: 3})
	require.ErrorIs(t, err, ErrRequestNotApproved)

	_, err = svc.Create(ctx, CreateInput{ProductionRequestID: 20, ProductID: 999, Quantity: 5, ActorID: 3})
	require.ErrorIs(t, err, ErrProductMismatch)

	order, err := svc.Create(ctx, CreateInput{ProductionRequestID: 20, ProductID: 100, Quantity: 5, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, order.Status)
	require.Equal(t, "WO-000001", order.Code)
}

func TestStartCreatesMaterialRequestAtomically(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)

	started, request, err := svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.Equal(t, order.ID, request.WorkOrderID)
	require.Len(t, request.Lines, 1)
	require.Equal(t, int64(10), request.Lines[0].Quantity)
}

func TestStartWithoutBOMLeavesOrderPlanned(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.requests[20] = RequestRef{ID: 20, ProductID: 100, Status: "APPROVED"}
	svc := newTestService(repo, staticBuilder{lines: map[int64][]materials.Line{}})
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{ProductionRequestID: 20, ProductID: 100, Quantity: 5, ActorID: 3})
	require.NoError(t, err)

	_, _, err = svc.Start(ctx, order.ID, 3)
	require.ErrorIs(t, err, bom.ErrNoBOMDefined)

	stored, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, stored.Status)
	require.Empty(t, repo.state.material)
}

func TestCompleteMintsBatchInstancesAndLedger(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)

	_, _, err := svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)

	completed, batch, err := svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	expectedBatch := fmt.Sprintf("%s-%s", order.Code, time.Now().UTC().Format("20060102"))
	require.Equal(t, expectedBatch, batch.Code)

	_, instances, err := svc.GetBatch(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, instances, 3)
	serials := make(map[string]bool)
	for _, instance := range instances {
		require.Equal(t, InstanceInStock, instance.Status)
		serials[instance.SerialNumber] = true
	}
	for seq := 1; seq <= 3; seq++ {
		require.True(t, serials[fmt.Sprintf("SN-PRD-001-%s-%03d", batch.Code, seq)])
	}

	var imports int
	for _, entry := range repo.state.ledger {
		if entry.Type == inventory.TransactionImportProduction {
			require.Equal(t, int64(1), entry.Quantity)
			require.NotNil(t, entry.ProductInstanceID)
			imports++
		}
	}
	require.Equal(t, 3, imports)
}

func TestCompleteRejectsZeroQuantity(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)
	_, _, err := svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 0, ActorID: 4})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCompletePlannedOrderFails(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)

	_, _, err := svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	stored, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, stored.Status)
	require.Empty(t, repo.state.batches)
}

func TestCompleteTwiceRejected(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)
	_, _, err := svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.state.batches, 1)
}

func TestCompleteMintsOneBatchPerWorkOrder(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)
	_, _, err := svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)

	_, batch, err := svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 2, ActorID: 4})
	require.NoError(t, err)

	// a second batch row for the same order is rejected at the store
	txErr := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertBatch(ctx, ProductionBatch{WorkOrderID: order.ID, Code: batch.Code + "-B"})
		return err
	})
	require.ErrorIs(t, txErr, shared.ErrDuplicateCode)
	require.Len(t, repo.state.batches, 1)
}

func TestFailedCompleteReleasesIdempotencyKey(t *testing.T) {
	repo, svc := fixtures()
	ctx := context.Background()
	order := createPlanned(t, repo, svc)

	// completion against PLANNED fails inside the transaction
	_, _, err := svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	_, _, err = svc.Start(ctx, order.ID, 3)
	require.NoError(t, err)

	// the key from the failed attempt must not block the real completion
	_, _, err = svc.Complete(ctx, order.ID, CompleteInput{QuantityProduced: 3, ActorID: 4})
	require.NoError(t, err)
}
