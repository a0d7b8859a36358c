package orders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

type memoryRepo struct {
	mu       sync.Mutex
	requests map[int64]ProductionRequest
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[int64]ProductionRequest)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryTx)(r))
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (ProductionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return ProductionRequest{}, shared.ErrNotFound
	}
	return request, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]ProductionRequest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ProductionRequest
	for _, request := range r.requests {
		if filter.Status == "" || request.Status == filter.Status {
			out = append(out, request)
		}
	}
	return out, len(out), nil
}

type memoryTx memoryRepo

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (ProductionRequest, error) {
	request, ok := t.requests[id]
	if !ok {
		return ProductionRequest{}, shared.ErrNotFound
	}
	return request, nil
}

func (t *memoryTx) Insert(ctx context.Context, request ProductionRequest) (ProductionRequest, error) {
	t.nextID++
	request.ID = t.nextID
	request.CreatedAt = time.Now()
	t.requests[request.ID] = request
	return request, nil
}

func (t *memoryTx) SetDecision(ctx context.Context, id int64, status Status, approverID int64, decidedAt time.Time) error {
	request, ok := t.requests[id]
	if !ok || request.Status != StatusPending {
		return shared.ErrNotFound
	}
	request.Status = status
	request.ApproverID = &approverID
	request.DecidedAt = &decidedAt
	t.requests[id] = request
	return nil
}

type staticProducts map[int64]bool

func (p staticProducts) ProductExists(ctx context.Context, productID int64) (bool, error) {
	return p[productID], nil
}

type capturedNote struct {
	employeeID int64
	title      string
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []capturedNote
}

func (n *captureNotifier) Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, capturedNote{employeeID: employeeID, title: title})
	return nil
}

func newTestService(repo *memoryRepo, notifier NotifierPort) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, staticProducts{1: true}, notifier, nil, nil)
}

func TestCreateValidates(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 0, RequesterID: 5})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateInput{ProductID: 99, Quantity: 3, RequesterID: 5})
	require.ErrorIs(t, err, ErrUnknownProduct)

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 3, RequesterID: 5})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
}

func TestApproveRecordsApproverAndNotifies(t *testing.T) {
	repo := newMemoryRepo()
	notifier := &captureNotifier{}
	svc := newTestService(repo, notifier)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 3, RequesterID: 5})
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, created.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApproverID)
	require.Equal(t, int64(9), *approved.ApproverID)

	require.Len(t, notifier.notes, 1)
	require.Equal(t, int64(5), notifier.notes[0].employeeID)
}

func TestSelfApprovalFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 3, RequesterID: 5})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, created.ID, 5)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestDecidedRequestIsImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{ProductID: 1, Quantity: 3, RequesterID: 5})
	require.NoError(t, err)

	_, err = svc.Reject(ctx, created.ID, 9)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, created.ID, 9)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}
