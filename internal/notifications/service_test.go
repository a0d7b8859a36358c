package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Notification
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]Notification)}
}

func (r *memoryRepo) Insert(ctx context.Context, n Notification) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	n.CreatedAt = time.Now()
	r.rows[n.ID] = n
	return n, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return Notification{}, shared.ErrNotFound
	}
	return n, nil
}

func (r *memoryRepo) List(ctx context.Context, employeeID int64, unreadOnly bool, page, limit int) ([]Notification, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.rows {
		if n.EmployeeID != employeeID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out, len(out), nil
}

func (r *memoryRepo) MarkRead(ctx context.Context, employeeID, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	if n.EmployeeID != employeeID {
		return ErrNotRecipient
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
		r.rows[id] = n
	}
	return nil
}

func (r *memoryRepo) MarkAllRead(ctx context.Context, employeeID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for id, n := range r.rows {
		if n.EmployeeID == employeeID && n.ReadAt == nil {
			n.ReadAt = &at
			r.rows[id] = n
			changed++
		}
	}
	return changed, nil
}

func (r *memoryRepo) CountUnread(ctx context.Context, employeeID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.EmployeeID == employeeID && row.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

type capturingEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *capturingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *capturingEnqueuer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })
	repo := newMemoryRepo()
	enq := &capturingEnqueuer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, enq, cache), repo, enq, mr
}

func TestNotifyStoresRowAndEnqueuesDispatch(t *testing.T) {
	svc, repo, enq, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Notify(ctx, 7, KindRequestDecision, "Request approved", "Production request 12 was approved", "production_request", 12)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), stored.EmployeeID)
	require.Equal(t, KindRequestDecision, stored.Kind)
	require.Nil(t, stored.ReadAt)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskDispatch, enq.tasks[0].Type())
	var payload DispatchPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(1), payload.NotificationID)
	require.Equal(t, "Request approved", payload.Title)
}

func TestUnreadCountCachesInRedis(t *testing.T) {
	svc, _, _, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 7, KindLowStock, "Low stock", "Component below minimum", "component", 3))
	require.NoError(t, svc.Notify(ctx, 7, KindLowStock, "Low stock", "Component below minimum", "component", 4))

	// first read populates the cache from the database
	n, err := svc.UnreadCount(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	cached, err := mr.Get("notifications:unread:7")
	require.NoError(t, err)
	require.Equal(t, "2", cached)

	// a new notification bumps the cached counter in place
	require.NoError(t, svc.Notify(ctx, 7, KindLowStock, "Low stock", "Component below minimum", "component", 5))
	n, err = svc.UnreadCount(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestMarkReadInvalidatesCachedCounter(t *testing.T) {
	svc, _, _, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 7, KindMaterialRelease, "Materials released", "Request 5 approved", "material_request", 5))
	n, err := svc.UnreadCount(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, svc.MarkRead(ctx, 7, 1))
	require.False(t, mr.Exists("notifications:unread:7"))

	n, err = svc.UnreadCount(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestMarkReadRejectsOtherRecipient(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 7, KindRequestDecision, "Approved", "ok", "production_request", 1))
	require.ErrorIs(t, svc.MarkRead(ctx, 8, 1), ErrNotRecipient)
}

func TestMarkAllRead(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, 7, KindLowStock, "Low stock", "x", "component", 1))
	require.NoError(t, svc.Notify(ctx, 7, KindLowStock, "Low stock", "y", "component", 2))
	require.NoError(t, svc.Notify(ctx, 9, KindLowStock, "Low stock", "z", "component", 3))

	changed, err := svc.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), changed)

	n, err := svc.UnreadCount(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
