package stocktake

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
	sessions map[int64]Session
	items    map[int64][]Item
	stock    map[int64]map[int64]int64 // warehouse -> component -> qty
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		sessions: make(map[int64]Session),
		items:    make(map[int64][]Item),
		stock:    make(map[int64]map[int64]int64),
	}
}

type memoryTx struct {
	repo     *memoryRepo
	sessions map[int64]Session
	items    map[int64][]Item
	nextID   int64
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{
		repo:     r,
		sessions: make(map[int64]Session, len(r.sessions)),
		items:    make(map[int64][]Item, len(r.items)),
		nextID:   r.nextID,
	}
	for id, session := range r.sessions {
		tx.sessions[id] = session
	}
	for id, items := range r.items {
		tx.items[id] = append([]Item(nil), items...)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.sessions = tx.sessions
	r.items = tx.items
	r.nextID = tx.nextID
	return nil
}

func (r *memoryRepo) GetSession(ctx context.Context, id int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return Session{}, shared.ErrNotFound
	}
	session.Items = append([]Item(nil), r.items[id]...)
	return session, nil
}

func (r *memoryRepo) ListSessions(ctx context.Context, warehouseID int64, page, limit int) ([]Session, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, session := range r.sessions {
		if session.WarehouseID == warehouseID {
			out = append(out, session)
		}
	}
	return out, len(out), nil
}

func (t *memoryTx) HasActiveSession(ctx context.Context, warehouseID int64) (bool, error) {
	for _, session := range t.sessions {
		if session.WarehouseID == warehouseID && session.Status == SessionInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertSession(ctx context.Context, session Session) (Session, error) {
	t.nextID++
	session.ID = t.nextID
	t.sessions[session.ID] = session
	return session, nil
}

func (t *memoryTx) SnapshotStock(ctx context.Context, warehouseID int64) (map[int64]int64, error) {
	snapshot := make(map[int64]int64)
	for componentID, qty := range t.repo.stock[warehouseID] {
		snapshot[componentID] = qty
	}
	return snapshot, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item Item) (Item, error) {
	t.nextID++
	item.ID = t.nextID
	t.items[item.SessionID] = append(t.items[item.SessionID], item)
	return item, nil
}

func (t *memoryTx) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	session, ok := t.sessions[id]
	if !ok {
		return Session{}, shared.ErrNotFound
	}
	return session, nil
}

func (t *memoryTx) SetItemCount(ctx context.Context, sessionID, componentID, actual int64) (bool, error) {
	items := t.items[sessionID]
	for i := range items {
		if items[i].ComponentID == componentID {
			value := actual
			items[i].ActualQuantity = &value
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CountUncounted(ctx context.Context, sessionID int64) (int64, error) {
	var n int64
	for _, item := range t.items[sessionID] {
		if item.ActualQuantity == nil {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) SetFinalized(ctx context.Context, id int64, at time.Time) error {
	session, ok := t.sessions[id]
	if !ok || session.Status != SessionInProgress {
		return shared.ErrNotFound
	}
	session.Status = SessionCompleted
	session.FinalizedAt = &at
	t.sessions[id] = session
	return nil
}

func newTestService(repo *memoryRepo, cfg Config) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, nil, cfg)
}

func TestOpenSessionSnapshotsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40, 8: 0}
	svc := newTestService(repo, Config{})

	session, err := svc.OpenSession(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, SessionInProgress, session.Status)
	require.Len(t, session.Items, 2)
	for _, item := range session.Items {
		require.Nil(t, item.ActualQuantity)
	}
}

func TestOpenSessionRejectsSecondActive(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40}
	svc := newTestService(repo, Config{})
	ctx := context.Background()

	_, err := svc.OpenSession(ctx, 1, 3)
	require.NoError(t, err)

	_, err = svc.OpenSession(ctx, 1, 4)
	require.ErrorIs(t, err, ErrSessionAlreadyActive)

	// another warehouse is unaffected
	_, err = svc.OpenSession(ctx, 2, 4)
	require.NoError(t, err)
}

func TestRecordCountsUpdatesSnapshotItems(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40}
	svc := newTestService(repo, Config{})
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, 1, 3)
	require.NoError(t, err)

	err = svc.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 7, ActualQuantity: 38}})
	require.NoError(t, err)

	stored, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Items[0].ActualQuantity)
	require.Equal(t, int64(38), *stored.Items[0].ActualQuantity)
}

func TestRecordCountsUnexpectedComponentPolicies(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40}
	svc := newTestService(repo, Config{})
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, 1, 3)
	require.NoError(t, err)

	// default policy: a floor find becomes an item with zero system stock
	err = svc.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 99, ActualQuantity: 4}})
	require.NoError(t, err)

	stored, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	var found bool
	for _, item := range stored.Items {
		if item.ComponentID == 99 {
			found = true
			require.Equal(t, int64(0), item.SystemQuantity)
			require.Equal(t, unexpectedItemNote, item.Note)
		}
	}
	require.True(t, found)

	// strict policy rejects the same count
	strict := newTestService(repo, Config{RejectUnexpected: true})
	err = strict.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 120, ActualQuantity: 1}})
	require.ErrorIs(t, err, ErrUnexpectedComponent)
}

func TestFinalizeRequiresCompleteCount(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40, 8: 10}
	svc := newTestService(repo, Config{})
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, 1, 3)
	require.NoError(t, err)

	err = svc.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 7, ActualQuantity: 40}})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, session.ID, 3)
	require.ErrorIs(t, err, ErrIncompleteCount)

	stored, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, SessionInProgress, stored.Status)

	err = svc.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 8, ActualQuantity: 9}})
	require.NoError(t, err)

	finalized, err := svc.Finalize(ctx, session.ID, 3)
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, finalized.Status)

	// a finalized session rejects further work
	_, err = svc.Finalize(ctx, session.ID, 3)
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	err = svc.RecordCounts(ctx, session.ID, 3, []Count{{ComponentID: 7, ActualQuantity: 1}})
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestVarianceReportOnlyNonZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.stock[1] = map[int64]int64{7: 40, 8: 10, 9: 5}
	svc := newTestService(repo, Config{})
	ctx := context.Background()

	session, err := svc.OpenSession(ctx, 1, 3)
	require.NoError(t, err)

	err = svc.RecordCounts(ctx, session.ID, 3, []Count{
		{ComponentID: 7, ActualQuantity: 38},
		{ComponentID: 8, ActualQuantity: 10},
		{ComponentID: 9, ActualQuantity: 7},
	})
	require.NoError(t, err)

	lines, err := svc.VarianceReport(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	byComponent := make(map[int64]VarianceLine)
	for _, line := range lines {
		byComponent[line.ComponentID] = line
	}
	require.Equal(t, int64(-2), byComponent[7].Variance)
	require.Equal(t, int64(2), byComponent[9].Variance)

	// live stock was never touched
	require.Equal(t, int64(40), repo.stock[1][7])
}
