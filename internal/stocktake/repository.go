package stocktake

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Repository persists stocktake sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction;
// FOR UPDATE row locks serialize concurrent writers on the same row.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetSession(ctx context.Context, id int64) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, warehouse_id, status, opened_by, opened_at, finalized_at
FROM stocktake_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		return Session{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, session_id, component_id, system_quantity, actual_quantity, note
FROM stocktake_items WHERE session_id = $1 ORDER BY component_id`, id)
	if err != nil {
		return Session{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SessionID, &item.ComponentID, &item.SystemQuantity, &item.ActualQuantity, &item.Note); err != nil {
			return Session{}, err
		}
		session.Items = append(session.Items, item)
	}
	return session, rows.Err()
}

func (r *Repository) ListSessions(ctx context.Context, warehouseID int64, page, limit int) ([]Session, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocktake_sessions WHERE warehouse_id = $1`, warehouseID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, status, opened_by, opened_at, finalized_at
FROM stocktake_sessions WHERE warehouse_id = $1 ORDER BY opened_at DESC LIMIT $2 OFFSET $3`,
		warehouseID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}
	return sessions, total, rows.Err()
}

func (r *txRepository) HasActiveSession(ctx context.Context, warehouseID int64) (bool, error) {
	var active bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stocktake_sessions WHERE warehouse_id = $1 AND status = 'IN_PROGRESS')`,
		warehouseID).Scan(&active)
	return active, err
}

func (r *txRepository) InsertSession(ctx context.Context, session Session) (Session, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stocktake_sessions (warehouse_id, status, opened_by, opened_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
		session.WarehouseID, string(session.Status), session.OpenedBy, session.OpenedAt).Scan(&session.ID)
	return session, err
}

func (r *txRepository) SnapshotStock(ctx context.Context, warehouseID int64) (map[int64]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT component_id, quantity FROM component_stocks WHERE warehouse_id = $1`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snapshot := make(map[int64]int64)
	for rows.Next() {
		var componentID, quantity int64
		if err := rows.Scan(&componentID, &quantity); err != nil {
			return nil, err
		}
		snapshot[componentID] = quantity
	}
	return snapshot, rows.Err()
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stocktake_items (session_id, component_id, system_quantity, actual_quantity, note)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.SessionID, item.ComponentID, item.SystemQuantity, item.ActualQuantity, item.Note).Scan(&item.ID)
	return item, err
}

func (r *txRepository) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, warehouse_id, status, opened_by, opened_at, finalized_at
FROM stocktake_sessions WHERE id = $1 FOR UPDATE`, id)
	return scanSession(row)
}

func (r *txRepository) SetItemCount(ctx context.Context, sessionID, componentID, actual int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktake_items SET actual_quantity = $1 WHERE session_id = $2 AND component_id = $3`,
		actual, sessionID, componentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepository) CountUncounted(ctx context.Context, sessionID int64) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM stocktake_items WHERE session_id = $1 AND actual_quantity IS NULL`, sessionID).Scan(&n)
	return n, err
}

func (r *txRepository) SetFinalized(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktake_sessions SET status = 'COMPLETED', finalized_at = $1
WHERE id = $2 AND status = 'IN_PROGRESS'`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (Session, error) {
	var session Session
	var status string
	err := row.Scan(&session.ID, &session.WarehouseID, &status, &session.OpenedBy, &session.OpenedAt, &session.FinalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	session.Status = SessionStatus(status)
	return session, nil
}
