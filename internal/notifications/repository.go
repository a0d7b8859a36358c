package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, employee_id, kind, title, message, entity, entity_id, read_at, created_at`

func (r *Repository) Insert(ctx context.Context, n Notification) (Notification, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO notifications (employee_id, kind, title, message, entity, entity_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id, created_at`,
		n.EmployeeID, n.Kind, n.Title, n.Message, n.Entity, n.EntityID).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Notification, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM notifications WHERE id = $1`, id)
	var n Notification
	err := row.Scan(&n.ID, &n.EmployeeID, &n.Kind, &n.Title, &n.Message, &n.Entity, &n.EntityID, &n.ReadAt, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, shared.ErrNotFound
	}
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (r *Repository) List(ctx context.Context, employeeID int64, unreadOnly bool, page, limit int) ([]Notification, int, error) {
	filter := ` WHERE employee_id = $1`
	if unreadOnly {
		filter += ` AND read_at IS NULL`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`+filter, employeeID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM notifications`+filter+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, employeeID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EmployeeID, &n.Kind, &n.Title, &n.Message, &n.Entity, &n.EntityID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *Repository) MarkRead(ctx context.Context, employeeID, id int64, at time.Time) error {
	owner, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if owner.EmployeeID != employeeID {
		return ErrNotRecipient
	}
	_, err = r.pool.Exec(ctx, `UPDATE notifications SET read_at = $1 WHERE id = $2 AND read_at IS NULL`, at, id)
	return err
}

func (r *Repository) MarkAllRead(ctx context.Context, employeeID int64, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = $1 WHERE employee_id = $2 AND read_at IS NULL`,
		at, employeeID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) CountUnread(ctx context.Context, employeeID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE employee_id = $1 AND read_at IS NULL`,
		employeeID).Scan(&n)
	return n, err
}
