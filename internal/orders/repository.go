package orders

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// Repository persists production requests in PostgreSQL.
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

const requestColumns = `pr.id, pr.product_id, p.code, pr.quantity, pr.status, pr.requester_id, pr.approver_id, pr.note, pr.decided_at, pr.created_at, pr.updated_at`

func (r *Repository) Get(ctx context.Context, id int64) (ProductionRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+`
FROM production_requests pr JOIN products p ON p.id = pr.product_id WHERE pr.id = $1`, id)
	return scanRequest(row)
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]ProductionRequest, int, error) {
	query := `SELECT ` + requestColumns + ` FROM production_requests pr JOIN products p ON p.id = pr.product_id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM production_requests pr WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Status != "" {
		argCount++
		clause := ` AND pr.status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, string(filter.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argCount++
	query += ` ORDER BY pr.created_at DESC LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filter.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (filter.Page-1)*filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []ProductionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, request)
	}
	return requests, total, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (ProductionRequest, error) {
	row := r.tx.QueryRow(ctx, `SELECT pr.id, pr.product_id, '', pr.quantity, pr.status, pr.requester_id, pr.approver_id, pr.note, pr.decided_at, pr.created_at, pr.updated_at
FROM production_requests pr WHERE pr.id = $1 FOR UPDATE`, id)
	return scanRequest(row)
}

func (r *txRepository) Insert(ctx context.Context, request ProductionRequest) (ProductionRequest, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO production_requests (product_id, quantity, status, requester_id, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		request.ProductID, request.Quantity, string(request.Status), request.RequesterID, request.Note).
		Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
	return request, err
}

func (r *txRepository) SetDecision(ctx context.Context, id int64, status Status, approverID int64, decidedAt time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_requests SET status = $1, approver_id = $2, decided_at = $3, updated_at = NOW()
WHERE id = $4 AND status = $5`, string(status), approverID, decidedAt, id, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRequest(row pgx.Row) (ProductionRequest, error) {
	var request ProductionRequest
	var status string
	err := row.Scan(&request.ID, &request.ProductID, &request.ProductCode, &request.Quantity, &status,
		&request.RequesterID, &request.ApproverID, &request.Note, &request.DecidedAt,
		&request.CreatedAt, &request.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionRequest{}, shared.ErrNotFound
	}
	if err != nil {
		return ProductionRequest{}, err
	}
	request.Status = Status(status)
	return request, nil
}
