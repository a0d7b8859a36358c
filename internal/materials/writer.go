package materials

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Writer bundles the insert statements other engines run inside their own
// database transactions. The work-order start path uses it so the request
// insert and the status flip commit together.
type Writer struct{}

// Insert persists a request and its lines, returning the stored request.
func (Writer) Insert(ctx context.Context, tx pgx.Tx, request MaterialRequest) (MaterialRequest, error) {
	if len(request.Lines) == 0 {
		return MaterialRequest{}, ErrNoLines
	}
	err := tx.QueryRow(ctx, `INSERT INTO material_requests (work_order_id, warehouse_id, status, requester_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		request.WorkOrderID, request.WarehouseID, string(request.Status), request.RequesterID).
		Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return MaterialRequest{}, ErrRequestExists
		}
		return MaterialRequest{}, err
	}
	for i := range request.Lines {
		line := &request.Lines[i]
		line.RequestID = request.ID
		if err := tx.QueryRow(ctx, `INSERT INTO material_request_lines (request_id, component_id, quantity)
VALUES ($1, $2, $3) RETURNING id`, request.ID, line.ComponentID, line.Quantity).Scan(&line.ID); err != nil {
			return MaterialRequest{}, err
		}
	}
	return request, nil
}
