package bom

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Source reads composition lines straight from the products schema.
type Source struct {
	db *pgxpool.Pool
}

func NewSource(db *pgxpool.Pool) *Source {
	return &Source{db: db}
}

func (s *Source) CompositionLines(ctx context.Context, productID int64) ([]Line, error) {
	rows, err := s.db.Query(ctx, `SELECT component_id, quantity_needed FROM product_compositions WHERE product_id = $1 ORDER BY component_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ComponentID, &l.QuantityNeeded); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
