package orders

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductChecker answers product existence queries against the masterdata
// schema without importing the products module.
type ProductChecker struct {
	pool *pgxpool.Pool
}

func NewProductChecker(pool *pgxpool.Pool) *ProductChecker {
	return &ProductChecker{pool: pool}
}

func (c *ProductChecker) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_active)`, productID).Scan(&exists)
	return exists, err
}
