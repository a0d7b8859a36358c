package components

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error)
	Get(ctx context.Context, id int64) (Component, error)
	GetByCode(ctx context.Context, code string) (Component, error)
	Create(ctx context.Context, component Component) (Component, error)
	Update(ctx context.Context, id int64, component Component) error
	Delete(ctx context.Context, id int64) error
	CountReferences(ctx context.Context, id int64) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const componentColumns = `id, code, name, unit, min_stock_level, standard_cost, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error) {
	query := `SELECT ` + componentColumns + ` FROM components WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM components WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		clause := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	offset := (filters.Page - 1) * filters.Limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Unit, &c.MinStockLevel, &c.StandardCost, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		components = append(components, c)
	}
	return components, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Component, error) {
	var c Component
	err := r.db.QueryRow(ctx, `SELECT `+componentColumns+` FROM components WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Unit, &c.MinStockLevel, &c.StandardCost, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Component{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Component, error) {
	var c Component
	err := r.db.QueryRow(ctx, `SELECT `+componentColumns+` FROM components WHERE code = $1`, code).
		Scan(&c.ID, &c.Code, &c.Name, &c.Unit, &c.MinStockLevel, &c.StandardCost, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Component{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, component Component) (Component, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO components (code, name, unit, min_stock_level, standard_cost, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		component.Code, component.Name, component.Unit, component.MinStockLevel, component.StandardCost).
		Scan(&component.ID, &component.CreatedAt, &component.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Component{}, shared.ErrDuplicate
		}
		return Component{}, err
	}
	return component, nil
}

func (r *repository) Update(ctx context.Context, id int64, component Component) error {
	tag, err := r.db.Exec(ctx, `UPDATE components SET name = $1, unit = $2, min_stock_level = $3, standard_cost = $4, updated_at = NOW() WHERE id = $5`,
		component.Name, component.Unit, component.MinStockLevel, component.StandardCost, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM components WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountReferences counts BOM lines, purchase-order lines and non-zero stock
// rows pointing at the component. Deletion is refused while any exist.
func (r *repository) CountReferences(ctx context.Context, id int64) (int64, error) {
	var refs int64
	err := r.db.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM product_compositions WHERE component_id = $1)
+ (SELECT COUNT(*) FROM purchase_order_lines WHERE component_id = $1)
+ (SELECT COUNT(*) FROM component_stocks WHERE component_id = $1 AND quantity > 0)`, id).Scan(&refs)
	return refs, err
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "code " + dir
	}
}
