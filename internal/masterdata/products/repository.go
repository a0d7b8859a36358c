package products

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
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetByCode(ctx context.Context, code string) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Delete(ctx context.Context, id int64) error
	CountReferences(ctx context.Context, id int64) (int64, error)

	ListLines(ctx context.Context, productID int64) ([]CompositionLine, error)
	AddLine(ctx context.Context, line CompositionLine) (CompositionLine, error)
	UpdateLine(ctx context.Context, lineID int64, line CompositionLine) error
	DeleteLine(ctx context.Context, lineID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, code, name, description, unit, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
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

	query += ` ORDER BY code ASC`
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

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code).
		Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO products (code, name, description, unit, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		product.Code, product.Name, product.Description, product.Unit, product.IsActive).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, err
	}
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET name = $1, description = $2, unit = $3, is_active = $4, updated_at = NOW() WHERE id = $5`,
		product.Name, product.Description, product.Unit, product.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) CountReferences(ctx context.Context, id int64) (int64, error) {
	var refs int64
	err := r.db.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM work_orders WHERE product_id = $1)
+ (SELECT COUNT(*) FROM production_requests WHERE product_id = $1)
+ (SELECT COUNT(*) FROM product_instances WHERE product_id = $1)`, id).Scan(&refs)
	return refs, err
}

func (r *repository) ListLines(ctx context.Context, productID int64) ([]CompositionLine, error) {
	rows, err := r.db.Query(ctx, `SELECT pc.id, pc.product_id, pc.component_id, c.code, c.name, pc.quantity_needed, pc.created_at, pc.updated_at
FROM product_compositions pc
JOIN components c ON c.id = pc.component_id
WHERE pc.product_id = $1
ORDER BY c.code`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []CompositionLine
	for rows.Next() {
		var l CompositionLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ComponentID, &l.ComponentCode, &l.ComponentName, &l.QuantityNeeded, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) AddLine(ctx context.Context, line CompositionLine) (CompositionLine, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO product_compositions (product_id, component_id, quantity_needed, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		line.ProductID, line.ComponentID, line.QuantityNeeded).
		Scan(&line.ID, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return CompositionLine{}, ErrDuplicateLine
			case "23503":
				return CompositionLine{}, ErrUnknownComponent
			}
		}
		return CompositionLine{}, err
	}
	return line, nil
}

func (r *repository) UpdateLine(ctx context.Context, lineID int64, line CompositionLine) error {
	tag, err := r.db.Exec(ctx, `UPDATE product_compositions SET quantity_needed = $1, updated_at = NOW() WHERE id = $2`,
		line.QuantityNeeded, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteLine(ctx context.Context, lineID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM product_compositions WHERE id = $1`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
