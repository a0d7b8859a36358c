package products

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
)

type memoryRepo struct {
	products map[int64]Product
	lines    map[int64]CompositionLine
	refs     map[int64]int64
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: make(map[int64]Product),
		lines:    make(map[int64]CompositionLine),
		refs:     make(map[int64]int64),
	}
}

func (r *memoryRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Product, error) {
	for _, p := range r.products {
		if p.Code == code {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (Product, error) {
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, product Product) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	product.ID = id
	r.products[id] = product
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) CountReferences(ctx context.Context, id int64) (int64, error) {
	return r.refs[id], nil
}

func (r *memoryRepo) ListLines(ctx context.Context, productID int64) ([]CompositionLine, error) {
	var out []CompositionLine
	for _, l := range r.lines {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) AddLine(ctx context.Context, line CompositionLine) (CompositionLine, error) {
	for _, l := range r.lines {
		if l.ProductID == line.ProductID && l.ComponentID == line.ComponentID {
			return CompositionLine{}, ErrDuplicateLine
		}
	}
	r.nextID++
	line.ID = r.nextID
	r.lines[line.ID] = line
	return line, nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, lineID int64, line CompositionLine) error {
	current, ok := r.lines[lineID]
	if !ok {
		return shared.ErrNotFound
	}
	current.QuantityNeeded = line.QuantityNeeded
	r.lines[lineID] = current
	return nil
}

func (r *memoryRepo) DeleteLine(ctx context.Context, lineID int64) error {
	if _, ok := r.lines[lineID]; !ok {
		return shared.ErrNotFound
	}
	delete(r.lines, lineID)
	return nil
}

func TestAddLineRejectsDuplicateComponent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, Product{Code: "PRD-001", Name: "Pump", Unit: "pcs"})
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, CompositionLine{ProductID: product.ID, ComponentID: 7, QuantityNeeded: decimal.NewFromFloat(2.5)})
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, CompositionLine{ProductID: product.ID, ComponentID: 7, QuantityNeeded: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrDuplicateLine)
}

func TestAddLineRequiresPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, Product{Code: "PRD-001", Name: "Pump", Unit: "pcs"})
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, CompositionLine{ProductID: product.ID, ComponentID: 7, QuantityNeeded: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddLine(ctx, CompositionLine{ProductID: product.ID, ComponentID: 7, QuantityNeeded: decimal.NewFromInt(-3)})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeleteGuardedByReferences(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, Product{Code: "PRD-001", Name: "Pump", Unit: "pcs"})
	require.NoError(t, err)

	repo.refs[product.ID] = 1
	require.ErrorIs(t, svc.Delete(ctx, product.ID), ErrProductInUse)
}

func TestUpdateKeepsCodeImmutable(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	product, err := svc.Create(ctx, Product{Code: "PRD-001", Name: "Pump", Unit: "pcs"})
	require.NoError(t, err)

	err = svc.Update(ctx, product.ID, Product{Code: "PRD-002", Name: "Pump", Unit: "pcs"})
	require.ErrorIs(t, err, ErrCodeImmutable)
}
