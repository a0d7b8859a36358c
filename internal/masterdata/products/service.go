package products

import (
	"context"
	"errors"
	"strings"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := validate(product); err != nil {
		return Product{}, err
	}
	if _, err := s.repo.GetByCode(ctx, product.Code); err == nil {
		return Product{}, shared.ErrDuplicate
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if product.Code != "" && product.Code != current.Code {
		return ErrCodeImmutable
	}
	product.Code = current.Code
	if err := validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrProductInUse
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListLines(ctx context.Context, productID int64) ([]CompositionLine, error) {
	if productID <= 0 {
		return nil, shared.ErrInvalidID
	}
	if _, err := s.repo.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListLines(ctx, productID)
}

// AddLine appends a bill-of-materials entry. A product carries at most one
// line per component.
func (s *Service) AddLine(ctx context.Context, line CompositionLine) (CompositionLine, error) {
	if line.ProductID <= 0 || line.ComponentID <= 0 {
		return CompositionLine{}, shared.ErrInvalidID
	}
	if !line.QuantityNeeded.IsPositive() {
		return CompositionLine{}, ErrInvalidQuantity
	}
	if _, err := s.repo.Get(ctx, line.ProductID); err != nil {
		return CompositionLine{}, err
	}
	return s.repo.AddLine(ctx, line)
}

func (s *Service) UpdateLine(ctx context.Context, lineID int64, line CompositionLine) error {
	if lineID <= 0 {
		return shared.ErrInvalidID
	}
	if !line.QuantityNeeded.IsPositive() {
		return ErrInvalidQuantity
	}
	return s.repo.UpdateLine(ctx, lineID, line)
}

func (s *Service) DeleteLine(ctx context.Context, lineID int64) error {
	if lineID <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.DeleteLine(ctx, lineID)
}

func validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" || strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Unit) == "" {
		return shared.ErrRequiredField
	}
	return nil
}
