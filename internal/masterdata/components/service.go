package components

import (
	"context"
	"errors"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Component, error) {
	if id <= 0 {
		return Component{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, component Component) (Component, error) {
	if err := s.validate(component); err != nil {
		return Component{}, err
	}
	if _, err := s.repo.GetByCode(ctx, component.Code); err == nil {
		return Component{}, shared.ErrDuplicate
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Component{}, err
	}
	return s.repo.Create(ctx, component)
}

// Update changes mutable attributes. The code is immutable once assigned.
func (s *Service) Update(ctx context.Context, id int64, component Component) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if component.Code != "" && component.Code != current.Code {
		return ErrCodeImmutable
	}
	component.Code = current.Code
	if err := s.validate(component); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, component)
}

// Delete removes a component unless a BOM line, purchase-order line or
// non-zero stock still references it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrComponentInUse
	}
	return s.repo.Delete(ctx, id)
}
