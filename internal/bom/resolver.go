// Package bom resolves a product's bill of materials into whole-unit
// component requirements for a given build quantity.
package bom

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNoBOMDefined    = errors.New("product has no bill of materials")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Line is a single bill-of-materials entry as stored on the product.
type Line struct {
	ComponentID    int64
	QuantityNeeded decimal.Decimal
}

// Requirement is the resolved whole-unit demand for one component.
type Requirement struct {
	ComponentID int64 `json:"component_id"`
	Quantity    int64 `json:"quantity"`
}

// SourcePort supplies the stored composition lines for a product.
type SourcePort interface {
	CompositionLines(ctx context.Context, productID int64) ([]Line, error)
}

type Resolver struct {
	source SourcePort
}

func NewResolver(source SourcePort) *Resolver {
	return &Resolver{source: source}
}

// Resolve multiplies each line by the build quantity and rounds up, since
// components are issued in whole units. Fractional per-unit needs therefore
// over-reserve rather than under-reserve.
func (r *Resolver) Resolve(ctx context.Context, productID, quantity int64) ([]Requirement, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	lines, err := r.source.CompositionLines(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoBOMDefined
	}

	requirements := make([]Requirement, 0, len(lines))
	qty := decimal.NewFromInt(quantity)
	for _, line := range lines {
		required := line.QuantityNeeded.Mul(qty).Ceil().IntPart()
		requirements = append(requirements, Requirement{
			ComponentID: line.ComponentID,
			Quantity:    required,
		})
	}
	return requirements, nil
}
