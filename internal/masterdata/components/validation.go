package components

import (
	"strings"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
)

func (s *Service) validate(c Component) error {
	if strings.TrimSpace(c.Code) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(c.Unit) == "" {
		return shared.ErrRequiredField
	}
	if c.MinStockLevel < 0 {
		return shared.ErrValidation
	}
	if c.StandardCost.IsNegative() {
		return shared.ErrValidation
	}
	return nil
}
