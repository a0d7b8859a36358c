package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevels(ctx context.Context, warehouseID int64) ([]ComponentStock, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, warehouseID, componentID int64) (ComponentStock, error)
	UpsertStock(ctx context.Context, stock ComponentStock) error
	InsertTransaction(ctx context.Context, entry Transaction) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger movements.
type MetricsPort interface {
	ObserveStockMovement(txType string)
}

// Service coordinates direct stock operations: manual adjustments and the
// read side of the ledger. Production, purchasing and sales post their
// movements through Ledger inside their own transactions.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// PostAdjustment applies a manual correction. The delta may be negative but
// the resulting quantity must stay at or above zero.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (ComponentStock, error) {
	if input.WarehouseID == 0 || input.ComponentID == 0 {
		return ComponentStock{}, errors.New("inventory: warehouse and component required")
	}
	if input.Delta == 0 {
		return ComponentStock{}, ErrInvalidQuantity
	}
	var result ComponentStock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.WarehouseID, input.ComponentID)
		if err != nil && !errors.Is(err, ErrStockNotFound) {
			return err
		}
		newQty := stock.Quantity + input.Delta
		if newQty < 0 {
			return &InsufficientStockError{ComponentID: input.ComponentID, Needed: -input.Delta, Available: stock.Quantity}
		}
		stock.WarehouseID = input.WarehouseID
		stock.ComponentID = input.ComponentID
		stock.Quantity = newQty
		if err := tx.UpsertStock(ctx, stock); err != nil {
			return err
		}
		qty := input.Delta
		if qty < 0 {
			qty = -qty
		}
		entry := Transaction{
			Type:        TransactionAdjustment,
			WarehouseID: input.WarehouseID,
			ComponentID: &input.ComponentID,
			Quantity:    qty,
			ActorID:     input.ActorID,
			Note:        input.Note,
		}
		if _, err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}
		result = stock
		return nil
	})
	if err != nil {
		return ComponentStock{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveStockMovement(string(TransactionAdjustment))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:adjust",
			Entity:   "component_stock",
			EntityID: fmt.Sprintf("%d:%d", input.WarehouseID, input.ComponentID),
			Meta: map[string]any{
				"delta": input.Delta,
				"note":  input.Note,
			},
		})
	}
	return result, nil
}

// GetStockLevels lists current stock rows for a warehouse.
func (s *Service) GetStockLevels(ctx context.Context, warehouseID int64) ([]ComponentStock, error) {
	if warehouseID == 0 {
		return nil, errors.New("inventory: warehouse required")
	}
	return s.repo.GetStockLevels(ctx, warehouseID)
}

// ListTransactions lists ledger rows, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}
