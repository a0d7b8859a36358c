package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (SalesOrder, error)
	List(ctx context.Context, status Status, page, limit int) ([]SalesOrder, int, error)
	GetShipment(ctx context.Context, orderID int64) (Shipment, error)
}

// InstanceRef is the slice of a product instance the fulfillment picks.
type InstanceRef struct {
	ID           int64
	ProductID    int64
	SerialNumber string
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (SalesOrder, error)
	Insert(ctx context.Context, order SalesOrder) (SalesOrder, error)
	SetStatus(ctx context.Context, id int64, from, to Status) error
	SetFulfilled(ctx context.Context, id int64, at time.Time) error
	// OldestInStock locks up to limit IN_STOCK instances of one product,
	// oldest first.
	OldestInStock(ctx context.Context, productID, limit int64) ([]InstanceRef, error)
	MarkShipped(ctx context.Context, instanceID, orderID int64) error
	AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger movements.
type MetricsPort interface {
	ObserveStockMovement(txType string)
}

// Service drives a sales order from DRAFT through CONFIRMED to FULFILLED.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	audit       AuditPort
	metrics     MetricsPort
	warehouseID int64
}

func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort, metrics MetricsPort, warehouseID int64) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, metrics: metrics, warehouseID: warehouseID}
}

// Create opens a draft order with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (SalesOrder, error) {
	if input.CustomerName == "" {
		return SalesOrder{}, ErrEmptyCustomer
	}
	if len(input.Lines) == 0 {
		return SalesOrder{}, ErrNoLines
	}
	order := SalesOrder{
		CustomerName: input.CustomerName,
		Status:       StatusDraft,
		CreatedBy:    input.ActorID,
		Note:         input.Note,
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return SalesOrder{}, ErrInvalidQuantity
		}
		order.Lines = append(order.Lines, Line{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	var created SalesOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, order)
		return err
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "sales_order:create", created.ID)
	return created, nil
}

// Confirm moves DRAFT to CONFIRMED; the order needs at least one line.
func (s *Service) Confirm(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusConfirmed,
			statemachine.HasLines(len(order.Lines))); err != nil {
			return err
		}
		return tx.SetStatus(ctx, id, StatusDraft, StatusConfirmed)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sales_order:confirm", id)
	return nil
}

// Cancel is allowed while the order is DRAFT or CONFIRMED.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusCancelled); err != nil {
			return err
		}
		return tx.SetStatus(ctx, id, order.Status, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sales_order:cancel", id)
	return nil
}

// Fulfil ships a confirmed order: every line takes its quantity from the
// oldest IN_STOCK instances of the product, each shipped unit gets one
// quantity-1 export ledger row, then the order flips to FULFILLED. A line
// that cannot be covered aborts the whole transaction, so a partially
// shippable order ships nothing.
func (s *Service) Fulfil(ctx context.Context, id, actorID int64) (Shipment, error) {
	var shipment Shipment
	var shipped int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusFulfilled); err != nil {
			return err
		}
		shipment = Shipment{OrderID: order.ID}
		for _, line := range order.Lines {
			refs, err := tx.OldestInStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if int64(len(refs)) < line.Quantity {
				return &InsufficientInstancesError{
					ProductID: line.ProductID,
					Needed:    line.Quantity,
					Available: int64(len(refs)),
				}
			}
			for _, ref := range refs {
				if err := tx.MarkShipped(ctx, ref.ID, order.ID); err != nil {
					return err
				}
				instanceID := ref.ID
				if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
					Type:              inventory.TransactionExportSale,
					WarehouseID:       s.warehouseID,
					ProductInstanceID: &instanceID,
					Quantity:          1,
					ActorID:           actorID,
				}); err != nil {
					return err
				}
				shipment.Units = append(shipment.Units, ShippedUnit{
					ProductID:    ref.ProductID,
					InstanceID:   ref.ID,
					SerialNumber: ref.SerialNumber,
				})
			}
		}
		shipped = len(shipment.Units)
		return tx.SetFulfilled(ctx, id, time.Now().UTC())
	})
	if err != nil {
		return Shipment{}, err
	}
	if s.metrics != nil {
		for i := 0; i < shipped; i++ {
			s.metrics.ObserveStockMovement(string(inventory.TransactionExportSale))
		}
	}
	s.recordAudit(ctx, actorID, "sales_order:fulfil", id)
	return shipment, nil
}

func (s *Service) Get(ctx context.Context, id int64) (SalesOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, page, limit int) ([]SalesOrder, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.List(ctx, status, page, limit)
}

// GetShipment returns the serial numbers shipped for a fulfilled order.
func (s *Service) GetShipment(ctx context.Context, orderID int64) (Shipment, error) {
	return s.repo.GetShipment(ctx, orderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: fmt.Sprintf("%d", id),
	})
}
