package procurement

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
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, status Status, page, limit int) ([]PurchaseOrder, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	Insert(ctx context.Context, order PurchaseOrder) (PurchaseOrder, error)
	SetStatus(ctx context.Context, id int64, from, to Status) error
	SetApproved(ctx context.Context, id, approverID int64) error
	SetReceived(ctx context.Context, id int64, at time.Time) error
	CreditStock(ctx context.Context, warehouseID, componentID, qty int64) (inventory.ComponentStock, error)
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

type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, metrics: metrics}
}

// Create opens a draft order with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrNoLines
	}
	order := PurchaseOrder{
		SupplierID:  input.SupplierID,
		WarehouseID: input.WarehouseID,
		Status:      StatusDraft,
		CreatedBy:   input.ActorID,
		Note:        input.Note,
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return PurchaseOrder{}, ErrInvalidQuantity
		}
		order.Lines = append(order.Lines, Line{
			ComponentID: line.ComponentID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, order)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "purchase_order:create", created.ID)
	return created, nil
}

// Submit moves DRAFT to SUBMITTED; the order needs at least one line.
func (s *Service) Submit(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusSubmitted,
			statemachine.HasLines(len(order.Lines))); err != nil {
			return err
		}
		return tx.SetStatus(ctx, id, StatusDraft, StatusSubmitted)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "purchase_order:submit", id)
	return nil
}

// Approve moves SUBMITTED to APPROVED. The creator cannot approve their own
// order.
func (s *Service) Approve(ctx context.Context, id, approverID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusApproved,
			statemachine.NotSelfApproval(order.CreatedBy, approverID)); err != nil {
			return err
		}
		return tx.SetApproved(ctx, id, approverID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, approverID, "purchase_order:approve", id)
	return nil
}

// Cancel is allowed while the order is DRAFT or SUBMITTED.
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
	s.recordAudit(ctx, actorID, "purchase_order:cancel", id)
	return nil
}

// Receive books the delivery: every line credits stock and appends one
// IMPORT_PURCHASE ledger row, then the order flips to RECEIVED, all in one
// transaction.
func (s *Service) Receive(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	var received PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(order.Status, StatusReceived); err != nil {
			return err
		}
		for _, line := range order.Lines {
			if _, err := tx.CreditStock(ctx, order.WarehouseID, line.ComponentID, line.Quantity); err != nil {
				return err
			}
			componentID := line.ComponentID
			if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
				Type:        inventory.TransactionImportPurchase,
				WarehouseID: order.WarehouseID,
				ComponentID: &componentID,
				Quantity:    line.Quantity,
				ActorID:     actorID,
			}); err != nil {
				return err
			}
		}
		receivedAt := time.Now().UTC()
		if err := tx.SetReceived(ctx, id, receivedAt); err != nil {
			return err
		}
		order.Status = StatusReceived
		order.ReceivedAt = &receivedAt
		received = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if s.metrics != nil {
		for range received.Lines {
			s.metrics.ObserveStockMovement(string(inventory.TransactionImportPurchase))
		}
	}
	s.recordAudit(ctx, actorID, "purchase_order:receive", id)
	return received, nil
}

func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, page, limit int) ([]PurchaseOrder, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.List(ctx, status, page, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", id),
	})
}
