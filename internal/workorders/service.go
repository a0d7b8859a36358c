package workorders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/materials"
	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (WorkOrder, error)
	List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error)
	GetBatch(ctx context.Context, workOrderID int64) (ProductionBatch, []ProductInstance, error)
}

// RequestRef is the slice of a production request the engine checks before
// creating a work order against it.
type RequestRef struct {
	ID        int64
	ProductID int64
	Status    string
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetRequestForUpdate(ctx context.Context, id int64) (RequestRef, error)
	NextCode(ctx context.Context) (string, error)
	InsertWorkOrder(ctx context.Context, order WorkOrder) (WorkOrder, error)
	InsertFulfillment(ctx context.Context, requestID, workOrderID int64) error
	GetForUpdate(ctx context.Context, id int64) (WorkOrder, error)
	SetStarted(ctx context.Context, id int64, at time.Time) error
	SetCompleted(ctx context.Context, id int64, at time.Time) error
	InsertMaterialRequest(ctx context.Context, request materials.MaterialRequest) (materials.MaterialRequest, error)
	InsertBatch(ctx context.Context, batch ProductionBatch) (ProductionBatch, error)
	InsertInstance(ctx context.Context, instance ProductInstance) (ProductInstance, error)
	AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error)
}

// MaterialBuilder assembles (without persisting) the material request a
// starting work order needs.
type MaterialBuilder interface {
	BuildRequest(ctx context.Context, workOrderID, productID, quantity, actorID int64) (materials.MaterialRequest, error)
}

// IdempotencyPort guards completions against double-posting.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts completions and ledger movements.
type MetricsPort interface {
	ObserveStockMovement(txType string)
	ObserveWorkOrderCompletion()
}

// Service drives a work order through PLANNED, IN_PROGRESS and COMPLETED,
// creating the material request on start and minting the batch, serialized
// instances and import ledger rows on completion.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	materials   MaterialBuilder
	idempotency IdempotencyPort
	audit       AuditPort
	metrics     MetricsPort
	warehouseID int64
}

func NewService(logger *slog.Logger, repo RepositoryPort, builder MaterialBuilder,
	idempotency IdempotencyPort, audit AuditPort, metrics MetricsPort, warehouseID int64) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		materials:   builder,
		idempotency: idempotency,
		audit:       audit,
		metrics:     metrics,
		warehouseID: warehouseID,
	}
}

// Create opens a PLANNED work order against an approved production request.
// The request row is locked so its status cannot change underneath the
// fulfillment link.
func (s *Service) Create(ctx context.Context, input CreateInput) (WorkOrder, error) {
	if input.Quantity <= 0 {
		return WorkOrder{}, ErrInvalidQuantity
	}
	var created WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ref, err := tx.GetRequestForUpdate(ctx, input.ProductionRequestID)
		if err != nil {
			return err
		}
		if ref.Status != "APPROVED" {
			return ErrRequestNotApproved
		}
		if ref.ProductID != input.ProductID {
			return ErrProductMismatch
		}
		code, err := tx.NextCode(ctx)
		if err != nil {
			return err
		}
		created, err = tx.InsertWorkOrder(ctx, WorkOrder{
			Code:                code,
			ProductID:           input.ProductID,
			ProductionRequestID: input.ProductionRequestID,
			Quantity:            input.Quantity,
			AssignedLine:        input.AssignedLine,
			Status:              StatusPlanned,
			CreatedBy:           input.ActorID,
		})
		if err != nil {
			return err
		}
		return tx.InsertFulfillment(ctx, input.ProductionRequestID, created.ID)
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "work_order:create", created.ID)
	return created, nil
}

// Start flips PLANNED to IN_PROGRESS and creates the material request in
// the same transaction. If the bill of materials cannot be resolved the
// whole transaction aborts and the order stays PLANNED.
func (s *Service) Start(ctx context.Context, id, actorID int64) (WorkOrder, materials.MaterialRequest, error) {
	var (
		order   WorkOrder
		request materials.MaterialRequest
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(current.Status, StatusInProgress); err != nil {
			return err
		}
		built, err := s.materials.BuildRequest(ctx, current.ID, current.ProductID, current.Quantity, actorID)
		if err != nil {
			return err
		}
		request, err = tx.InsertMaterialRequest(ctx, built)
		if err != nil {
			return err
		}
		startedAt := time.Now().UTC()
		if err := tx.SetStarted(ctx, id, startedAt); err != nil {
			return err
		}
		current.Status = StatusInProgress
		current.StartedAt = &startedAt
		order = current
		return nil
	})
	if err != nil {
		return WorkOrder{}, materials.MaterialRequest{}, err
	}
	s.recordAudit(ctx, actorID, "work_order:start", id)
	return order, request, nil
}

// Complete finishes an IN_PROGRESS order: one batch, quantityProduced
// serialized instances and one quantity-1 import ledger row per instance,
// then the status flip, all in one transaction. An idempotency key keyed on
// the order code rejects a double-posted completion; the key is removed
// again when the transaction rolls back.
func (s *Service) Complete(ctx context.Context, id int64, input CompleteInput) (WorkOrder, ProductionBatch, error) {
	if input.QuantityProduced <= 0 {
		return WorkOrder{}, ProductionBatch{}, ErrInvalidQuantity
	}
	pre, err := s.repo.Get(ctx, id)
	if err != nil {
		return WorkOrder{}, ProductionBatch{}, err
	}
	idemKey := "WO-COMPLETE:" + pre.Code
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "workorders"); err != nil {
			return WorkOrder{}, ProductionBatch{}, err
		}
	}

	var (
		order WorkOrder
		batch ProductionBatch
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(current.Status, StatusCompleted); err != nil {
			return err
		}

		now := time.Now().UTC()
		batchCode := input.BatchCodeOverride
		if batchCode == "" {
			batchCode = fmt.Sprintf("%s-%s", current.Code, now.Format("20060102"))
		}
		batch, err = tx.InsertBatch(ctx, ProductionBatch{
			WorkOrderID:    current.ID,
			Code:           batchCode,
			ProductionDate: now,
			ExpiryDate:     input.ExpiryDate,
		})
		if err != nil {
			return err
		}

		for seq := int64(1); seq <= input.QuantityProduced; seq++ {
			instance, err := tx.InsertInstance(ctx, ProductInstance{
				ProductID:    current.ProductID,
				BatchID:      batch.ID,
				SerialNumber: fmt.Sprintf("SN-%s-%s-%03d", current.ProductCode, batch.Code, seq),
				Status:       InstanceInStock,
			})
			if err != nil {
				return err
			}
			instanceID := instance.ID
			if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
				Type:              inventory.TransactionImportProduction,
				WarehouseID:       s.warehouseID,
				ProductInstanceID: &instanceID,
				Quantity:          1,
				ActorID:           input.ActorID,
			}); err != nil {
				return err
			}
		}

		if err := tx.SetCompleted(ctx, id, now); err != nil {
			return err
		}
		current.Status = StatusCompleted
		current.CompletedAt = &now
		order = current
		return nil
	})
	if err != nil {
		if s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idemKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr), slog.String("key", idemKey))
			}
		}
		return WorkOrder{}, ProductionBatch{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveWorkOrderCompletion()
		for i := int64(0); i < input.QuantityProduced; i++ {
			s.metrics.ObserveStockMovement(string(inventory.TransactionImportProduction))
		}
	}
	s.recordAudit(ctx, input.ActorID, "work_order:complete", id)
	return order, batch, nil
}

func (s *Service) Get(ctx context.Context, id int64) (WorkOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, filter)
}

// GetBatch returns the completion batch and its instances.
func (s *Service) GetBatch(ctx context.Context, workOrderID int64) (ProductionBatch, []ProductInstance, error) {
	return s.repo.GetBatch(ctx, workOrderID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "work_order",
		EntityID: fmt.Sprintf("%d", id),
	})
}
