package materials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/bom"
	"github.com/foundry-mes/foundry-mes/internal/inventory"
	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (MaterialRequest, error)
	GetSlip(ctx context.Context, id int64) (DispatchSlip, error)
	List(ctx context.Context, status Status, page, limit int) ([]MaterialRequest, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (MaterialRequest, error)
	RequestExists(ctx context.Context, workOrderID int64) (bool, error)
	InsertRequest(ctx context.Context, request MaterialRequest) (MaterialRequest, error)
	SetApproved(ctx context.Context, id, approverID int64, approvedAt time.Time) error
	DeductStock(ctx context.Context, warehouseID, componentID, qty int64) (inventory.ComponentStock, error)
	AppendTransaction(ctx context.Context, entry inventory.Transaction) (int64, error)
}

// BOMPort resolves a product's composition into whole-unit requirements.
type BOMPort interface {
	Resolve(ctx context.Context, productID, quantity int64) ([]bom.Requirement, error)
}

// WorkOrderSource supplies the fields of a work order the engine needs.
type WorkOrderSource interface {
	WorkOrderRef(ctx context.Context, id int64) (WorkOrderRef, error)
}

type WorkOrderRef struct {
	ID        int64
	Code      string
	ProductID int64
	Quantity  int64
	Status    string
}

// NotifierPort delivers fire-and-forget notifications.
type NotifierPort interface {
	Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger movements.
type MetricsPort interface {
	ObserveStockMovement(txType string)
}

// Service is the material-request engine: it turns a work order's bill of
// materials into a warehouse-issue ticket and settles that ticket against
// stock on approval.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	resolver    BOMPort
	workOrders  WorkOrderSource
	notifier    NotifierPort
	audit       AuditPort
	metrics     MetricsPort
	warehouseID int64
}

func NewService(logger *slog.Logger, repo RepositoryPort, resolver BOMPort, workOrders WorkOrderSource,
	notifier NotifierPort, audit AuditPort, metrics MetricsPort, warehouseID int64) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		resolver:    resolver,
		workOrders:  workOrders,
		notifier:    notifier,
		audit:       audit,
		metrics:     metrics,
		warehouseID: warehouseID,
	}
}

// BuildRequest resolves the bill of materials for productID times quantity
// and assembles a pending request. It persists nothing: the caller stores
// the result inside its own transaction so a failed store leaves no trace.
func (s *Service) BuildRequest(ctx context.Context, workOrderID, productID, quantity, actorID int64) (MaterialRequest, error) {
	requirements, err := s.resolver.Resolve(ctx, productID, quantity)
	if err != nil {
		return MaterialRequest{}, err
	}
	request := MaterialRequest{
		WorkOrderID: workOrderID,
		WarehouseID: s.warehouseID,
		Status:      StatusPending,
		RequesterID: actorID,
	}
	for _, req := range requirements {
		request.Lines = append(request.Lines, Line{ComponentID: req.ComponentID, Quantity: req.Quantity})
	}
	return request, nil
}

// CreateFromWorkOrder builds and stores a pending request for an existing
// work order. A work order is issued material at most once: the transaction
// re-checks for an existing request before inserting, and the partial unique
// index on material_requests backs the check against a concurrent insert.
// Resolution failure (no bill of materials) propagates to the caller before
// anything is written.
func (s *Service) CreateFromWorkOrder(ctx context.Context, workOrderID, actorID int64) (MaterialRequest, error) {
	ref, err := s.workOrders.WorkOrderRef(ctx, workOrderID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if ref.Status == "COMPLETED" {
		return MaterialRequest{}, ErrWorkOrderCompleted
	}
	request, err := s.BuildRequest(ctx, ref.ID, ref.ProductID, ref.Quantity, actorID)
	if err != nil {
		return MaterialRequest{}, err
	}
	var created MaterialRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.RequestExists(ctx, workOrderID)
		if err != nil {
			return err
		}
		if exists {
			return ErrRequestExists
		}
		created, err = tx.InsertRequest(ctx, request)
		return err
	})
	if err != nil {
		return MaterialRequest{}, err
	}
	s.recordAudit(ctx, actorID, "material_request:create", created.ID)
	return created, nil
}

// Approve settles a pending request against warehouse stock. The whole
// operation is one transaction: every line is checked and deducted with the
// stock rows locked, one EXPORT_PRODUCTION ledger row is appended per line,
// and the request flips to APPROVED. Any shortfall aborts everything, so a
// failed approval leaves stock and status untouched. A second concurrent
// approval observes the APPROVED row and fails the transition guard.
func (s *Service) Approve(ctx context.Context, requestID, approverID int64) (MaterialRequest, error) {
	var approved MaterialRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		request, err := tx.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := machine.Transition(request.Status, StatusApproved,
			statemachine.NotSelfApproval(request.RequesterID, approverID),
			statemachine.HasLines(len(request.Lines))); err != nil {
			return err
		}
		for _, line := range request.Lines {
			if _, err := tx.DeductStock(ctx, request.WarehouseID, line.ComponentID, line.Quantity); err != nil {
				return err
			}
			componentID := line.ComponentID
			if _, err := tx.AppendTransaction(ctx, inventory.Transaction{
				Type:              inventory.TransactionExportProduction,
				WarehouseID:       request.WarehouseID,
				ComponentID:       &componentID,
				MaterialRequestID: &request.ID,
				Quantity:          line.Quantity,
				ActorID:           approverID,
			}); err != nil {
				return err
			}
		}
		approvedAt := time.Now().UTC()
		if err := tx.SetApproved(ctx, requestID, approverID, approvedAt); err != nil {
			return err
		}
		request.Status = StatusApproved
		request.ApproverID = &approverID
		request.ApprovedAt = &approvedAt
		approved = request
		return nil
	})
	if err != nil {
		return MaterialRequest{}, err
	}

	if s.metrics != nil {
		for range approved.Lines {
			s.metrics.ObserveStockMovement(string(inventory.TransactionExportProduction))
		}
	}
	s.recordAudit(ctx, approverID, "material_request:approve", requestID)
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, approved.RequesterID, "material_request", "Material request approved",
			fmt.Sprintf("Material request #%d for work order %d was approved", requestID, approved.WorkOrderID),
			"material_request", requestID); err != nil {
			s.logger.Warn("notify requester", slog.Any("error", err), slog.Int64("request_id", requestID))
		}
	}
	return approved, nil
}

// GetDispatchSlip is a read-only projection of an approved request.
func (s *Service) GetDispatchSlip(ctx context.Context, requestID int64) (DispatchSlip, error) {
	request, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return DispatchSlip{}, err
	}
	if request.Status != StatusApproved {
		return DispatchSlip{}, ErrNotApproved
	}
	slip, err := s.repo.GetSlip(ctx, requestID)
	if err != nil {
		return DispatchSlip{}, err
	}
	formatSlip(&slip)
	return slip, nil
}

func (s *Service) Get(ctx context.Context, id int64) (MaterialRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status Status, page, limit int) ([]MaterialRequest, int, error) {
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
		Entity:   "material_request",
		EntityID: fmt.Sprintf("%d", id),
	})
}
