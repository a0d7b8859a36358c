package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/shared"
	"github.com/foundry-mes/foundry-mes/internal/statemachine"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (ProductionRequest, error)
	List(ctx context.Context, filter ListFilter) ([]ProductionRequest, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (ProductionRequest, error)
	Insert(ctx context.Context, request ProductionRequest) (ProductionRequest, error)
	SetDecision(ctx context.Context, id int64, status Status, approverID int64, decidedAt time.Time) error
}

// ProductPort verifies the requested product exists and is active.
type ProductPort interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
}

// NotifierPort delivers fire-and-forget notifications.
type NotifierPort interface {
	Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort keeps the decision history of a request.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	products  ProductPort
	notifier  NotifierPort
	audit     AuditPort
	approvals ApprovalPort
}

func NewService(logger *slog.Logger, repo RepositoryPort, products ProductPort, notifier NotifierPort,
	audit AuditPort, approvals ApprovalPort) *Service {
	return &Service{logger: logger, repo: repo, products: products, notifier: notifier, audit: audit, approvals: approvals}
}

// Create registers a pending demand for quantity units of a product.
func (s *Service) Create(ctx context.Context, input CreateInput) (ProductionRequest, error) {
	if input.Quantity <= 0 {
		return ProductionRequest{}, ErrInvalidQuantity
	}
	if input.RequesterID == 0 {
		return ProductionRequest{}, errors.New("orders: requester required")
	}
	exists, err := s.products.ProductExists(ctx, input.ProductID)
	if err != nil {
		return ProductionRequest{}, err
	}
	if !exists {
		return ProductionRequest{}, ErrUnknownProduct
	}

	var created ProductionRequest
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err = tx.Insert(ctx, ProductionRequest{
			ProductID:   input.ProductID,
			Quantity:    input.Quantity,
			Status:      StatusPending,
			RequesterID: input.RequesterID,
			Note:        input.Note,
		})
		return err
	})
	if err != nil {
		return ProductionRequest{}, err
	}
	s.recordAudit(ctx, input.RequesterID, "production_request:create", created.ID, nil)
	return created, nil
}

// Approve decides a pending request. The requester can never approve their
// own request, and a decided request rejects any further decision.
func (s *Service) Approve(ctx context.Context, id, approverID int64) (ProductionRequest, error) {
	return s.decide(ctx, id, approverID, StatusApproved)
}

// Reject is the negative decision, under the same guards as Approve.
func (s *Service) Reject(ctx context.Context, id, approverID int64) (ProductionRequest, error) {
	return s.decide(ctx, id, approverID, StatusRejected)
}

func (s *Service) decide(ctx context.Context, id, approverID int64, target Status) (ProductionRequest, error) {
	var request ProductionRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := machine.Transition(current.Status, target,
			statemachine.NotSelfApproval(current.RequesterID, approverID)); err != nil {
			return err
		}
		decidedAt := time.Now().UTC()
		if err := tx.SetDecision(ctx, id, target, approverID, decidedAt); err != nil {
			return err
		}
		current.Status = target
		current.ApproverID = &approverID
		current.DecidedAt = &decidedAt
		request = current
		return nil
	})
	if err != nil {
		return ProductionRequest{}, err
	}

	s.recordAudit(ctx, approverID, "production_request:"+string(target), id, nil)
	if s.approvals != nil {
		action := shared.ApprovalApprove
		if target == StatusRejected {
			action = shared.ApprovalReject
		}
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "production_request",
			RefID:   id,
			ActorID: approverID,
			Action:  action,
		}); err != nil {
			s.logger.Warn("record approval", slog.Any("error", err), slog.Int64("request_id", id))
		}
	}
	if s.notifier != nil {
		title := "Production request approved"
		if target == StatusRejected {
			title = "Production request rejected"
		}
		if err := s.notifier.Notify(ctx, request.RequesterID, "production_request", title,
			fmt.Sprintf("Request #%d for product %d was %s", id, request.ProductID, target),
			"production_request", id); err != nil {
			s.logger.Warn("notify requester", slog.Any("error", err), slog.Int64("request_id", id))
		}
	}
	return request, nil
}

func (s *Service) Get(ctx context.Context, id int64) (ProductionRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]ProductionRequest, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 20
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_request",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
