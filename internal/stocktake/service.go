package stocktake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foundry-mes/foundry-mes/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSession(ctx context.Context, id int64) (Session, error)
	ListSessions(ctx context.Context, warehouseID int64, page, limit int) ([]Session, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	HasActiveSession(ctx context.Context, warehouseID int64) (bool, error)
	InsertSession(ctx context.Context, session Session) (Session, error)
	SnapshotStock(ctx context.Context, warehouseID int64) (map[int64]int64, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	GetSessionForUpdate(ctx context.Context, id int64) (Session, error)
	SetItemCount(ctx context.Context, sessionID, componentID, actual int64) (bool, error)
	CountUncounted(ctx context.Context, sessionID int64) (int64, error)
	SetFinalized(ctx context.Context, id int64, at time.Time) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config carries the unexpected-item policy: by default a component counted
// without a snapshot row is added with system quantity zero and a note;
// RejectUnexpected turns that into an error instead.
type Config struct {
	RejectUnexpected bool
}

type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	audit  AuditPort
	cfg    Config
}

func NewService(logger *slog.Logger, repo RepositoryPort, audit AuditPort, cfg Config) *Service {
	return &Service{logger: logger, repo: repo, audit: audit, cfg: cfg}
}

// OpenSession snapshots every stock row of the warehouse into items with a
// nil actual quantity. A warehouse carries at most one IN_PROGRESS session;
// a partial unique index backs the in-transaction check.
func (s *Service) OpenSession(ctx context.Context, warehouseID, actorID int64) (Session, error) {
	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.HasActiveSession(ctx, warehouseID)
		if err != nil {
			return err
		}
		if active {
			return ErrSessionAlreadyActive
		}
		session, err = tx.InsertSession(ctx, Session{
			WarehouseID: warehouseID,
			Status:      SessionInProgress,
			OpenedBy:    actorID,
			OpenedAt:    time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		snapshot, err := tx.SnapshotStock(ctx, warehouseID)
		if err != nil {
			return err
		}
		for componentID, quantity := range snapshot {
			item, err := tx.InsertItem(ctx, Item{
				SessionID:      session.ID,
				ComponentID:    componentID,
				SystemQuantity: quantity,
			})
			if err != nil {
				return err
			}
			session.Items = append(session.Items, item)
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, actorID, "stocktake:open", session.ID)
	return session, nil
}

// RecordCounts stores counted quantities against the snapshot. Components
// found on the floor with no snapshot row follow the configured policy.
func (s *Service) RecordCounts(ctx context.Context, sessionID, actorID int64, counts []Count) error {
	if len(counts) == 0 {
		return nil
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != SessionInProgress {
			return ErrSessionClosed
		}
		for _, count := range counts {
			if count.ActualQuantity < 0 {
				return ErrNegativeCount
			}
			found, err := tx.SetItemCount(ctx, sessionID, count.ComponentID, count.ActualQuantity)
			if err != nil {
				return err
			}
			if found {
				continue
			}
			if s.cfg.RejectUnexpected {
				return fmt.Errorf("%w: component %d", ErrUnexpectedComponent, count.ComponentID)
			}
			actual := count.ActualQuantity
			if _, err := tx.InsertItem(ctx, Item{
				SessionID:      sessionID,
				ComponentID:    count.ComponentID,
				SystemQuantity: 0,
				ActualQuantity: &actual,
				Note:           unexpectedItemNote,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stocktake:count", sessionID)
	return nil
}

// Finalize closes the session. Every item must have been counted; stock is
// deliberately left untouched, reconciliation is a separate step.
func (s *Service) Finalize(ctx context.Context, sessionID, actorID int64) (Session, error) {
	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := machine.Transition(current.Status, SessionCompleted); err != nil {
			return err
		}
		uncounted, err := tx.CountUncounted(ctx, sessionID)
		if err != nil {
			return err
		}
		if uncounted > 0 {
			return fmt.Errorf("%w: %d items remaining", ErrIncompleteCount, uncounted)
		}
		finalizedAt := time.Now().UTC()
		if err := tx.SetFinalized(ctx, sessionID, finalizedAt); err != nil {
			return err
		}
		current.Status = SessionCompleted
		current.FinalizedAt = &finalizedAt
		session = current
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, actorID, "stocktake:finalize", sessionID)
	return session, nil
}

// VarianceReport returns only the items whose counted quantity differs from
// the snapshot.
func (s *Service) VarianceReport(ctx context.Context, sessionID int64) ([]VarianceLine, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var lines []VarianceLine
	for _, item := range session.Items {
		if item.ActualQuantity == nil {
			continue
		}
		variance := *item.ActualQuantity - item.SystemQuantity
		if variance == 0 {
			continue
		}
		lines = append(lines, VarianceLine{
			ComponentID:    item.ComponentID,
			SystemQuantity: item.SystemQuantity,
			ActualQuantity: *item.ActualQuantity,
			Variance:       variance,
		})
	}
	return lines, nil
}

func (s *Service) GetSession(ctx context.Context, id int64) (Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, warehouseID int64, page, limit int) ([]Session, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.ListSessions(ctx, warehouseID, page, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stocktake_session",
		EntityID: fmt.Sprintf("%d", id),
	})
}
