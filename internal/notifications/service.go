package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	Get(ctx context.Context, id int64) (Notification, error)
	List(ctx context.Context, employeeID int64, unreadOnly bool, page, limit int) ([]Notification, int, error)
	MarkRead(ctx context.Context, employeeID, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, employeeID int64, at time.Time) (int64, error)
	CountUnread(ctx context.Context, employeeID int64) (int64, error)
}

// Enqueuer is the slice of asynq.Client the service needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service stores notifications and keeps a per-employee unread counter in
// Redis. The database row is the source of truth; the task queue and the
// counter are best effort and never fail the caller.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	tasks  Enqueuer
	cache  *redis.Client
	ttl    time.Duration
}

func NewService(logger *slog.Logger, repo RepositoryPort, tasks Enqueuer, cache *redis.Client) *Service {
	return &Service{logger: logger, repo: repo, tasks: tasks, cache: cache, ttl: 15 * time.Minute}
}

// Notify implements the notifier port the engine modules hold.
func (s *Service) Notify(ctx context.Context, employeeID int64, kind, title, message, entity string, entityID int64) error {
	created, err := s.repo.Insert(ctx, Notification{
		EmployeeID: employeeID,
		Kind:       kind,
		Title:      title,
		Message:    message,
		Entity:     entity,
		EntityID:   entityID,
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	if s.tasks != nil {
		task, err := NewDispatchTask(created)
		if err == nil {
			_, err = s.tasks.EnqueueContext(ctx, task, asynq.Queue("notifications"))
		}
		if err != nil {
			s.logger.Warn("enqueue notification dispatch",
				slog.Any("error", err), slog.Int64("notification_id", created.ID))
		}
	}
	s.bumpUnread(ctx, employeeID)
	return nil
}

// List returns the employee's notifications, newest first.
func (s *Service) List(ctx context.Context, employeeID int64, unreadOnly bool, page, limit int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.repo.List(ctx, employeeID, unreadOnly, page, limit)
}

// MarkRead flags one notification as read. Employees can only touch their
// own rows.
func (s *Service) MarkRead(ctx context.Context, employeeID, id int64) error {
	if err := s.repo.MarkRead(ctx, employeeID, id, time.Now().UTC()); err != nil {
		return err
	}
	s.invalidateUnread(ctx, employeeID)
	return nil
}

// MarkAllRead flags every unread notification of the employee as read and
// returns how many rows changed.
func (s *Service) MarkAllRead(ctx context.Context, employeeID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, employeeID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.invalidateUnread(ctx, employeeID)
	return n, nil
}

// UnreadCount serves the badge counter from Redis, falling back to a
// database count on a cache miss.
func (s *Service) UnreadCount(ctx context.Context, employeeID int64) (int64, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, unreadKey(employeeID)).Result()
		if err == nil {
			if n, convErr := strconv.ParseInt(cached, 10, 64); convErr == nil {
				return n, nil
			}
		}
	}
	n, err := s.repo.CountUnread(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, unreadKey(employeeID), n, s.ttl).Err(); err != nil {
			s.logger.Warn("cache unread count", slog.Any("error", err), slog.Int64("employee_id", employeeID))
		}
	}
	return n, nil
}

func (s *Service) bumpUnread(ctx context.Context, employeeID int64) {
	if s.cache == nil {
		return
	}
	key := unreadKey(employeeID)
	// only bump an existing counter; a miss repopulates from the database
	// on the next read
	exists, err := s.cache.Exists(ctx, key).Result()
	if err == nil && exists > 0 {
		err = s.cache.Incr(ctx, key).Err()
	}
	if err != nil {
		s.logger.Warn("bump unread count", slog.Any("error", err), slog.Int64("employee_id", employeeID))
	}
}

func (s *Service) invalidateUnread(ctx context.Context, employeeID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, unreadKey(employeeID)).Err(); err != nil {
		s.logger.Warn("invalidate unread count", slog.Any("error", err), slog.Int64("employee_id", employeeID))
	}
}

func unreadKey(employeeID int64) string {
	return fmt.Sprintf("notifications:unread:%d", employeeID)
}
