package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/utils/pagination"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Notification is the client view of a notification row.
type Notification struct {
	ID          uint64          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data,omitempty"`
	IsRead      bool            `json:"is_read"`
	IsDismissed bool            `json:"is_dismissed"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Draft describes a notification to create.
type Draft struct {
	UserID  uint64
	Type    string
	Title   string
	Message string
	Data    any
}

// Service stores notifications and pushes them to their owner's room.
// Rows are never deleted: read and dismissed are soft flags.
type Service struct {
	appCtx *app.AppContext
	repo   *repository.NotificationRepository
}

func NewNotificationService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		repo:   repository.NewNotificationRepository(appCtx.DB),
	}
}

// Create inserts drafts on tx (the service DB when nil). Nothing is pushed:
// call Publish with the result once the surrounding transaction committed.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, drafts ...Draft) ([]db.Notification, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	created := make([]db.Notification, 0, len(drafts))
	for _, d := range drafts {
		row := db.Notification{
			UserID:  d.UserID,
			Type:    d.Type,
			Title:   d.Title,
			Message: d.Message,
		}
		if d.Data != nil {
			raw, err := json.Marshal(d.Data)
			if err != nil {
				return nil, err
			}
			row.Data = datatypes.JSON(raw)
		}
		if err := repo.Create(ctx, &row); err != nil {
			return nil, err
		}
		created = append(created, row)
	}
	return created, nil
}

// Publish emits new_notification to each owner and drops their cached
// unread counters.
func (s *Service) Publish(ctx context.Context, created []db.Notification) {
	for _, n := range created {
		s.invalidate(ctx, n.UserID)
		s.appCtx.Realtime.Emit(ctx, realtime.UserRoom(n.UserID), realtime.Event{
			Type: realtime.EventNewNotification,
			Data: toView(n),
		})
	}
}

// Notify is Create outside a transaction followed by Publish.
func (s *Service) Notify(ctx context.Context, drafts ...Draft) error {
	created, err := s.Create(ctx, nil, drafts...)
	if err != nil {
		s.log(ctx).Error("failed to create notifications", "count", len(drafts), "err", err)
		return svcErr.Map(err)
	}
	s.Publish(ctx, created)
	return nil
}

// List returns the newest notifications of userID, dismissed ones only when asked.
func (s *Service) List(ctx context.Context, userID uint64, includeDismissed bool, limit int) ([]Notification, error) {
	s.log(ctx).Debug("List notifications called", "user_id", userID, "include_dismissed", includeDismissed)

	limit = pagination.ClampLimit(limit, defaultListLimit, maxListLimit)
	rows, err := s.repo.List(ctx, userID, includeDismissed, limit)
	if err != nil {
		s.log(ctx).Error("List notifications failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, toView(n))
	}
	return out, nil
}

// UnreadCount returns how many unread, undismissed notifications userID has.
// Cache-first, recomputed from the DB on a miss.
func (s *Service) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	rc := s.appCtx.RedisCache
	key := rc.KeyForUnreadNotifications(userID)
	if n, ok, err := rc.GetCount(ctx, key); err == nil && ok {
		return n, nil
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	_ = rc.SetCount(ctx, key, count)
	return count, nil
}

// MarkRead flips is_read. Marking an already-read notification is a no-op;
// someone else's notification is reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id uint64) error {
	if _, err := s.repo.Get(ctx, id, userID); err != nil {
		return svcErr.Map(err)
	}
	n, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if n > 0 {
		s.invalidate(ctx, userID)
	}
	return nil
}

// MarkAllRead flips every unread notification of userID and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	if n > 0 {
		s.invalidate(ctx, userID)
	}
	return n, nil
}

// Dismiss hides a notification (and marks it read). Idempotent.
func (s *Service) Dismiss(ctx context.Context, userID, id uint64) error {
	if _, err := s.repo.Get(ctx, id, userID); err != nil {
		return svcErr.Map(err)
	}
	n, err := s.repo.Dismiss(ctx, id, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if n > 0 {
		s.invalidate(ctx, userID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID uint64) {
	key := s.appCtx.RedisCache.KeyForUnreadNotifications(userID)
	if err := s.appCtx.RedisCache.Invalidate(ctx, key); err != nil {
		s.log(ctx).Warn("failed to invalidate unread counter", "user_id", userID, "err", err)
	}
}

func toView(n db.Notification) Notification {
	return Notification{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		Data:        json.RawMessage(n.Data),
		IsRead:      n.IsRead,
		IsDismissed: n.IsDismissed,
		CreatedAt:   n.CreatedAt,
	}
}

// log returns the request-scoped logger when the caller attached one.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
