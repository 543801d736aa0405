package repository

import (
	"context"

	"github.com/oggyb/tweetheart/internal/db"

	"gorm.io/gorm"
)

// NotificationRepository stores per-user notifications. Rows are never
// deleted; read and dismissed are soft flags.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

func (r *NotificationRepository) Create(ctx context.Context, n *db.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns the newest notifications of userID.
func (r *NotificationRepository) List(ctx context.Context, userID uint64, includeDismissed bool, limit int) ([]db.Notification, error) {
	var out []db.Notification
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeDismissed {
		query = query.Where("is_dismissed = ?", false)
	}
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Get loads a notification owned by userID. Someone else's notification
// is reported as gorm.ErrRecordNotFound.
func (r *NotificationRepository) Get(ctx context.Context, id, userID uint64) (db.Notification, error) {
	var n db.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&n).Error
	return n, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// Dismiss hides a notification; dismissing also marks it read.
func (r *NotificationRepository) Dismiss(ctx context.Context, id, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("id = ? AND user_id = ? AND is_dismissed = ?", id, userID, false).
		Updates(map[string]any{"is_dismissed": true, "is_read": true})
	return res.RowsAffected, res.Error
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ? AND is_dismissed = ?", userID, false, false).
		Count(&count).Error
	return count, err
}
