package repository

import (
	"context"
	"time"

	"github.com/oggyb/tweetheart/internal/db"
	"github.com/oggyb/tweetheart/internal/utils/pagination"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// List returns a page of messages in a chat, newest first.
// The cursor carries the id of the last message of the previous page.
func (r *MessageRepository) List(
	ctx context.Context,
	chatID string,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit + 1)
	if cursor.ID > 0 {
		query = query.Where("id < ?", cursor.ID)
	}

	var messages []db.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(messages) > limit {
		token, _ := pagination.Encode(pagination.Cursor{ID: messages[limit-1].ID})
		nextToken = &token
		messages = messages[:limit]
	}
	return messages, nextToken, nil
}

// Last returns the newest message of each chat in chatIDs.
func (r *MessageRepository) Last(ctx context.Context, chatIDs []string) (map[string]db.Message, error) {
	out := make(map[string]db.Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	latest := r.db.
		Model(&db.Message{}).
		Select("MAX(id)").
		Where("chat_id IN ?", chatIDs).
		Group("chat_id")

	var messages []db.Message
	if err := r.db.WithContext(ctx).Where("id IN (?)", latest).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		out[m.ChatID] = m
	}
	return out, nil
}

// CountUnread counts messages in chatID that readerID has not read yet.
func (r *MessageRepository) CountUnread(ctx context.Context, chatID string, readerID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Count(&count).Error
	return count, err
}

// CountUnreadByChat is CountUnread for many chats at once.
func (r *MessageRepository) CountUnreadByChat(ctx context.Context, chatIDs []string, readerID uint64) (map[string]int64, error) {
	out := make(map[string]int64, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChatID string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Select("chat_id, COUNT(*) AS total").
		Where("chat_id IN ? AND sender_id <> ? AND is_read = ?", chatIDs, readerID, false).
		Group("chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ChatID] = row.Total
	}
	return out, nil
}

// UnreadIDs lists ids of messages in chatID sent to readerID and still unread.
func (r *MessageRepository) UnreadIDs(ctx context.Context, chatID string, readerID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chatID, readerID, false).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MarkRead flips is_read on the given messages; already-read rows are skipped.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []uint64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id IN ? AND is_read = ?", ids, false).
		Updates(map[string]any{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}
