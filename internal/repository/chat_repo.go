package repository

import (
	"context"
	"time"

	"github.com/oggyb/tweetheart/internal/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository persists chats. The unique (user1_id, user2_id) index is the
// source of truth for "one chat per pair"; callers must go through
// CreateIfAbsent rather than a plain insert.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(database *gorm.DB) *ChatRepository {
	return &ChatRepository{db: database}
}

func (r *ChatRepository) WithTx(tx *gorm.DB) *ChatRepository {
	return &ChatRepository{db: tx}
}

// Get loads a chat by id. Returns gorm.ErrRecordNotFound when missing.
func (r *ChatRepository) Get(ctx context.Context, chatID string) (db.Chat, error) {
	var chat db.Chat
	err := r.db.WithContext(ctx).Where("id = ?", chatID).Take(&chat).Error
	return chat, err
}

// FindByPair loads the chat of an unordered user pair.
func (r *ChatRepository) FindByPair(ctx context.Context, a, b uint64) (db.Chat, error) {
	low, high := db.OrderedPair(a, b)
	var chat db.Chat
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", low, high).
		Take(&chat).Error
	return chat, err
}

// CreateIfAbsent inserts chat unless the pair already has one.
//
// Behavior:
//   - User ids are normalised to (min, max) before insert.
//   - On a pair conflict nothing is written and created is false; the
//     caller must re-read the authoritative row with FindByPair.
//   - Concurrent callers racing on the same pair see exactly one created=true.
func (r *ChatRepository) CreateIfAbsent(ctx context.Context, chat *db.Chat) (created bool, err error) {
	chat.User1ID, chat.User2ID = db.OrderedPair(chat.User1ID, chat.User2ID)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
			DoNothing: true,
		}).
		Create(chat)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListForUser returns every chat userID takes part in, most recently active first.
func (r *ChatRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Chat, error) {
	var chats []db.Chat
	err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&chats).Error
	return chats, err
}

// RecordMessage marks the chat active and bumps last_message_at.
// activated is true only for the call that flipped is_active.
func (r *ChatRepository) RecordMessage(ctx context.Context, chatID string, at time.Time) (activated bool, err error) {
	res := r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ? AND is_active = ?", chatID, false).
		Update("is_active", true)
	if res.Error != nil {
		return false, res.Error
	}
	err = r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ?", chatID).
		Update("last_message_at", at).Error
	return res.RowsAffected > 0, err
}

// Delete removes the chat and its messages.
func (r *ChatRepository) Delete(ctx context.Context, chatID string) error {
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&db.Message{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", chatID).Delete(&db.Chat{}).Error
}
