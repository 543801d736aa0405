package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/tweetheart/internal/db"
	"github.com/oggyb/tweetheart/internal/utils/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pairClause matches both directions of a user pair: args (a, b, b, a).
const pairClause = "(liker_id = ? AND liked_id = ?) OR (liker_id = ? AND liked_id = ?)"

// LikeRepository provides data access methods for the Like model.
// It encapsulates all queries related to likes/passes between users.
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB) *LikeRepository {
	return &LikeRepository{db: database}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *LikeRepository) WithTx(tx *gorm.DB) *LikeRepository {
	return &LikeRepository{db: tx}
}

// Get loads the liker -> liked row. found is false when no decision exists.
func (r *LikeRepository) Get(ctx context.Context, likerID, likedID uint64) (db.Like, bool, error) {
	return r.get(r.db.WithContext(ctx), likerID, likedID)
}

// GetForUpdate is Get with a row lock held until the transaction ends, so a
// concurrent reciprocal decision blocks instead of reading a stale snapshot.
// Must run inside a transaction.
func (r *LikeRepository) GetForUpdate(ctx context.Context, likerID, likedID uint64) (db.Like, bool, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), likerID, likedID)
}

func (r *LikeRepository) get(q *gorm.DB, likerID, likedID uint64) (like db.Like, found bool, err error) {
	err = q.Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Take(&like).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Like{}, false, nil
	}
	if err != nil {
		return db.Like{}, false, err
	}
	return like, true, nil
}

// Upsert inserts or updates a decision made by liker -> liked.
//
// Behavior:
//   - If (liker_id, liked_id) pair exists → like_type is overwritten.
//   - If it doesn’t exist → a new row is inserted.
//   - Composite PK ensures overwrite guarantee.
//   - Mutuality and chat back-fill are left untouched; the evaluator owns them.
//
// Example:
//
//	repo.Upsert(ctx, 1, 2, db.LikeTypeLike) // user 1 liked user 2
func (r *LikeRepository) Upsert(ctx context.Context, likerID, likedID uint64, likeType string) error {
	like := db.Like{
		LikerID:  likerID,
		LikedID:  likedID,
		LikeType: likeType,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "liker_id"}, {Name: "liked_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"like_type", "updated_at"}),
		}).
		Create(&like).Error
}

// MarkMutual flips is_mutual on both rows of the pair.
//
// Behavior:
//   - Only rows with like_type = 'like' and is_mutual = false are touched,
//     so the returned count is > 0 only for the call that created the match.
//   - Both directions are updated in one statement.
//
// Example:
//
//	n, _ := repo.MarkMutual(ctx, 1, 2, time.Now()) // n == 2 the first time, 0 afterwards
func (r *LikeRepository) MarkMutual(ctx context.Context, a, b uint64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where(pairClause, a, b, b, a).
		Where("like_type = ? AND is_mutual = ?", db.LikeTypeLike, false).
		Updates(map[string]any{"is_mutual": true, "matched_at": at})
	return res.RowsAffected, res.Error
}

// ClearMutual removes the mutual flag from both rows of the pair.
func (r *LikeRepository) ClearMutual(ctx context.Context, a, b uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where(pairClause, a, b, b, a).
		Where("is_mutual = ?", true).
		Updates(map[string]any{"is_mutual": false, "matched_at": nil}).Error
}

// IsMutual reports whether a and b are a mutual match.
func (r *LikeRepository) IsMutual(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("liker_id = ? AND liked_id = ? AND like_type = ? AND is_mutual = ?", a, b, db.LikeTypeLike, true).
		Count(&count).Error
	return count > 0, err
}

// SetChatID back-fills (or clears, with nil) chat_id on both rows of the pair.
func (r *LikeRepository) SetChatID(ctx context.Context, a, b uint64, chatID *string) error {
	return r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where(pairClause, a, b, b, a).
		Update("chat_id", chatID).Error
}

// DeletePair removes both decisions between a and b.
func (r *LikeRepository) DeletePair(ctx context.Context, a, b uint64) error {
	return r.db.WithContext(ctx).
		Where(pairClause, a, b, b, a).
		Delete(&db.Like{}).Error
}

// ListMutual returns userID's outgoing rows that are part of a match,
// newest match first. Without includeChats, matches that already have a
// persisted chat are skipped (the "Matches" list).
func (r *LikeRepository) ListMutual(ctx context.Context, userID uint64, includeChats bool) ([]db.Like, error) {
	var likes []db.Like
	query := r.db.WithContext(ctx).
		Where("liker_id = ? AND like_type = ? AND is_mutual = ?", userID, db.LikeTypeLike, true)
	if !includeChats {
		query = query.Where("chat_id IS NULL")
	}
	err := query.Order("matched_at DESC, liked_id DESC").Find(&likes).Error
	return likes, err
}

// GetLikers returns all users who liked the given recipient.
//
// Behavior:
//   - Only rows where liked_id = X and like_type = 'like' are returned.
//   - Excludes users that the recipient explicitly passed.
//   - Ordered by updated_at DESC, liker_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.GetLikers(ctx, 42, nil, 20) // list first 20 people who liked user 42
func (r *LikeRepository) GetLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	return r.listLikers(ctx, recipientID, paginationToken, limit, false)
}

// GetNewLikers returns users who liked the recipient but have not been liked back.
//
// Behavior:
//   - Same as GetLikers, minus mutual likes (recipient already liked them back).
//   - Supports cursor-based pagination.
//
// Example:
//
//	repo.GetNewLikers(ctx, 42, nil, 20) // list first 20 one-way likes for user 42
func (r *LikeRepository) GetNewLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	return r.listLikers(ctx, recipientID, paginationToken, limit, true)
}

func (r *LikeRepository) listLikers(
	ctx context.Context,
	recipientID uint64,
	paginationToken *string,
	limit int,
	excludeMutual bool,
) ([]db.Like, *string, error) {
	var likes []db.Like

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.likersQuery(ctx, recipientID).
		Order("l.updated_at DESC, l.liker_id DESC").
		Limit(limit + 1)

	if excludeMutual {
		query = query.Where(`
			NOT EXISTS (
				SELECT 1 FROM users_likes l3
				WHERE l3.liker_id = l.liked_id
				  AND l3.liked_id = l.liker_id
				  AND l3.like_type = 'like'
			)`)
	}

	// apply cursor
	if cursor.ID > 0 && cursor.UpdatedUnix > 0 {
		ts := time.UnixMilli(cursor.UpdatedUnix).UTC()
		query = query.Where(
			"(l.updated_at < ? OR (l.updated_at = ? AND l.liker_id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.LikerID,
			UpdatedUnix: last.UpdatedAt.UnixMilli(),
		})
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// CountLikers returns how many users liked the given recipient.
//
// Behavior:
//   - Counts only rows where liked_id = X and like_type = 'like'.
//   - Excludes users that recipient explicitly passed.
//   - Used in conjunction with Redis cache (DB is fallback).
func (r *LikeRepository) CountLikers(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	if err := r.likersQuery(ctx, recipientID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *LikeRepository) likersQuery(ctx context.Context, recipientID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("users_likes l").
		Where("l.liked_id = ? AND l.like_type = ?", recipientID, db.LikeTypeLike).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM users_likes l2
				WHERE l2.liker_id = ?
				  AND l2.liked_id = l.liker_id
				  AND l2.like_type = 'pass'
			)`, recipientID)
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
