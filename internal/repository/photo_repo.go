package repository

import (
	"context"
	"fmt"

	"github.com/oggyb/tweetheart/internal/db"

	"gorm.io/gorm"
)

type PhotoRepository struct {
	db *gorm.DB
}

func NewPhotoRepository(database *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: database}
}

func (r *PhotoRepository) WithTx(tx *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: tx}
}

// List returns userID's photos in display order.
func (r *PhotoRepository) List(ctx context.Context, userID uint64) ([]db.Photo, error) {
	var photos []db.Photo
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("photo_order ASC, id ASC").
		Find(&photos).Error
	return photos, err
}

// ListForUsers groups the photos of several users, each slice in display order.
func (r *PhotoRepository) ListForUsers(ctx context.Context, userIDs []uint64) (map[uint64][]db.Photo, error) {
	out := make(map[uint64][]db.Photo, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var photos []db.Photo
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id ASC, photo_order ASC, id ASC").
		Find(&photos).Error
	if err != nil {
		return nil, err
	}
	for _, p := range photos {
		out[p.UserID] = append(out[p.UserID], p)
	}
	return out, nil
}

func (r *PhotoRepository) Count(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Photo{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *PhotoRepository) Create(ctx context.Context, p *db.Photo) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Get loads a photo owned by userID.
func (r *PhotoRepository) Get(ctx context.Context, id, userID uint64) (db.Photo, error) {
	var p db.Photo
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&p).Error
	return p, err
}

// Delete removes a photo and compacts the order of the remaining ones.
func (r *PhotoRepository) Delete(ctx context.Context, id, userID uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&db.Photo{}).Error; err != nil {
			return err
		}
		var remaining []db.Photo
		if err := tx.Where("user_id = ?", userID).Order("photo_order ASC, id ASC").Find(&remaining).Error; err != nil {
			return err
		}
		for i, p := range remaining {
			if p.Order == i {
				continue
			}
			if err := tx.Model(&db.Photo{}).Where("id = ?", p.ID).Update("photo_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Reorder sets photo_order to the position of each id in ids.
// ids must be exactly the user's photo ids.
func (r *PhotoRepository) Reorder(ctx context.Context, userID uint64, ids []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned []uint64
		if err := tx.Model(&db.Photo{}).Where("user_id = ?", userID).Pluck("id", &owned).Error; err != nil {
			return err
		}
		if !sameSet(owned, ids) {
			return fmt.Errorf("%w: photo ids do not match the user's photos", ErrInvalidOrder)
		}
		for i, id := range ids {
			if err := tx.Model(&db.Photo{}).Where("id = ? AND user_id = ?", id, userID).Update("photo_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrInvalidOrder is returned by Reorder for an id list that is not a permutation.
var ErrInvalidOrder = fmt.Errorf("invalid photo order")

func sameSet(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uint64]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}
