package repository

import (
	"context"
	"time"

	"github.com/oggyb/tweetheart/internal/db"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) Get(ctx context.Context, id uint64) (db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	return u, err
}

// GetMany loads users by id; missing ids are simply absent from the map.
func (r *UserRepository) GetMany(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	return u, err
}

// Exists reports whether an active user with id exists.
func (r *UserRepository) Exists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ? AND active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}

// Update applies a partial update; keys are column names.
func (r *UserRepository) Update(ctx context.Context, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// DiscoverQuery narrows the discovery feed. Zero values mean "no filter".
type DiscoverQuery struct {
	Gender     string
	BornAfter  time.Time // exclusive lower bound on birthdate (oldest allowed)
	BornBefore time.Time // inclusive upper bound on birthdate (youngest allowed)
	Box        *GeoBox
	Offset     int
	Limit      int
}

// GeoBox is a latitude/longitude bounding box; users without a location
// never match one.
type GeoBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Discover lists candidates for userID's feed.
//
// Behavior:
//   - Excludes userID and inactive users.
//   - Excludes anyone userID already liked or passed.
//   - Ordered by last login, most recent first, then id for stability.
//   - Returns up to Limit+1 rows so the caller can tell whether more pages exist.
func (r *UserRepository) Discover(ctx context.Context, userID uint64, q DiscoverQuery) ([]db.User, error) {
	swiped := r.db.Model(&db.Like{}).Select("liked_id").Where("liker_id = ?", userID)

	query := r.db.WithContext(ctx).
		Where("id <> ? AND active = ?", userID, true).
		Where("id NOT IN (?)", swiped)
	if q.Gender != "" {
		query = query.Where("gender = ?", q.Gender)
	}
	if !q.BornAfter.IsZero() {
		query = query.Where("birthdate > ?", q.BornAfter)
	}
	if !q.BornBefore.IsZero() {
		query = query.Where("birthdate <= ?", q.BornBefore)
	}
	if q.Box != nil {
		query = query.
			Where("latitude BETWEEN ? AND ?", q.Box.MinLat, q.Box.MaxLat).
			Where("longitude BETWEEN ? AND ?", q.Box.MinLon, q.Box.MaxLon)
	}

	var users []db.User
	err := query.
		Order("last_login_at DESC, id ASC").
		Offset(q.Offset).
		Limit(q.Limit + 1).
		Find(&users).Error
	return users, err
}
