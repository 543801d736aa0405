package profiles

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/storage"
)

// Age bounds of the discovery feed.
const (
	MinAge = 18
	MaxAge = 100

	defaultPageSize = 10
	maxPageSize     = 50
)

var (
	validGenders   = map[string]bool{"male": true, "female": true, "non-binary": true, "other": true}
	validInterests = map[string]bool{"male": true, "female": true, "everyone": true}
)

func ValidGender(g string) bool { return validGenders[g] }

func ValidInterest(i string) bool { return validInterests[i] }

// Photo is a profile picture with a freshly presigned URL.
type Photo struct {
	ID    uint64 `json:"id"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// Snapshot is the public part of a profile embedded in match, chat and
// event payloads.
type Snapshot struct {
	ID        uint64  `json:"id"`
	FirstName string  `json:"first_name"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Bio       string  `json:"bio"`
	Photos    []Photo `json:"photos"`
}

// Profile is a full profile. Private fields are only filled for the owner.
type Profile struct {
	Snapshot
	LastName     string     `json:"last_name,omitempty"`
	Email        string     `json:"email,omitempty"`
	InterestedIn string     `json:"interested_in,omitempty"`
	Birthdate    *time.Time `json:"birthdate,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	DistanceKm   *float64   `json:"distance_km,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// UpdateRequest carries a partial profile edit; nil fields are left alone.
type UpdateRequest struct {
	FirstName    *string  `json:"first_name"`
	LastName     *string  `json:"last_name"`
	Bio          *string  `json:"bio"`
	Gender       *string  `json:"gender"`
	InterestedIn *string  `json:"interested_in"`
	Birthdate    *string  `json:"birthdate"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// Filter narrows the discovery feed. Zero values mean "no preference".
type Filter struct {
	Gender        string
	MinAge        int
	MaxAge        int
	MaxDistanceKm float64
	Page          int
	Limit         int
}

// FeedPage is one page of discovery candidates.
type FeedPage struct {
	Users   []Profile `json:"users"`
	Page    int       `json:"page"`
	HasMore bool      `json:"has_more"`
}

type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	photos *repository.PhotoRepository
	now    func() time.Time
}

func NewProfileService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		photos: repository.NewPhotoRepository(appCtx.DB),
		now:    time.Now,
	}
}

// Snapshot returns the public profile of userID.
func (s *Service) Snapshot(ctx context.Context, userID uint64) (Snapshot, error) {
	snaps, err := s.Snapshots(ctx, []uint64{userID})
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := snaps[userID]
	if !ok {
		return Snapshot{}, svcErr.NotFound("user not found")
	}
	return snap, nil
}

// Snapshots loads public profiles for several users in two queries.
// Unknown ids are absent from the result.
func (s *Service) Snapshots(ctx context.Context, ids []uint64) (map[uint64]Snapshot, error) {
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		s.log(ctx).Error("GetMany users failed", "count", len(ids), "err", err)
		return nil, svcErr.Map(err)
	}
	photos, err := s.photos.ListForUsers(ctx, ids)
	if err != nil {
		s.log(ctx).Error("ListForUsers photos failed", "count", len(ids), "err", err)
		return nil, svcErr.Map(err)
	}

	out := make(map[uint64]Snapshot, len(users))
	for id, u := range users {
		out[id] = s.snapshot(ctx, u, photos[id])
	}
	return out, nil
}

// GetMe returns the caller's own profile including private fields.
func (s *Service) GetMe(ctx context.Context, userID uint64) (Profile, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Profile{}, svcErr.Map(err)
	}
	photos, err := s.photos.List(ctx, userID)
	if err != nil {
		return Profile{}, svcErr.Map(err)
	}
	return s.ownProfile(ctx, u, photos), nil
}

// GetProfile returns another user's public profile with the distance to the viewer.
func (s *Service) GetProfile(ctx context.Context, viewerID, userID uint64) (Profile, error) {
	if viewerID == userID {
		return s.GetMe(ctx, userID)
	}
	viewer, err := s.users.Get(ctx, viewerID)
	if err != nil {
		return Profile{}, svcErr.Map(err)
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Profile{}, svcErr.Map(err)
	}
	if !u.Active {
		return Profile{}, svcErr.NotFound("user not found")
	}
	photos, err := s.photos.List(ctx, userID)
	if err != nil {
		return Profile{}, svcErr.Map(err)
	}
	return s.publicProfile(ctx, viewer, u, photos), nil
}

// UpdateMe validates and applies a partial edit of the caller's profile.
func (s *Service) UpdateMe(ctx context.Context, userID uint64, req UpdateRequest) (Profile, error) {
	fields, err := s.updateFields(req)
	if err != nil {
		return Profile{}, err
	}
	if err := s.users.Update(ctx, userID, fields); err != nil {
		s.log(ctx).Error("profile update failed", "user_id", userID, "err", err)
		return Profile{}, svcErr.Map(err)
	}
	s.log(ctx).Info("profile updated", "user_id", userID, "fields", len(fields))
	return s.GetMe(ctx, userID)
}

func (s *Service) updateFields(req UpdateRequest) (map[string]any, error) {
	fields := map[string]any{}

	if req.FirstName != nil {
		v := strings.TrimSpace(*req.FirstName)
		if v == "" || len(v) > 64 {
			return nil, svcErr.InvalidArgument("first_name must be 1-64 characters")
		}
		fields["first_name"] = v
	}
	if req.LastName != nil {
		v := strings.TrimSpace(*req.LastName)
		if len(v) > 64 {
			return nil, svcErr.InvalidArgument("last_name must be at most 64 characters")
		}
		fields["last_name"] = v
	}
	if req.Bio != nil {
		v := strings.TrimSpace(*req.Bio)
		if len(v) > 500 {
			return nil, svcErr.InvalidArgument("bio must be at most 500 characters")
		}
		fields["bio"] = v
	}
	if req.Gender != nil {
		if !validGenders[*req.Gender] {
			return nil, svcErr.InvalidArgument("gender is not supported")
		}
		fields["gender"] = *req.Gender
	}
	if req.InterestedIn != nil {
		if !validInterests[*req.InterestedIn] {
			return nil, svcErr.InvalidArgument("interested_in is not supported")
		}
		fields["interested_in"] = *req.InterestedIn
	}
	if req.Birthdate != nil {
		born, err := ParseBirthdate(*req.Birthdate, s.now())
		if err != nil {
			return nil, err
		}
		fields["birthdate"] = born
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, svcErr.InvalidArgument("latitude and longitude must be set together")
	}
	if req.Latitude != nil {
		if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
			return nil, svcErr.InvalidArgument("location is out of range")
		}
		fields["latitude"] = *req.Latitude
		fields["longitude"] = *req.Longitude
	}
	if len(fields) == 0 {
		return nil, svcErr.InvalidArgument("nothing to update")
	}
	return fields, nil
}

// ParseBirthdate parses YYYY-MM-DD and requires an adult.
func ParseBirthdate(raw string, now time.Time) (time.Time, error) {
	born, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, svcErr.InvalidArgument("birthdate must be YYYY-MM-DD")
	}
	if Age(born, now) < MinAge {
		return time.Time{}, svcErr.InvalidArgument("you must be at least 18")
	}
	return born, nil
}

// NormalizeAges fills in defaults, clamps both bounds to [MinAge, MaxAge]
// and swaps them when min > max.
func NormalizeAges(minAge, maxAge int) (int, int) {
	if minAge <= 0 {
		minAge = MinAge
	}
	if maxAge <= 0 {
		maxAge = MaxAge
	}
	minAge = clamp(minAge, MinAge, MaxAge)
	maxAge = clamp(maxAge, MinAge, MaxAge)
	if minAge > maxAge {
		minAge, maxAge = maxAge, minAge
	}
	return minAge, maxAge
}

// Discover returns a page of candidates the caller has not swiped on yet.
//
// Behavior:
//   - Excludes the caller, inactive users and anyone already liked or passed.
//   - Gender defaults to the caller's interested_in ("everyone" means any).
//   - Age bounds are normalised by NormalizeAges, never rejected.
//   - With MaxDistanceKm, only users with a location within range are kept.
//   - HasMore tells the client whether to prefetch the next page.
func (s *Service) Discover(ctx context.Context, userID uint64, f Filter) (FeedPage, error) {
	viewer, err := s.users.Get(ctx, userID)
	if err != nil {
		return FeedPage{}, svcErr.Map(err)
	}

	minAge, maxAge := NormalizeAges(f.MinAge, f.MaxAge)
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	page := max(f.Page, 0)

	now := s.now().UTC()
	q := repository.DiscoverQuery{
		Gender:     discoverGender(f.Gender, viewer.InterestedIn),
		BornAfter:  now.AddDate(-(maxAge + 1), 0, 0),
		BornBefore: now.AddDate(-minAge, 0, 0),
		Offset:     page * limit,
		Limit:      limit,
	}

	withDistance := f.MaxDistanceKm > 0
	if withDistance {
		if viewer.Latitude == nil || viewer.Longitude == nil {
			return FeedPage{}, svcErr.FailedPrecondition("set your location to filter by distance")
		}
		minLat, maxLat, minLon, maxLon := boundingBox(*viewer.Latitude, *viewer.Longitude, f.MaxDistanceKm)
		q.Box = &repository.GeoBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
	}

	s.log(ctx).Debug("Discover called",
		"user_id", userID, "gender", q.Gender, "min_age", minAge, "max_age", maxAge, "page", page)

	users, err := s.users.Discover(ctx, userID, q)
	if err != nil {
		s.log(ctx).Error("Discover failed", "user_id", userID, "err", err)
		return FeedPage{}, svcErr.Map(err)
	}
	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}

	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	photos, err := s.photos.ListForUsers(ctx, ids)
	if err != nil {
		return FeedPage{}, svcErr.Map(err)
	}

	out := make([]Profile, 0, len(users))
	for _, u := range users {
		p := s.publicProfile(ctx, viewer, u, photos[u.ID])
		if withDistance && (p.DistanceKm == nil || *p.DistanceKm > f.MaxDistanceKm) {
			continue
		}
		out = append(out, p)
	}
	return FeedPage{Users: out, Page: page, HasMore: hasMore}, nil
}

// Exists reports whether userID is an active user.
func (s *Service) Exists(ctx context.Context, userID uint64) (bool, error) {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return false, svcErr.Map(err)
	}
	return ok, nil
}

func discoverGender(requested, interestedIn string) string {
	switch requested {
	case "all", "any", "everyone":
		return ""
	case "":
		if interestedIn == "everyone" {
			return ""
		}
		return interestedIn
	default:
		return requested
	}
}

func (s *Service) snapshot(ctx context.Context, u db.User, photos []db.Photo) Snapshot {
	return Snapshot{
		ID:        u.ID,
		FirstName: u.FirstName,
		Age:       Age(u.Birthdate, s.now()),
		Gender:    u.Gender,
		Bio:       u.Bio,
		Photos:    s.PresignPhotos(ctx, photos),
	}
}

func (s *Service) publicProfile(ctx context.Context, viewer, u db.User, photos []db.Photo) Profile {
	p := Profile{Snapshot: s.snapshot(ctx, u, photos)}
	if viewer.Latitude != nil && viewer.Longitude != nil && u.Latitude != nil && u.Longitude != nil {
		d := round1(distanceKm(*viewer.Latitude, *viewer.Longitude, *u.Latitude, *u.Longitude))
		p.DistanceKm = &d
	}
	return p
}

func (s *Service) ownProfile(ctx context.Context, u db.User, photos []db.Photo) Profile {
	born := u.Birthdate
	p := Profile{
		Snapshot:     s.snapshot(ctx, u, photos),
		LastName:     u.LastName,
		Email:        u.Email,
		InterestedIn: u.InterestedIn,
		Birthdate:    &born,
		Latitude:     u.Latitude,
		Longitude:    u.Longitude,
	}
	if !u.LastLoginAt.IsZero() {
		last := u.LastLoginAt
		p.LastLoginAt = &last
	}
	return p
}

// PresignPhotos resolves photo URLs. A photo whose URL cannot be signed is
// skipped rather than failing the whole profile.
func (s *Service) PresignPhotos(ctx context.Context, photos []db.Photo) []Photo {
	out := make([]Photo, 0, len(photos))
	for _, p := range photos {
		url, err := s.appCtx.Storage.PresignGet(ctx, p.StorageKey, s.urlTTL())
		if err != nil {
			s.log(ctx).Warn("failed to presign photo", "photo_id", p.ID, "err", err)
			continue
		}
		out = append(out, Photo{ID: p.ID, URL: url, Order: p.Order})
	}
	return out
}

func (s *Service) urlTTL() time.Duration {
	if s.appCtx.Config != nil && s.appCtx.Config.S3.URLTTL > 0 {
		return s.appCtx.Config.S3.URLTTL
	}
	return storage.DefaultURLTTL
}

// Age returns the age in whole years at now.
func Age(born, now time.Time) int {
	if born.IsZero() {
		return 0
	}
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	return years
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
