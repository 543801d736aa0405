package photos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/imaging"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/service/profiles"
)

const (
	defaultMaxPerUser = 6
	defaultMaxBytes   = 10 << 20
)

// Resizer normalises an uploaded image; see imaging.Resizer.
type Resizer interface {
	Resize(data []byte) ([]byte, string, error)
}

// Service manages a user's profile photos. Objects live in the store under
// users/<id>/photos/<uuid>.jpg; rows keep the key and the display order.
type Service struct {
	appCtx   *app.AppContext
	repo     *repository.PhotoRepository
	profiles *profiles.Service
	resizer  Resizer
}

func NewPhotoService(appCtx *app.AppContext, resizer Resizer) *Service {
	return &Service{
		appCtx:   appCtx,
		repo:     repository.NewPhotoRepository(appCtx.DB),
		profiles: profiles.NewProfileService(appCtx),
		resizer:  resizer,
	}
}

// ObjectKey is where a photo of userID is stored.
func ObjectKey(userID uint64, id uuid.UUID) string {
	return fmt.Sprintf("users/%d/photos/%s.jpg", userID, id)
}

// Upload resizes body, stores it and appends it to userID's photos.
//
// Behavior:
//   - Bodies over the configured byte limit and empty bodies are rejected.
//   - A user holds at most MaxPerUser photos.
//   - The object is written first; if the row cannot be inserted the
//     object is removed again.
func (s *Service) Upload(ctx context.Context, userID uint64, body io.Reader) (profiles.Photo, error) {
	s.log(ctx).Debug("Upload photo called", "user_id", userID)

	maxBytes := s.maxBytes()
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return profiles.Photo{}, svcErr.InvalidArgument("could not read upload")
	}
	if len(data) == 0 {
		return profiles.Photo{}, svcErr.InvalidArgument("photo is empty")
	}
	if int64(len(data)) > maxBytes {
		return profiles.Photo{}, svcErr.InvalidArgument(fmt.Sprintf("photo exceeds %d bytes", maxBytes))
	}

	count, err := s.repo.Count(ctx, userID)
	if err != nil {
		return profiles.Photo{}, svcErr.Map(err)
	}
	if int(count) >= s.maxPerUser() {
		return profiles.Photo{}, svcErr.FailedPrecondition(fmt.Sprintf("at most %d photos allowed", s.maxPerUser()))
	}

	resized, contentType, err := s.resizer.Resize(data)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedImage) {
			return profiles.Photo{}, svcErr.InvalidArgument("unsupported image type")
		}
		s.log(ctx).Error("photo resize failed", "user_id", userID, "err", err)
		return profiles.Photo{}, svcErr.InvalidArgument("could not process image")
	}

	key := ObjectKey(userID, uuid.New())
	if err := s.appCtx.Storage.Put(ctx, key, bytes.NewReader(resized), int64(len(resized)), contentType); err != nil {
		s.log(ctx).Error("photo upload failed", "user_id", userID, "key", key, "err", err)
		return profiles.Photo{}, svcErr.Map(err)
	}

	photo := db.Photo{UserID: userID, StorageKey: key, ContentType: contentType}
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		n, err := repo.Count(ctx, userID)
		if err != nil {
			return err
		}
		if int(n) >= s.maxPerUser() {
			return svcErr.FailedPrecondition(fmt.Sprintf("at most %d photos allowed", s.maxPerUser()))
		}
		photo.Order = int(n)
		return repo.Create(ctx, &photo)
	})
	if err != nil {
		if derr := s.appCtx.Storage.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.log(ctx).Warn("orphaned photo object", "key", key, "err", derr)
		}
		if svcErr.Code(err) == codes.Unknown {
			s.log(ctx).Error("photo insert failed", "user_id", userID, "err", err)
		}
		return profiles.Photo{}, svcErr.Map(err)
	}

	s.log(ctx).Info("photo uploaded", "user_id", userID, "photo_id", photo.ID, "bytes", len(resized))
	out := s.profiles.PresignPhotos(ctx, []db.Photo{photo})
	if len(out) == 0 {
		return profiles.Photo{ID: photo.ID, Order: photo.Order}, nil
	}
	return out[0], nil
}

// List returns userID's photos in display order with fresh URLs.
func (s *Service) List(ctx context.Context, userID uint64) ([]profiles.Photo, error) {
	rows, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.profiles.PresignPhotos(ctx, rows), nil
}

// Delete removes a photo row and its object. Another user's photo is
// reported as not found.
func (s *Service) Delete(ctx context.Context, userID, photoID uint64) error {
	s.log(ctx).Debug("Delete photo called", "user_id", userID, "photo_id", photoID)

	photo, err := s.repo.Get(ctx, photoID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr.NotFound("photo not found")
		}
		return svcErr.Map(err)
	}
	if err := s.repo.Delete(ctx, photo.ID, userID); err != nil {
		s.log(ctx).Error("photo delete failed", "photo_id", photoID, "err", err)
		return svcErr.Map(err)
	}
	if err := s.appCtx.Storage.Delete(ctx, photo.StorageKey); err != nil {
		s.log(ctx).Warn("failed to delete photo object", "key", photo.StorageKey, "err", err)
	}
	return nil
}

// Reorder sets the display order; ids must list every photo of userID once.
func (s *Service) Reorder(ctx context.Context, userID uint64, ids []uint64) ([]profiles.Photo, error) {
	s.log(ctx).Debug("Reorder photos called", "user_id", userID, "count", len(ids))

	if err := s.repo.Reorder(ctx, userID, ids); err != nil {
		if errors.Is(err, repository.ErrInvalidOrder) {
			return nil, svcErr.InvalidArgument("photo_ids must list each of your photos exactly once")
		}
		return nil, svcErr.Map(err)
	}
	return s.List(ctx, userID)
}

func (s *Service) maxBytes() int64 {
	if n := s.appCtx.Config.Photos.MaxBytes; n > 0 {
		return n
	}
	return defaultMaxBytes
}

func (s *Service) maxPerUser() int {
	if n := s.appCtx.Config.Photos.MaxPerUser; n > 0 {
		return n
	}
	return defaultMaxPerUser
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
