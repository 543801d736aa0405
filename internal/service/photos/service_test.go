package photos_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/oggyb/tweetheart/internal/app/apptest"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/imaging"
	"github.com/oggyb/tweetheart/internal/service/photos"
)

// fakeResizer tags the payload so tests can tell processed bytes apart.
type fakeResizer struct {
	err error
}

func (f fakeResizer) Resize(data []byte) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return append([]byte("jpeg:"), data...), "image/jpeg", nil
}

func setupService(t *testing.T, r photos.Resizer) (*photos.Service, *apptest.Env) {
	t.Helper()
	env := apptest.New(t)
	env.App.Config.Photos.MaxPerUser = 3
	env.App.Config.Photos.MaxBytes = 64
	return photos.NewPhotoService(env.App, r), env
}

func storedKey(t *testing.T, env *apptest.Env, photoID uint64) string {
	t.Helper()
	var p db.Photo
	require.NoError(t, env.App.DB.Where("id = ?", photoID).Take(&p).Error)
	return p.StorageKey
}

func TestUploadRoundTrip(t *testing.T) {
	svc, env := setupService(t, fakeResizer{})
	ctx := context.Background()

	photo, err := svc.Upload(ctx, 1, strings.NewReader("raw-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 0, photo.Order)

	key := storedKey(t, env, photo.ID)
	assert.True(t, strings.HasPrefix(key, "users/1/photos/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	u, err := url.Parse(photo.URL)
	require.NoError(t, err)
	assert.Equal(t, "/"+key, u.Path)
	assert.NotEmpty(t, u.Query().Get("expires"))

	body, contentType, err := env.Objects.Open(strings.TrimPrefix(u.Path, "/"))
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:raw-bytes"), data)
	assert.Equal(t, "image/jpeg", contentType)

	second, err := svc.Upload(ctx, 1, strings.NewReader("more"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Order)
}

func TestUploadLimits(t *testing.T) {
	svc, env := setupService(t, fakeResizer{})
	ctx := context.Background()

	_, err := svc.Upload(ctx, 1, strings.NewReader(""))
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	_, err = svc.Upload(ctx, 1, bytes.NewReader(make([]byte, 65)))
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	for i := 0; i < 3; i++ {
		_, err := svc.Upload(ctx, 1, strings.NewReader("img"))
		require.NoError(t, err)
	}
	_, err = svc.Upload(ctx, 1, strings.NewReader("img"))
	assert.Equal(t, codes.FailedPrecondition, svcErr.Code(err))
	assert.Equal(t, 3, env.Objects.Len())
}

func TestUploadRejectsUnsupportedImage(t *testing.T) {
	svc, env := setupService(t, fakeResizer{err: imaging.ErrUnsupportedImage})

	_, err := svc.Upload(context.Background(), 1, strings.NewReader("not an image"))
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))
	assert.Zero(t, env.Objects.Len())

	svc, _ = setupService(t, fakeResizer{err: errors.New("vips exploded")})
	_, err = svc.Upload(context.Background(), 1, strings.NewReader("broken"))
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))
}

func TestDeleteCompactsOrder(t *testing.T) {
	svc, env := setupService(t, fakeResizer{})
	ctx := context.Background()

	var ids []uint64
	for _, body := range []string{"a", "b", "c"} {
		p, err := svc.Upload(ctx, 1, strings.NewReader(body))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	firstKey := storedKey(t, env, ids[0])

	err := svc.Delete(ctx, 2, ids[0])
	assert.Equal(t, codes.NotFound, svcErr.Code(err), "someone else's photo")

	require.NoError(t, svc.Delete(ctx, 1, ids[0]))
	_, _, err = env.Objects.Open(firstKey)
	assert.Error(t, err)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[1], list[0].ID)
	assert.Equal(t, 0, list[0].Order)
	assert.Equal(t, 1, list[1].Order)
}

func TestReorder(t *testing.T) {
	svc, _ := setupService(t, fakeResizer{})
	ctx := context.Background()

	var ids []uint64
	for _, body := range []string{"a", "b"} {
		p, err := svc.Upload(ctx, 1, strings.NewReader(body))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	_, err := svc.Reorder(ctx, 1, []uint64{ids[0]})
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	list, err := svc.Reorder(ctx, 1, []uint64{ids[1], ids[0]})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[1], list[0].ID)
	assert.Equal(t, ids[0], list[1].ID)
}
