package storage_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tweetheart/internal/config"
	"github.com/oggyb/tweetheart/internal/storage"
)

func TestS3PresignGetUsesConfiguredTTL(t *testing.T) {
	cfg := config.Load(config.NewViper())
	cfg.S3.Endpoint = "http://localhost:9000"
	cfg.S3.AccessKeyID = "minio"
	cfg.S3.SecretAccessKey = "minio123"

	store, err := storage.NewS3Store(context.Background(), cfg)
	require.NoError(t, err)

	raw, err := store.PresignGet(context.Background(), "users/1/photos/a.jpg", 0)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/tweetheart-photos/users/1/photos/a.jpg"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	payload := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}

	require.NoError(t, store.Put(ctx, "k.jpg", bytes.NewReader(payload), int64(len(payload)), "image/jpeg"))

	link, err := store.PresignGet(ctx, "k.jpg", 0)
	require.NoError(t, err)
	assert.Contains(t, link, "memory://objects/k.jpg")

	r, contentType, err := store.Open("k.jpg")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "image/jpeg", contentType)

	require.NoError(t, store.Delete(ctx, "k.jpg"))
	_, err = store.PresignGet(ctx, "k.jpg", 0)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestServedMemoryStoreURLsAreFetchable(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := storage.NewServedMemoryStore(srv.URL + storage.MemoryObjectsPath)
	mux.Handle(storage.MemoryObjectsPath+"/", http.StripPrefix(storage.MemoryObjectsPath, store))
	require.True(t, store.Served())

	require.NoError(t, store.Put(ctx, "users/1/photos/a.jpg", strings.NewReader("jpeg"), 4, "image/jpeg"))
	raw, err := store.PresignGet(ctx, "users/1/photos/a.jpg", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, srv.URL+"/dev/objects/users/1/photos/a.jpg?expires="))

	resp, err := http.Get(raw)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "jpeg", string(body))

	expired := srv.URL + storage.MemoryObjectsPath + "/users/1/photos/a.jpg?expires=1"
	resp, err = http.Get(expired)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, store.Delete(ctx, "users/1/photos/a.jpg"))
	resp, err = http.Get(raw)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
