package repository_test

import (
	"context"
	"testing"

	"github.com/oggyb/tweetheart/internal/db"
	"github.com/oggyb/tweetheart/internal/db/dbtest"
	"github.com/oggyb/tweetheart/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(dbtest.Open(t))

	first := db.Notification{UserID: 1, Type: db.NotificationMatch, Title: "match", Data: datatypes.JSON(`{"match_user_id":2}`)}
	second := db.Notification{UserID: 1, Type: db.NotificationMessage, Title: "message"}
	other := db.Notification{UserID: 2, Type: db.NotificationMatch, Title: "match"}
	for _, n := range []*db.Notification{&first, &second, &other} {
		require.NoError(t, repo.Create(ctx, n))
	}

	unread, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	// someone else's notification is invisible
	_, err = repo.Get(ctx, other.ID, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	n, err := repo.MarkRead(ctx, other.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.MarkRead(ctx, first.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.Dismiss(ctx, second.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	visible, err := repo.List(ctx, 1, false, 10)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, first.ID, visible[0].ID)
	assert.JSONEq(t, `{"match_user_id":2}`, string(visible[0].Data))

	all, err := repo.List(ctx, 1, true, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err = repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(dbtest.Open(t))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &db.Notification{UserID: 7, Type: db.NotificationLike, Title: "like"}))
	}

	n, err := repo.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.MarkAllRead(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
}
