package notifications_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/oggyb/tweetheart/internal/app/apptest"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/realtime/realtimetest"
	"github.com/oggyb/tweetheart/internal/service/notifications"
)

func TestNotifyPersistsAndPushes(t *testing.T) {
	env := apptest.New(t)
	svc := notifications.NewNotificationService(env.App)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, notifications.Draft{
		UserID: 2,
		Type:   db.NotificationMatch,
		Title:  "It's a match!",
		Data:   map[string]any{"match_user_id": 1},
	}))

	pushed := env.Events.To(realtime.UserRoom(2), realtime.EventNewNotification)
	require.Len(t, pushed, 1)
	payload := realtimetest.Decode(pushed[0])
	assert.Equal(t, "match", payload["type"])
	assert.Equal(t, map[string]any{"match_user_id": float64(1)}, payload["data"])

	list, err := svc.List(ctx, 2, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsRead)
}

func TestUnreadCountIsCachedAndInvalidated(t *testing.T) {
	env := apptest.New(t)
	svc := notifications.NewNotificationService(env.App)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Notify(ctx, notifications.Draft{UserID: 1, Type: db.NotificationLike, Title: "like"}))
	}

	n, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	cached, err := env.Redis.Get("notifications:unread:1")
	require.NoError(t, err)
	assert.Equal(t, "2", cached)

	updated, err := svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	assert.False(t, env.Redis.Exists("notifications:unread:1"))

	n, err = svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDismissIsIdempotent(t *testing.T) {
	env := apptest.New(t)
	svc := notifications.NewNotificationService(env.App)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, notifications.Draft{UserID: 1, Type: db.NotificationSystem, Title: "hello"}))
	list, err := svc.List(ctx, 1, false, 10)
	require.NoError(t, err)
	id := list[0].ID

	require.NoError(t, svc.Dismiss(ctx, 1, id))
	require.NoError(t, svc.Dismiss(ctx, 1, id))
	require.NoError(t, svc.MarkRead(ctx, 1, id))

	visible, err := svc.List(ctx, 1, false, 10)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.List(ctx, 1, true, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDismissed)
	assert.True(t, all[0].IsRead)
}

func TestForeignNotificationIsNotFound(t *testing.T) {
	env := apptest.New(t)
	svc := notifications.NewNotificationService(env.App)
	ctx := context.Background()

	require.NoError(t, svc.Notify(ctx, notifications.Draft{UserID: 2, Type: db.NotificationSystem, Title: "x"}))
	list, err := svc.List(ctx, 2, false, 10)
	require.NoError(t, err)

	err = svc.MarkRead(ctx, 1, list[0].ID)
	assert.Equal(t, codes.NotFound, svcErr.Code(err))
	err = svc.Dismiss(ctx, 1, list[0].ID)
	assert.Equal(t, codes.NotFound, svcErr.Code(err))
}
