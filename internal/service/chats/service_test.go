package chats_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/app/apptest"
	"github.com/oggyb/tweetheart/internal/chatref"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/realtime/realtimetest"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/service/chats"
)

// Seeded dataset: user1 <-> user2 matched without a chat, user3 and user4
// only liked user1.
func setupService(t *testing.T) (*chats.Service, *apptest.Env) {
	t.Helper()
	env := apptest.New(t)
	return chats.NewChatService(env.App), env
}

func countChats(t *testing.T, env *apptest.Env) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.App.DB.Model(&db.Chat{}).Count(&n).Error)
	return n
}

func TestFirstMessagePromotesChat(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	res, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "  hello Bea  ")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, strings.HasPrefix(res.ChatID, "chat_"))
	assert.Equal(t, "1_2", res.PreparationKey)
	assert.Equal(t, "hello Bea", res.Message.Content)
	assert.Equal(t, int64(1), countChats(t, env))

	// chat id is back-filled on both like rows
	likes := repository.NewLikeRepository(env.App.DB)
	for _, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		like, found, err := likes.Get(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.True(t, found)
		require.NotNil(t, like.ChatID)
		assert.Equal(t, res.ChatID, *like.ChatID)
	}

	// unread asymmetry
	toSender := env.Events.To(realtime.UserRoom(1), realtime.EventNewChatCreated)
	toReceiver := env.Events.To(realtime.UserRoom(2), realtime.EventNewChatCreated)
	require.Len(t, toSender, 1)
	require.Len(t, toReceiver, 1)
	assert.EqualValues(t, 0, realtimetest.Decode(toSender[0])["unread_count"])
	receiver := realtimetest.Decode(toReceiver[0])
	assert.EqualValues(t, 1, receiver["unread_count"])
	assert.Equal(t, "Alex", receiver["other_user"].(map[string]any)["first_name"])

	for _, id := range []uint64{1, 2} {
		assert.Len(t, env.Events.To(realtime.UserRoom(id), realtime.EventMatchPromoted), 1)
	}
	assert.Len(t, env.Events.To(realtime.ChatRoom(res.ChatID), realtime.EventNewMessage), 1)
	assert.Len(t, env.Events.To(realtime.UserRoom(2), realtime.EventNewNotification), 1)

	var notes int64
	require.NoError(t, env.App.DB.Model(&db.Notification{}).
		Where("user_id = ? AND type = ?", 2, db.NotificationMessage).Count(&notes).Error)
	assert.Equal(t, int64(1), notes)
}

func TestLaterMessagesActivateExistingChat(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi")
	require.NoError(t, err)
	env.Events.Reset()

	// a retried first send through the preparation key reuses the chat
	again, err := svc.SendMessage(ctx, 2, chatref.ForPair(2, 1), "hey")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.ChatID, again.ChatID)

	_, err = svc.SendMessage(ctx, 2, chatref.ForChat(first.ChatID), "how are you?")
	require.NoError(t, err)
	assert.Equal(t, int64(1), countChats(t, env))

	assert.Empty(t, env.Events.To(realtime.UserRoom(1), realtime.EventNewChatCreated))
	activated := env.Events.To(realtime.UserRoom(1), realtime.EventChatActivated)
	require.Len(t, activated, 2)
	assert.EqualValues(t, 2, realtimetest.Decode(activated[1])["unread_count"])
	assert.Len(t, env.Events.To(realtime.UserRoom(2), realtime.EventChatActivated), 2)
}

func TestSendMessageRejects(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "   ")
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	_, err = svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), strings.Repeat("x", 2001))
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	// not matched: user3 liked user1 but user1 passed
	_, err = svc.SendMessage(ctx, 1, chatref.ForPair(1, 3), "hi")
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	// outsider using someone else's preparation key
	_, err = svc.SendMessage(ctx, 3, chatref.ForPair(1, 2), "hi")
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	_, err = svc.SendMessage(ctx, 1, chatref.ForChat("chat_missing"), "hi")
	assert.Equal(t, codes.NotFound, svcErr.Code(err))

	res, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 4, chatref.ForChat(res.ChatID), "hi")
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	assert.Equal(t, int64(1), countChats(t, env))
}

func TestConcurrentFirstSendsCreateOneChat(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	const senders = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]struct{}{}
	)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(sender uint64) {
			defer wg.Done()
			res, err := svc.SendMessage(ctx, sender, chatref.ForPair(1, 2), "first!")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[res.ChatID] = struct{}{}
			if res.Created {
				created++
			}
		}(uint64(i%2 + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.Equal(t, int64(1), countChats(t, env))

	var messages int64
	require.NoError(t, env.App.DB.Model(&db.Message{}).Count(&messages).Error)
	assert.Equal(t, int64(senders), messages)
}

func TestCreateChatWithoutMessage(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	chat, created, err := svc.CreateChat(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Alex", chat.OtherUser.FirstName)
	assert.Zero(t, chat.UnreadCount)
	assert.Len(t, env.Events.To(realtime.UserRoom(1), realtime.EventMatchPromoted), 1)

	again, created, err := svc.CreateChat(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, chat.ID, again.ID)

	_, _, err = svc.CreateChat(ctx, 1, 4)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	_, _, err = svc.CreateChat(ctx, 1, 99)
	assert.Equal(t, codes.NotFound, svcErr.Code(err))

	require.NoError(t, env.App.DB.Model(&db.User{}).Where("id = ?", 2).Update("active", false).Error)
	_, _, err = svc.CreateChat(ctx, 1, 2)
	assert.Equal(t, codes.NotFound, svcErr.Code(err))
}

func TestSendOnPersistedChatRequiresMatch(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	res, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi")
	require.NoError(t, err)

	// the match is gone but the chat row is still around
	require.NoError(t, repository.NewLikeRepository(env.App.DB).ClearMutual(ctx, 1, 2))

	_, err = svc.SendMessage(ctx, 2, chatref.ForChat(res.ChatID), "still there?")
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))
	_, err = svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hello?")
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	var messages int64
	require.NoError(t, env.App.DB.Model(&db.Message{}).Where("chat_id = ?", res.ChatID).Count(&messages).Error)
	assert.Equal(t, int64(1), messages)
}

// failMessageInsertOnce makes the next insert into messages fail.
func failMessageInsertOnce(t *testing.T, env *apptest.Env) {
	t.Helper()
	var fired atomic.Bool
	require.NoError(t, env.App.DB.Callback().Create().Before("gorm:create").
		Register("test:fail_message_insert", func(tx *gorm.DB) {
			if tx.Statement.Table == "messages" && fired.CompareAndSwap(false, true) {
				_ = tx.AddError(errors.New("insert failed"))
			}
		}))
}

func TestPromotionFollowsActivation(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()
	failMessageInsertOnce(t, env)

	_, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi")
	require.Error(t, err)

	// the chat row survived the failed send but nothing was promoted
	var chat db.Chat
	require.NoError(t, env.App.DB.Take(&chat).Error)
	assert.False(t, chat.IsActive)
	assert.Empty(t, env.Events.To(realtime.UserRoom(2), realtime.EventMatchPromoted))
	assert.Empty(t, env.Events.To(realtime.UserRoom(2), realtime.EventNewChatCreated))

	res, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi again")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, chat.ID, res.ChatID)

	for _, id := range []uint64{1, 2} {
		assert.Len(t, env.Events.To(realtime.UserRoom(id), realtime.EventNewChatCreated), 1)
		assert.Len(t, env.Events.To(realtime.UserRoom(id), realtime.EventMatchPromoted), 1)
	}
	var notes int64
	require.NoError(t, env.App.DB.Model(&db.Notification{}).
		Where("user_id = ? AND type = ?", 2, db.NotificationMessage).Count(&notes).Error)
	assert.Equal(t, int64(1), notes)

	// a later message only activates
	again, err := svc.SendMessage(ctx, 2, chatref.ForChat(res.ChatID), "hey")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Len(t, env.Events.To(realtime.UserRoom(1), realtime.EventMatchPromoted), 1)
}

func TestListChatsUnreadAndLastMessage(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	empty, err := svc.ListChats(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "one")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "two")
	require.NoError(t, err)

	forReceiver, err := svc.ListChats(ctx, 2)
	require.NoError(t, err)
	require.Len(t, forReceiver, 1)
	assert.Equal(t, int64(2), forReceiver[0].UnreadCount)
	require.NotNil(t, forReceiver[0].LastMessage)
	assert.Equal(t, "two", forReceiver[0].LastMessage.Content)
	assert.Equal(t, "Alex", forReceiver[0].OtherUser.FirstName)
	assert.True(t, forReceiver[0].IsActive)

	forSender, err := svc.ListChats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, forSender, 1)
	assert.Zero(t, forSender[0].UnreadCount)
}

func TestListMessages(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	page, err := svc.ListMessages(ctx, 1, chatref.ForPair(1, 2), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	_, err = svc.ListMessages(ctx, 3, chatref.ForPair(1, 2), nil, 0)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	var chatID string
	for _, text := range []string{"a", "b", "c"} {
		res, err := svc.SendMessage(ctx, 2, chatref.ForPair(1, 2), text)
		require.NoError(t, err)
		chatID = res.ChatID
	}

	page, err = svc.ListMessages(ctx, 1, chatref.ForChat(chatID), nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "c", page.Messages[0].Content)
	require.NotNil(t, page.NextPaginationToken)

	page, err = svc.ListMessages(ctx, 1, chatref.ForChat(chatID), page.NextPaginationToken, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "a", page.Messages[0].Content)
	assert.Nil(t, page.NextPaginationToken)

	_, err = svc.ListMessages(ctx, 4, chatref.ForChat(chatID), nil, 0)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))
}

func TestMarkReadSendsReceiptOnce(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "one")
	require.NoError(t, err)
	second, err := svc.SendMessage(ctx, 1, chatref.ForChat(first.ChatID), "two")
	require.NoError(t, err)

	// the sender has nothing to read
	ids, err := svc.MarkRead(ctx, 1, first.ChatID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = svc.MarkRead(ctx, 2, first.ChatID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{first.Message.ID, second.Message.ID}, ids)

	receipts := env.Events.To(realtime.UserRoom(1), realtime.EventMessagesRead)
	require.Len(t, receipts, 1)
	payload := realtimetest.Decode(receipts[0])
	assert.Equal(t, first.ChatID, payload["chat_id"])
	assert.EqualValues(t, 2, payload["reader_id"])
	assert.Len(t, payload["message_ids"], 2)

	// idempotent
	ids, err = svc.MarkRead(ctx, 2, first.ChatID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, env.Events.To(realtime.UserRoom(1), realtime.EventMessagesRead), 1)

	list, err := svc.ListChats(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)

	_, err = svc.MarkRead(ctx, 3, first.ChatID)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))
}

func TestDeleteChatKeepsMatch(t *testing.T) {
	svc, env := setupService(t)
	ctx := context.Background()

	res, err := svc.SendMessage(ctx, 1, chatref.ForPair(1, 2), "hi")
	require.NoError(t, err)

	err = svc.DeleteChat(ctx, 3, res.ChatID)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))

	require.NoError(t, svc.DeleteChat(ctx, 2, res.ChatID))
	assert.Zero(t, countChats(t, env))
	for _, id := range []uint64{1, 2} {
		assert.Len(t, env.Events.To(realtime.UserRoom(id), realtime.EventChatDeleted), 1)
	}

	pending, err := repository.NewLikeRepository(env.App.DB).ListMutual(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the match is pending again")
	assert.Nil(t, pending[0].ChatID)

	err = svc.DeleteChat(ctx, 2, res.ChatID)
	assert.Equal(t, codes.NotFound, svcErr.Code(err))

	again, err := svc.SendMessage(ctx, 2, chatref.ForPair(1, 2), "again")
	require.NoError(t, err)
	assert.True(t, again.Created)
	assert.NotEqual(t, res.ChatID, again.ChatID)
}

func TestChatGateway(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	err := svc.JoinChat(ctx, 1, "1_2")
	assert.Equal(t, codes.FailedPrecondition, svcErr.Code(err))
	err = svc.JoinChat(ctx, 1, "garbage")
	assert.Equal(t, codes.InvalidArgument, svcErr.Code(err))

	ack, err := svc.SendFromSocket(ctx, 2, "1_2", "from the socket")
	require.NoError(t, err)
	sent, ok := ack.(chats.SendResult)
	require.True(t, ok)
	assert.True(t, sent.Created)

	require.NoError(t, svc.JoinChat(ctx, 1, sent.ChatID))
	err = svc.JoinChat(ctx, 3, sent.ChatID)
	assert.Equal(t, codes.PermissionDenied, svcErr.Code(err))
}
