package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/tweetheart/internal/db"
	"github.com/oggyb/tweetheart/internal/db/dbtest"
	"github.com/oggyb/tweetheart/internal/repository"
)

func TestCreateIfAbsentNormalisesPair(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChatRepository(dbtest.Open(t))

	chat := db.Chat{ID: "chat_a", User1ID: 9, User2ID: 4}
	created, err := repo.CreateIfAbsent(ctx, &chat)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(4), chat.User1ID)
	assert.Equal(t, uint64(9), chat.User2ID)

	// same pair, other order, other id → nothing written
	dup := db.Chat{ID: "chat_b", User1ID: 4, User2ID: 9}
	created, err = repo.CreateIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := repo.FindByPair(ctx, 9, 4)
	require.NoError(t, err)
	assert.Equal(t, "chat_a", stored.ID)
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	dbase := dbtest.Open(t)
	repo := repository.NewChatRepository(dbase)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := db.Chat{ID: "chat_" + string(rune('a'+i)), User1ID: 1, User2ID: 2}
			created, err := repo.CreateIfAbsent(ctx, &chat)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	var count int64
	require.NoError(t, dbase.Model(&db.Chat{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordMessageActivatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewChatRepository(dbtest.Open(t))

	chat := db.Chat{ID: "chat_x", User1ID: 1, User2ID: 2}
	_, err := repo.CreateIfAbsent(ctx, &chat)
	require.NoError(t, err)

	activated, err := repo.RecordMessage(ctx, chat.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, activated)

	activated, err = repo.RecordMessage(ctx, chat.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, activated)

	stored, err := repo.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.NotNil(t, stored.LastMessageAt)
}

func TestDeleteChatCascadesMessages(t *testing.T) {
	ctx := context.Background()
	dbase := dbtest.Open(t)
	chats := repository.NewChatRepository(dbase)
	messages := repository.NewMessageRepository(dbase)

	chat := db.Chat{ID: "chat_del", User1ID: 1, User2ID: 2}
	_, err := chats.CreateIfAbsent(ctx, &chat)
	require.NoError(t, err)
	require.NoError(t, messages.Create(ctx, &db.Message{ChatID: chat.ID, SenderID: 1, Content: "hi"}))

	require.NoError(t, chats.Delete(ctx, chat.ID))

	_, err = chats.Get(ctx, chat.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	page, _, err := messages.List(ctx, chat.ID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

// newMockDB wires gorm's MySQL dialector to sqlmock for failure-path tests.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestFindByPairPropagatesDBError(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewChatRepository(gdb)

	mock.ExpectQuery("SELECT \\* FROM `chats` WHERE user1_id = \\? AND user2_id = \\?").
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByPair(context.Background(), 2, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPairNotFound(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := repository.NewChatRepository(gdb)

	mock.ExpectQuery("SELECT \\* FROM `chats`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user1_id", "user2_id"}))

	_, err := repo.FindByPair(context.Background(), 1, 2)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
