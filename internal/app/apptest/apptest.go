// Package apptest wires an AppContext over in-memory backends for service tests.
package apptest

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/auth"
	"github.com/oggyb/tweetheart/internal/cache"
	"github.com/oggyb/tweetheart/internal/config"
	"github.com/oggyb/tweetheart/internal/db/dbtest"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/realtime/realtimetest"
	"github.com/oggyb/tweetheart/internal/storage"
)

const SigningSecret = "test-signing-secret"

// Env bundles the AppContext with handles tests assert against.
type Env struct {
	App      *app.AppContext
	Redis    *miniredis.Miniredis
	Events   *realtimetest.Recorder
	Objects  *storage.MemoryStore
	Sessions *auth.Sessions
}

// New returns an Env over a seeded SQLite DB (see db.SeedMinimalTestData).
func New(t *testing.T) *Env {
	t.Helper()

	cfg := config.Load(config.NewViper())
	cfg.Auth.SigningSecret = SigningSecret

	mr := miniredis.RunT(t)
	rc := &cache.RedisCache{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rc.Close() })

	sessions, err := auth.NewSessions(auth.SessionConfig{
		SigningSecret: []byte(cfg.Auth.SigningSecret),
		Issuer:        cfg.Auth.Issuer,
		CookieName:    cfg.Auth.CookieName,
		TokenTTL:      time.Hour,
	})
	require.NoError(t, err)

	appCtx := app.New(cfg, dbtest.OpenSeeded(t), rc, logger.Discard())
	events := &realtimetest.Recorder{}
	objects := storage.NewMemoryStore()
	appCtx.Realtime = events
	appCtx.Storage = objects
	appCtx.Sessions = sessions

	return &Env{App: appCtx, Redis: mr, Events: events, Objects: objects, Sessions: sessions}
}
