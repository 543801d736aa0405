package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/auth"
	"github.com/oggyb/tweetheart/internal/cache"
	"github.com/oggyb/tweetheart/internal/config"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/storage"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Realtime   realtime.Emitter
	Storage    storage.ObjectStore
	Sessions   *auth.Sessions
}

// New creates a new AppContext. Realtime defaults to a no-op emitter and
// Storage to an in-memory store until the caller sets them.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Realtime:   realtime.Nop{},
		Storage:    storage.NewMemoryStore(),
	}
}
