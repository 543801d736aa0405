package server

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/tweetheart/internal/app"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings the database and Redis.
func HealthCheck(appCtx *app.AppContext) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()

		sqlDB, err := appCtx.DB.DB()
		if err != nil {
			return fmt.Errorf("db handle: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("db ping: %w", err)
		}
		if err := appCtx.RedisCache.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}
