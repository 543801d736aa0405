package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/auth"
	"github.com/oggyb/tweetheart/internal/cache"
	"github.com/oggyb/tweetheart/internal/config"
	"github.com/oggyb/tweetheart/internal/db"
	"github.com/oggyb/tweetheart/internal/imaging"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/server"
	"github.com/oggyb/tweetheart/internal/service/chats"
	"github.com/oggyb/tweetheart/internal/storage"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 15 * time.Second
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "tweetheart",
		Short: "Tweetheart dating backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Replace the database contents with demo users and matches",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("env", defaults.GetString("app.env"), "Environment (development seeds demo data)")
	cmd.PersistentFlags().String("http-port", defaults.GetString("http.port"), "HTTP listen port")
	cmd.PersistentFlags().String("grpc-port", defaults.GetString("grpc.port"), "gRPC health listen port")
	cmd.PersistentFlags().String("mysql-dsn", defaults.GetString("mysql.dsn"), "MySQL DSN (overrides db.* settings)")
	cmd.PersistentFlags().String("redis-addr", defaults.GetString("redis.addr"), "Redis address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "app.env", "env")
	bindFlag(cmd, "http.port", "http-port")
	bindFlag(cmd, "grpc.port", "grpc-port")
	bindFlag(cmd, "mysql.dsn", "mysql-dsn")
	bindFlag(cmd, "redis.addr", "redis-addr")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// a missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}
	return nil
}

func runServer(ctx context.Context) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.InitFromConfig(cfg)
	log := logger.L()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(signalCtx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return err
	}

	sessions, err := auth.NewSessions(auth.SessionConfig{
		SigningSecret: []byte(cfg.Auth.SigningSecret),
		Issuer:        cfg.Auth.Issuer,
		CookieName:    cfg.Auth.CookieName,
		TokenTTL:      cfg.Auth.TokenTTL,
		SecureCookie:  cfg.Auth.SecureCookie,
	})
	if err != nil {
		return err
	}

	appCtx := app.New(cfg, database, redisCache, log)
	appCtx.Sessions = sessions

	store, err := newObjectStore(signalCtx, cfg, log)
	if err != nil {
		log.Error("failed to init object storage", "err", err)
		return err
	}
	appCtx.Storage = store

	hub := realtime.NewHub()
	broker := realtime.NewRedisBroker(redisCache.Client, cfg.Redis.Channel, hub, log)
	if err := broker.Start(signalCtx); err != nil {
		log.Error("failed to start realtime broker", "err", err)
		return err
	}
	appCtx.Realtime = broker

	if cfg.IsDevelopment() {
		if err := db.SeedTestData(database, log); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	chatSvc := chats.NewChatService(appCtx)
	socket := realtime.NewSocketHandler(hub, chatSvc, cfg.HTTP.AllowedOrigins, log)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		App:        appCtx,
		Socket:     socket,
		Registrars: server.ServiceRegistrars(appCtx, chatSvc, imaging.NewResizer(cfg.Photos.MaxWidth)),
	})
	if err != nil {
		return err
	}

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(socket.Close)
	grpcServer := server.NewGRPCServer(cfg, log)
	go grpcServer.Watch(signalCtx, healthCheckInterval, server.HealthCheck(appCtx))

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting HTTP server", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("starting gRPC health server", "addr", grpcServer.Addr())
		if err := grpcServer.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-signalCtx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	grpcServer.Stop()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func runSeed() error {
	cfg := config.Load(viper.GetViper())
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return err
	}
	if err := db.SeedTestData(database, log); err != nil {
		log.Error("failed to seed", "err", err)
		return err
	}
	log.Info("seeding completed")
	return nil
}

// newObjectStore returns the S3 store, or in development without bucket
// credentials or endpoint an in-memory store served by the HTTP server.
func newObjectStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.ObjectStore, error) {
	if cfg.IsDevelopment() && cfg.S3.AccessKeyID == "" && cfg.S3.Endpoint == "" {
		base := "http://" + net.JoinHostPort("localhost", cfg.HTTP.Port) + storage.MemoryObjectsPath
		log.Warn("no S3 credentials configured, photos are kept in memory", "served_at", base)
		return storage.NewServedMemoryStore(base), nil
	}
	return storage.NewS3Store(ctx, cfg)
}
