package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hospicore/auth-system/internal/api"
	"github.com/hospicore/auth-system/internal/core/service"
	"github.com/hospicore/auth-system/internal/infrastructure/db/mongo"
	"github.com/hospicore/auth-system/internal/infrastructure/db/redis"
	"github.com/hospicore/auth-system/internal/infrastructure/mail"
	"github.com/hospicore/auth-system/internal/infrastructure/queue"
	"github.com/hospicore/auth-system/internal/pkg/config"
	"github.com/hospicore/auth-system/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependencies ---
	mongoClient, db, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer rdb.Close() //nolint:errcheck

	accounts := mongo.NewAccountRepository(db)
	if err := accounts.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("mongo index setup failed")
	}

	dispatcher := queue.NewDispatcher(cfg.MailWorkers, mail.NewLogSender(log), log)
	dispatcher.Start(ctx)

	authService := service.NewAuthService(
		accounts,
		redis.NewOTPStore(rdb),
		redis.NewRefreshStore(rdb),
		dispatcher,
		cfg.JWTSecret,
		cfg.AccessTTL,
		cfg.RefreshTTL,
		cfg.OTPTTL,
	)

	e := api.NewRouter(api.Deps{
		Auth:      authService,
		Accounts:  accounts,
		Mongo:     db,
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
		Env:       cfg.Env,
		Log:       log,
	})

	// --- Serve until signalled ---
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("auth server listening")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
		os.Exit(1)
	}
	log.Info().Msg("auth server stopped")
}
