package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zhutalk/internal/config"
	"zhutalk/internal/db"
	"zhutalk/internal/events"
	"zhutalk/internal/logging"
	"zhutalk/internal/metrics"
	"zhutalk/internal/router"
	"zhutalk/internal/services"
	"zhutalk/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const articleCacheSize = 1024

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogFormat)
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		return serve(cfg)
	},
}

func serve(cfg config.Config) error {
	gdb, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info().Msg("Database connection established")

	if cfg.AutoMigrate {
		if err := db.MigrateUp(gdb); err != nil {
			return err
		}
		log.Info().Msg("Database migrated")
	}

	articles, err := store.NewCachedArticleStore(store.NewArticleStore(gdb), articleCacheSize, cfg.Policy.ArticleCacheTTL)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	opts := []services.Option{services.WithMetrics(m)}

	if cfg.RedisURL != "" {
		idem, err := services.NewRedisIdempotency(cfg.RedisURL, cfg.Policy.IdempotencyTTL)
		if err != nil {
			// 幂等只是保护重试，Redis 不可用时照常服务
			log.Warn().Err(err).Msg("Redis unavailable, idempotent create disabled")
		} else {
			defer idem.Close()
			opts = append(opts, services.WithIdempotency(idem))
			log.Info().Msg("Idempotent create enabled")
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		log.Info().Str("nats_url", cfg.NATSURL).Msg("Events enabled")
	} else {
		log.Info().Msg("Events disabled (NATS_URL not set)")
	}
	defer publisher.Close()
	opts = append(opts, services.WithPublisher(publisher))

	svc := services.NewCommentService(store.NewCommentStore(gdb), articles, cfg.Policy, opts...)

	engine, err := router.New(router.Deps{
		Config:   cfg,
		Comments: svc,
		Users:    store.NewUserStore(gdb),
		Ping:     func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
