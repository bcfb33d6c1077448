package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/RealSalty1/ORB-TopStep-sub001/internal/blob/s3"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/cache/redis"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/config"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/engine"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/feed"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/notify"
	"github.com/RealSalty1/ORB-TopStep-sub001/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. Optional sinks
// stay nil when their backend is not configured; modes degrade accordingly.
type Dependencies struct {
	Runner *engine.Runner

	RecordStore domain.RecordStore
	EventStore  domain.EventStore
	RunCache    domain.RunCache
	RunLock     *redis.RunLock
	Archiver    domain.ResultArchiver

	Notifier *notify.Notifier
}

// needsPostgres reports whether the mode persists to the database.
func needsPostgres(mode string) bool {
	return mode == "persist" || mode == "archive"
}

// needsS3 reports whether the mode uploads run artifacts.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs the concrete dependency implementations from configuration
// and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	loader := feed.NewLoader(cfg.Feed, logger)
	deps.Runner = engine.NewRunner(cfg, loader, nil, nil, engine.NewPortfolioExposure(0), logger)

	if needsPostgres(cfg.Mode) {
		if !cfg.PostgresEnabled() {
			cleanup()
			return nil, nil, fmt.Errorf("wire: mode %q requires postgres configuration", cfg.Mode)
		}
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.RecordStore = postgres.NewRecordStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
	}

	if cfg.RedisEnabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RunCache = redis.NewRunCache(redisClient)
		deps.RunLock = redis.NewRunLock(redisClient)
	}

	if needsS3(cfg.Mode) {
		if !cfg.S3Enabled() {
			cleanup()
			return nil, nil, fmt.Errorf("wire: mode %q requires s3 configuration", cfg.Mode)
		}
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	return deps, cleanup, nil
}
