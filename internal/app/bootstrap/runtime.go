// Package bootstrap assembles the runtime from config for the cmd binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/conversation"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/events"
	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
	"github.com/wolfman30/travel-enquiry-bot/internal/messaging"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens the pgx pool, or returns nil without DATABASE_URL.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildSQLDB opens a database/sql handle through the pgx stdlib driver.
func BuildSQLDB(cfg *appconfig.Config) (*sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// BuildEnquiryRepository picks Postgres when a pool exists.
func BuildEnquiryRepository(pool *pgxpool.Pool, logger *logging.Logger) enquiry.Repository {
	if pool == nil {
		if logger != nil {
			logger.Warn("DATABASE_URL not set; enquiries are kept in memory")
		}
		return enquiry.NewInMemoryRepository()
	}
	return enquiry.NewPostgresRepository(pool)
}

// BuildLocker serialises turns per phone across processes when Redis exists.
func BuildLocker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) enquiry.KeyedLocker {
	if redisClient == nil || cfg == nil {
		return enquiry.NewMemoryLocker()
	}
	return enquiry.NewRedisLocker(redisClient, cfg.EnquiryLockTTL, cfg.EnquiryLockWait, logger)
}

// BuildHistoryStore keeps recent turns in Redis, or in memory without it.
func BuildHistoryStore(redisClient *redis.Client) conversation.HistoryStore {
	if redisClient == nil {
		return conversation.NewMemoryHistoryStore()
	}
	return conversation.NewRedisHistoryStore(redisClient, nil)
}

// BuildWebhookLimiter shares the webhook rate budget through Redis when it
// exists. A non-positive rate turns limiting off.
func BuildWebhookLimiter(redisClient *redis.Client, cfg *appconfig.Config) httpmiddleware.Limiter {
	if cfg == nil || cfg.WebhookRateLimitRPS <= 0 {
		return nil
	}
	burst := max(cfg.WebhookRateLimitBurst, 1)
	if redisClient == nil {
		return httpmiddleware.NewTokenBucket(cfg.WebhookRateLimitRPS, burst)
	}
	window := time.Duration(float64(burst) / cfg.WebhookRateLimitRPS * float64(time.Second))
	return httpmiddleware.NewRedisWindow(redisClient, burst, window)
}

// BuildContactsStore returns the dashboard contact log.
func BuildContactsStore(db *sql.DB, cfg *appconfig.Config, logger *logging.Logger) contacts.Store {
	var exclude []string
	if cfg != nil {
		exclude = cfg.ExcludePhones
	}
	if db == nil {
		return contacts.NewMemoryStore(exclude...)
	}
	if len(exclude) > 0 && logger != nil {
		logger.Info("contact log enabled with exclusions", "excluded_count", len(exclude))
	}
	return contacts.NewSQLStore(db, exclude)
}

// ProcessedStore is what the webhook and the purge job need.
type ProcessedStore interface {
	messaging.ProcessedTracker
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// BuildProcessedStore picks the webhook dedup store: Postgres when a pool
// exists, then Redis with retention as the key TTL, then memory.
func BuildProcessedStore(pool *pgxpool.Pool, redisClient *redis.Client, retention time.Duration) ProcessedStore {
	switch {
	case pool != nil:
		return events.NewProcessedStore(pool)
	case redisClient != nil:
		return events.NewRedisProcessedStore(redisClient, retention)
	default:
		return events.NewMemoryProcessedStore()
	}
}
