// Package app assembles the service from its configuration: database pool,
// Redis, task cache, OIDC login and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"

	"eigentask/backend/internal/auth"
	"eigentask/backend/internal/cache"
	"eigentask/backend/internal/config"
	"eigentask/backend/internal/database"
	"eigentask/backend/internal/handlers"
	"eigentask/backend/internal/middleware"
	"eigentask/backend/internal/monitoring"
	"eigentask/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config *config.Config
	Pool   *database.DatabasePool
	Redis  *redis.Client
	Router *gin.Engine
}

// OpenDatabase opens the pool described by cfg.
func OpenDatabase(cfg *config.Config) (*database.DatabasePool, error) {
	return database.NewDatabasePool(&database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        database.ParseLogLevel(cfg.Database.LogLevel),
	})
}

func New(cfg *config.Config) (*App, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	redisClient := cache.NewRedisClient(&cache.ClientConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealthChecker(0)
	health.Register("database", pool.HealthContext)
	health.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	stats := map[string]monitoring.StatsFunc{
		"database": pool.Stats,
	}

	sessionService := services.NewSessionService()
	var taskService services.TaskService = services.NewTaskService()
	var invalidator handlers.TaskCacheInvalidator
	if cfg.Cache.Enabled {
		taskCache := cache.NewMultiLevelCache(
			cache.NewMemoryCache(cfg.Cache.L1MaxEntries, cfg.Cache.L1TTL),
			cache.NewRedisCache(redisClient, cfg.Cache.KeyPrefix),
			cache.WithL1TTL(cfg.Cache.L1TTL),
		)
		cached := services.NewCachedTaskService(taskService, taskCache, cfg.Cache.TaskTTL)
		taskService = cached
		invalidator = cached
		health.Register("cache", taskCache.Health)
		stats["cache"] = cached.CacheStats
	}

	provider := auth.NewProvider(auth.ProviderConfig{
		BaseURL:      cfg.Auth.KeycloakURL,
		Realm:        cfg.Auth.Realm,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.Auth.CallbackURL,
	})
	tokens := auth.NewTokenStore(redisClient, cfg.Redis.SessionPrefix, cfg.Redis.SessionTTL)
	signer := auth.NewCookieSigner(cfg.Auth.SessionSecret)
	authenticator := auth.NewAuthenticator(auth.NewVerifier(provider, cfg.Auth.ClientID), tokens, provider, signer)
	authHandler := handlers.NewAuthHandler(
		provider,
		auth.NewLoginStateStore(redisClient, cfg.Redis.SessionPrefix),
		tokens,
		signer,
		cfg.Server.FrontendOrigin,
		handlers.SessionCookieConfig{
			Name:   cfg.Auth.CookieName,
			Domain: cfg.Auth.CookieDomain,
			Secure: cfg.Auth.CookieSecure,
			MaxAge: cfg.Redis.SessionTTL,
		},
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.BurstSize,
			IdleTTL:           cfg.RateLimit.CleanupInterval,
		})
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		DB:             pool.DB,
		TaskService:    taskService,
		SessionService: sessionService,
		Invalidator:    invalidator,
		Authenticator:  authenticator,
		Auth:           authHandler,
		CookieName:     cfg.Auth.CookieName,
		FrontendOrigin: cfg.Server.FrontendOrigin,
		RateLimiter:    limiter,
		Metrics:        metrics,
		Health:         health,
		StatsSources:   stats,
	})

	return &App{
		Config: cfg,
		Pool:   pool,
		Redis:  redisClient,
		Router: router,
	}, nil
}

func (a *App) Close() error {
	return errors.Join(a.Redis.Close(), a.Pool.Close())
}
