package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/api"
	"github.com/rl-arena/ladder-backend/internal/config"
	"github.com/rl-arena/ladder-backend/internal/models"
	"github.com/rl-arena/ladder-backend/internal/repository"
	"github.com/rl-arena/ladder-backend/internal/repository/memory"
	"github.com/rl-arena/ladder-backend/internal/repository/postgres"
	"github.com/rl-arena/ladder-backend/internal/service"
	"github.com/rl-arena/ladder-backend/internal/websocket"
	"github.com/rl-arena/ladder-backend/pkg/database"
	"github.com/rl-arena/ladder-backend/pkg/distributed"
	"github.com/rl-arena/ladder-backend/pkg/logger"
	"github.com/rl-arena/ladder-backend/pkg/ratelimit"
)

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(NewLogger),
	fx.Provide(NewStore),
	fx.Provide(NewCoordination),
	fx.Provide(provideLimiter),
	fx.Provide(NewEngine),
	fx.Provide(NewHub),
	fx.Provide(api.SetupRouter),
)

func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	lc.Append(fx.StopHook(logger.Sync))
	return logger.L(), nil
}

// NewStore postgres (migrated on start) or the in-memory store, by STORE.
func NewStore(lc fx.Lifecycle, cfg *config.Config) (repository.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("Using in-memory store, state is lost on restart")
		return memory.NewStore(models.DefaultStages()...), nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	lc.Append(fx.StopHook(db.Close))
	return postgres.NewStore(db), nil
}

// Coordination cross-instance pieces: backed by Redis when REDIS_URL is set, in-process otherwise.
type Coordination struct {
	Ledger  service.ExclusionLedger
	Locker  service.Locker
	Limiter ratelimit.Limiter
	// Bus is nil without Redis; events then go straight to the hub.
	Bus *distributed.EventBus
}

func NewCoordination(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*Coordination, error) {
	if cfg.RedisURL == "" {
		return &Coordination{
			Ledger:  service.NewMemoryExclusionLedger(nil),
			Locker:  service.NewLocalLocker(),
			Limiter: ratelimit.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow),
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			log.Info("Redis connection established", zap.String("addr", opts.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return &Coordination{
		Ledger: distributed.NewRedisExclusionLedger(client),
		Locker: redisLocker{distributed.NewRedisLockManager(client)},
		Limiter: ratelimit.NewRedisRateLimiter(client, ratelimit.RedisRateLimiterConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		}),
		Bus: distributed.NewEventBus(client, log),
	}, nil
}

// redisLocker hands RedisLockManager locks to the engine as leases.
type redisLocker struct {
	manager *distributed.RedisLockManager
}

func (l redisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (service.Lease, error) {
	lock, err := l.manager.Lock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func provideLimiter(c *Coordination) ratelimit.Limiter {
	return c.Limiter
}

func NewHub(log *zap.Logger) *websocket.Hub {
	return websocket.NewHub(log)
}

// Options engine tunables from config.
func Options(cfg *config.Config) service.Options {
	opts := service.DefaultOptions()
	opts.DeclineExclusion = cfg.Matchmaking.DeclineExclusion
	opts.TierSearchReach = cfg.Matchmaking.TierSearchReach
	opts.RankedDailySetLimit = cfg.Matchmaking.RankedDailySetLimit
	opts.MatchRetryAttempts = cfg.Matchmaking.MatchRetryAttempts
	opts.MatchLockTTL = cfg.Matchmaking.MatchLockTTL
	return opts
}

func NewEngine(cfg *config.Config, store repository.Store, coord *Coordination, hub *websocket.Hub, log *zap.Logger) *service.Engine {
	var events service.Publisher = hub
	if coord.Bus != nil {
		events = coord.Bus
	}
	return service.NewEngine(store, coord.Ledger, coord.Locker, events, Options(cfg), log)
}
