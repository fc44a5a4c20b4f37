package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"learning-progress-service/internal/app"
	"learning-progress-service/internal/config"
	"learning-progress-service/internal/infra/docstore"
	"learning-progress-service/internal/infra/memory"
	mongostore "learning-progress-service/internal/infra/mongo"
	pgstore "learning-progress-service/internal/infra/postgres"
	redisstore "learning-progress-service/internal/infra/redis"
)

// backend is the opened document store plus the shared redis client, if any.
type backend struct {
	store   docstore.Store
	redis   *redis.Client
	closers []func()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
	}

	driver := cfg.StoreDriver()
	switch driver {
	case config.DriverMemory:
		b.store = memory.NewDocumentStore()
	case config.DriverRedis:
		if b.redis == nil {
			b.Close()
			return nil, fmt.Errorf("store driver redis needs redis.addr")
		}
		b.store = redisstore.NewDocumentStore(b.redis)
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.store = pgstore.NewDocumentStore(pool)
	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		name := cfg.Mongo.Database
		if name == "" {
			name = "learning"
		}
		store := mongostore.NewDocumentStore(client.Database(name))
		if err := store.EnsureIndexes(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.store = store
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	log.Printf("document store: %s", driver)
	return b, nil
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// services are the wired use cases shared by every command.
type services struct {
	sessions *app.SessionService
	progress *app.ProgressService
}

func buildServices(cfg config.Config, b *backend, events app.EventPublisher) services {
	modules := docstore.NewModuleRepository(b.store)
	courses := docstore.NewCourseRepository(b.store)

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.ModuleReader
	if b.redis != nil {
		catalog = redisstore.NewModuleCache(b.redis, modules, catalogTTL)
	} else {
		catalog = memory.NewModuleCache(modules, catalogTTL)
	}

	aggregator := app.NewProgressAggregator(modules, cfg.Progress.ModuleLoadConcurrency)
	progress := app.NewProgressService(courses, modules, aggregator, events, cfg.Progress.RetryAttempts)

	policy := app.DefaultSessionPolicy()
	policy.GracePeriod = config.TTLDuration(cfg.Session.GracePeriod, policy.GracePeriod)
	if cfg.Session.MaxDurationMinutes > 0 {
		policy.MaxDurationMinutes = cfg.Session.MaxDurationMinutes
	}

	sessions := app.NewSessionService(
		docstore.NewSessionRepository(b.store),
		docstore.NewSlotRepository(b.store),
		catalog,
		progress,
		events,
		policy,
	)
	return services{sessions: sessions, progress: progress}
}
