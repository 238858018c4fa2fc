package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/availability"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/lock"
	"github.com/iliyamo/table-reservation/internal/notify"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/repository/memory"
)

// openStore returns the configured store.  The returned *sql.DB is nil
// for the memory store.
func openStore(cfg config.Config, log logrus.FieldLogger) (repository.Store, *sql.DB, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		return memory.New(), nil, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return repository.NewMySQLStore(db), db, nil
}

// migrateUp applies the migrations over a dedicated connection, since the
// migrator closes the handle it is given.
func migrateUp(cfg config.Config, log logrus.FieldLogger) error {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	mg, err := database.NewMigrator(db, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer mg.Close()
	return mg.Up()
}

// sharedBackends picks Redis-backed cache and lock when Redis is usable,
// falling back to in-process ones otherwise.
func sharedBackends(rdb *redis.Client, eng config.EngineConfig, cache config.CacheConfig, log logrus.FieldLogger) (availability.Cache, lock.Locker) {
	var c availability.Cache = availability.NewMemoryCache()
	if cache.Enabled && rdb != nil {
		c = availability.NewRedisCache(rdb, cache.Prefix)
	} else if !cache.Enabled {
		c = availability.NopCache{}
	}

	var l lock.Locker = lock.NewKeyedMutex()
	switch {
	case eng.LockBackend == config.LockRedis && rdb != nil:
		l = lock.NewRedisLocker(rdb, "lock", eng.LockTTL, 0, log)
	case eng.LockBackend == config.LockRedis:
		log.Warn("LOCK_BACKEND=redis but redis is unreachable; bookings are only serialized within this process")
	}
	return c, l
}

func publisher(q config.QueueConfig, log logrus.FieldLogger) notify.Publisher {
	if !q.Enabled {
		return notify.NewLogPublisher(log)
	}
	return notify.NewRabbitPublisher(q.URL, q.Queue)
}

func pingRedis(rdb *redis.Client) func(context.Context) error {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

func pingDB(db *sql.DB) func(context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext
}
