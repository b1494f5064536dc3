package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"medichat/internal/config"
	"medichat/internal/redis"
	"medichat/internal/storage"
	"medichat/internal/store"
)

// openStore builds the configured persistence store, wrapped in the Redis
// transcript cache when redis is enabled. The returned func releases it.
func openStore(cfg *config.Config, log logrus.FieldLogger) (store.Backend, func(), error) {
	var (
		backend store.Backend
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	driver := strings.ToLower(cfg.Store.Driver)
	switch driver {
	case "sqlite", "sqlite3", "mysql":
		db, err := storage.Open(driver, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		if err := storage.Migrate(db, driver); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		backend = store.NewSQLStore(db)
	case "rest":
		rest, err := store.NewRESTStore(store.RESTConfig{
			BaseURL:       cfg.Store.RESTURL,
			APIKey:        cfg.Store.RESTKey,
			SessionsTable: cfg.Store.SessionsTable,
			MessagesTable: cfg.Store.MessagesTable,
			Timeout:       time.Duration(cfg.Store.RESTTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = rest
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create redis client: %w", err)
		}
		closers = append(closers, func() { rdb.Close() })
		backend = store.NewCachedStore(backend, rdb, log)
	}

	log.WithFields(logrus.Fields{"driver": driver, "cache": cfg.Redis.Enabled}).Debug("store ready")
	return backend, cleanup, nil
}
