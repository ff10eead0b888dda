package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spherical/table-extractor/internal/cache"
	"github.com/spherical/table-extractor/internal/config"
	"github.com/spherical/table-extractor/internal/storage"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func cacheOptions(c *config.Config) cache.Options {
	return cache.Options{
		Driver:     c.Cache.Driver,
		MaxEntries: c.Cache.MaxEntries,
		Redis: cache.RedisConfig{
			URL:      c.Cache.Redis.URL,
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			PoolSize: c.Cache.Redis.PoolSize,
			Prefix:   c.Cache.Redis.Prefix,
		},
	}
}

func historyOptions(c *config.Config) storage.Options {
	return storage.Options{
		Driver:      c.History.Driver,
		SQLitePath:  c.History.SQLite.Path,
		PostgresDSN: c.History.Postgres.DSN,
	}
}
