package cache

import (
	"context"
	"fmt"
)

// Drivers accepted by Open.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Options selects and configures a cache backend.
type Options struct {
	Driver     string
	MaxEntries int
	Redis      RedisConfig
}

// Open builds the configured cache. It returns a nil Client for the none
// driver.
func Open(ctx context.Context, opts Options) (Client, error) {
	switch opts.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemoryClient(opts.MaxEntries), nil
	case DriverRedis:
		c, err := NewRedisClient(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}
