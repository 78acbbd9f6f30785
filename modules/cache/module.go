package cache

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Store names accepted by Config.Store.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds cache configuration.
type Config struct {
	Store       string
	Size        int
	RedisAddr   string
	RedisPrefix string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Store:       StoreMemory,
		Size:        1024,
		RedisAddr:   "localhost:6379",
		RedisPrefix: "file-ingestion:",
	}
}

// Module owns the listing cache and its store.
type Module struct {
	cfg    Config
	store  Store
	cache  *Cache
	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new cache module.
func NewModule(cfg Config, logger types.Logger) *Module {
	return &Module{cfg: cfg, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Cache returns the listing cache. It is nil before Start.
func (m *Module) Cache() *Cache {
	return m.cache
}

// Start builds the configured store.
func (m *Module) Start(ctx context.Context) error {
	switch m.cfg.Store {
	case StoreMemory, "":
		store, err := NewMemoryStore(m.cfg.Size)
		if err != nil {
			return err
		}
		m.store = store
	case StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: m.cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", m.cfg.RedisAddr, err)
		}
		m.store = NewRedisStore(client, m.cfg.RedisPrefix)
	default:
		return fmt.Errorf("unknown cache store %q", m.cfg.Store)
	}

	m.cache = New(m.store, m.logger)
	m.logger.Info("Listing cache ready", "store", m.storeName())
	return nil
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Health pings the store and reports hit statistics.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.cache == nil {
		return mono.HealthStatus{Healthy: false, Message: "cache not initialized"}
	}

	stats := m.cache.GetStats()
	details := map[string]any{
		"store":    m.storeName(),
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": stats.HitRate,
	}
	if err := m.cache.Ping(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("store ping failed: %v", err), Details: details}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

func (m *Module) storeName() string {
	if m.cfg.Store == "" {
		return StoreMemory
	}
	return m.cfg.Store
}
