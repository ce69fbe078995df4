package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss reports an absent key, as opposed to a transport failure.
var ErrCacheMiss = errors.New("cache: miss")

// ErrClosed reports use after Close.
var ErrClosed = errors.New("cache: manager is closed")

// Config holds the Redis connection settings for the cache.
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`

	// PingInterval enables a background liveness loop when positive.
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		DefaultTTL:   5 * time.Minute,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		PingInterval: 30 * time.Second,
	}
}

// Manager owns a Redis client and its lifecycle.
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// NewManager connects to Redis and verifies the connection with a ping.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", config.Addr, err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stopCh: make(chan struct{}),
	}
	if config.PingInterval > 0 {
		go m.pingLoop()
	}

	m.logger.Info("cache connected",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize))
	return m, nil
}

// Get returns the string value stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if m.isClosed() {
		return "", ErrClosed
	}
	val, err := m.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl uses the configured default; a
// negative ttl stores without expiry.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.isClosed() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GetJSON reads the value under key into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("decode cached value for %s: %w", key, err)
	}
	return nil
}

// SetJSON serializes value and stores it under key.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete removes the given keys. Missing keys are not an error.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m.isClosed() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Exists reports how many of the given keys exist.
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	if m.isClosed() {
		return 0, ErrClosed
	}
	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache exists: %w", err)
	}
	return count, nil
}

// Expire resets the ttl of an existing key.
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if m.isClosed() {
		return ErrClosed
	}
	if err := m.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cache expire %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (m *Manager) Ping(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// PoolStats exposes the client's connection pool counters.
func (m *Manager) PoolStats() *redis.PoolStats {
	return m.redis.PoolStats()
}

// Close stops the ping loop and releases the connection pool. Safe to
// call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stopCh)
	m.mu.Unlock()

	m.logger.Info("cache closing")
	return m.redis.Close()
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) pingLoop() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Warn("cache ping failed", zap.Error(err))
			}
			cancel()
		}
	}
}
