package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrClosed reports use after Close.
var ErrClosed = errors.New("database: pool is closed")

// Config holds the connection settings for the relational store.
type Config struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" json:"dsn"`

	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`

	// PingInterval enables a background liveness loop when positive.
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          "postgres",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingInterval:    30 * time.Second,
	}
}

// Pool owns a GORM handle and the underlying sql.DB connection pool.
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
}

// Open connects to the configured database and wraps it in a Pool.
func Open(cfg Config, logger *zap.Logger) (*Pool, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (postgres, mysql, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return NewPool(db, cfg, logger)
}

// NewPool applies the pool limits to an already-open GORM handle. Useful
// when the caller opened the handle itself, as tests do.
func NewPool(db *gorm.DB, cfg Config, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, errors.New("database: nil gorm handle")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		stopCh: make(chan struct{}),
	}
	if cfg.PingInterval > 0 {
		go p.pingLoop()
	}

	p.logger.Info("database pool ready",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))
	return p, nil
}

// DB returns the GORM handle.
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// Ping checks the connection.
func (p *Pool) Ping(ctx context.Context) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.sqlDB.PingContext(ctx)
}

// Stats exposes the connection pool counters.
func (p *Pool) Stats() sql.DBStats {
	return p.sqlDB.Stats()
}

// Close stops the ping loop and releases the connections. Safe to call
// more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("database pool closing")
	return p.sqlDB.Close()
}

// TransactionFunc runs inside a transaction. Returning an error rolls
// the transaction back.
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction runs fn in a single transaction.
func (p *Pool) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry runs fn in a transaction, retrying transient
// failures with exponential backoff up to maxAttempts.
func (p *Pool) WithTransactionRetry(ctx context.Context, maxAttempts int, fn TransactionFunc) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := p.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("transaction failed after %d attempts: %w", maxAttempts, lastErr)
		}

		p.logger.Warn("transaction failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

func (p *Pool) pingLoop() {
	ticker := time.NewTicker(p.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
				p.logger.Warn("database ping failed", zap.Error(err))
			} else if err == nil {
				stats := p.Stats()
				p.logger.Debug("database ping ok",
					zap.Int("open", stats.OpenConnections),
					zap.Int("in_use", stats.InUse),
					zap.Int("idle", stats.Idle))
			}
			cancel()
		}
	}
}

// isRetryableError reports whether a transaction error clears on its
// own: deadlocks, serialization conflicts and broken connections.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "deadlock"):
		return true
	// PostgreSQL SQLSTATE 40001.
	case strings.Contains(msg, "serialization failure"), strings.Contains(msg, "40001"):
		return true
	case strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"):
		return true
	case strings.Contains(msg, "lock timeout"), strings.Contains(msg, "lock wait timeout"):
		return true
	case strings.Contains(msg, "bad connection"):
		return true
	}
	return false
}
