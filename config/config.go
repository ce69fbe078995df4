// Package config provides the weave runtime configuration.
//
// Configuration is assembled in three layers with fixed precedence:
// defaults, then an optional YAML file, then environment variables with the
// WEAVE_ prefix:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("weave.yaml").
//	    Load()
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	// Server configures the operational HTTP endpoint (metrics, health).
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Runtime configures outbound call behavior.
	Runtime RuntimeConfig `yaml:"runtime" env:"RUNTIME"`

	// Health configures the capability server health checker.
	Health HealthConfig `yaml:"health" env:"HEALTH"`

	// Database configures the relational record store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis configures the Redis-backed message store and caches.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Mongo configures the optional MongoDB message store.
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// Conversation selects the conversation message store backend.
	Conversation ConversationConfig `yaml:"conversation" env:"CONVERSATION"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OTLP trace and metric export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the operational HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// RuntimeConfig bounds every outbound operation. Connect, catalog listing,
// tool invocation, and agent-to-agent sends never block past these unless a
// capability server record overrides them.
type RuntimeConfig struct {
	// ConnectTimeout bounds transport establishment and handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// RequestTimeout bounds a single catalog listing or tool invocation.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// AgentCallTimeout bounds one agent-to-agent send.
	AgentCallTimeout time.Duration `yaml:"agent_call_timeout" env:"AGENT_CALL_TIMEOUT"`
	// AgentCardTTL bounds how long a discovered agent card is reused.
	AgentCardTTL time.Duration `yaml:"agent_card_ttl" env:"AGENT_CARD_TTL"`
}

// HealthConfig configures the periodic health check scheduler.
type HealthConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Interval between scheduled sweeps over all servers in scope.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// CheckTimeout bounds a single server's connect-list-disconnect cycle.
	CheckTimeout time.Duration `yaml:"check_timeout" env:"CHECK_TIMEOUT"`
	// Concurrency limits how many servers are checked at once.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// RatePerSecond paces check starts across a sweep; 0 disables pacing.
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	RateBurst     int     `yaml:"rate_burst" env:"RATE_BURST"`
	// Scopes lists the tenant/project pairs the scheduler sweeps, each in
	// "tenant/project" form. Empty leaves scheduled sweeps off; one-shot
	// checks through the CLI still work.
	Scopes []string `yaml:"scopes" env:"SCOPES"`
}

// DatabaseConfig configures the relational record store.
type DatabaseConfig struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME"`
}

// RedisConfig configures Redis connections.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// MongoConfig configures the MongoDB message store backend.
type MongoConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	Database string `yaml:"database" env:"DATABASE"`
}

// ConversationConfig selects where conversation messages are persisted.
type ConversationConfig struct {
	// Backend is one of memory, redis, mongo.
	Backend string `yaml:"backend" env:"BACKEND"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Runtime:      DefaultRuntimeConfig(),
		Health:       DefaultHealthConfig(),
		Database:     DefaultDatabaseConfig(),
		Redis:        DefaultRedisConfig(),
		Mongo:        DefaultMongoConfig(),
		Conversation: ConversationConfig{Backend: "memory"},
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default operational server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultRuntimeConfig returns the default outbound call bounds.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ConnectTimeout:   10 * time.Second,
		RequestTimeout:   30 * time.Second,
		AgentCallTimeout: 30 * time.Second,
		AgentCardTTL:     5 * time.Minute,
	}
}

// DefaultHealthConfig returns the default health checker configuration.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Enabled:       true,
		Interval:      30 * time.Second,
		CheckTimeout:  10 * time.Second,
		Concurrency:   8,
		RatePerSecond: 10,
		RateBurst:     20,
	}
}

// DefaultDatabaseConfig returns the default record store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "weave",
		Password:        "",
		Name:            "weave",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig returns the default MongoDB configuration.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:      "mongodb://localhost:27017",
		Database: "weave",
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "weave",
		SampleRate:   1.0,
	}
}
