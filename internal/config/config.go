package config

import "time"

// StreamConfig is the root configuration for the streaming client.
type StreamConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Feed       FeedConfig       `yaml:"feed"`
	Connection ConnectionConfig `yaml:"connection"`
	Batch      BatchConfig      `yaml:"batch"`
	Cache      CacheConfig      `yaml:"cache"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds market feed endpoint settings.
type FeedConfig struct {
	Host      string `yaml:"host"`       // e.g., "feed.example.com"
	Path      string `yaml:"path"`       // WebSocket path, default /v1/stream
	Secure    bool   `yaml:"secure"`     // wss:// when true, ws:// when false
	Token     string `yaml:"token"`      // Static bearer token (optional)
	TokenFile string `yaml:"token_file"` // File-backed token, takes precedence over Token
}

// ConnectionConfig holds shared connection and reconnect settings.
type ConnectionConfig struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BackoffFactor      float64       `yaml:"backoff_factor"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// BatchConfig holds update batcher settings.
type BatchConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// CacheConfig holds the persisted quote cache tier settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RecorderConfig holds the optional Postgres tick recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
