// Package config provides configuration loading and management for alertscope.
// It supports loading configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"alertscope/internal/domain"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for all storage.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real storage backends (Kafka, Redis, PostgreSQL).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// KeyValueBackend selects where control-group state is persisted in storage mode.
type KeyValueBackend string

const (
	KeyValueRedis    KeyValueBackend = "redis"
	KeyValuePostgres KeyValueBackend = "postgres"
)

// BackendType selects the alerts search backend.
type BackendType string

const (
	// BackendMemory serves seeded alerts from memory.
	BackendMemory BackendType = "memory"
	// BackendElasticsearch queries the alerts indices directly.
	BackendElasticsearch BackendType = "elasticsearch"
	// BackendKibana goes through the Kibana alerts REST API.
	BackendKibana BackendType = "kibana"
)

// IsValid returns true if the backend type is known.
func (b BackendType) IsValid() bool {
	switch b {
	case BackendMemory, BackendElasticsearch, BackendKibana:
		return true
	}
	return false
}

// Config represents the complete application configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Backend       BackendConfig       `yaml:"backend"`
	Server        ServerConfig        `yaml:"server"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Kibana        KibanaConfig        `yaml:"kibana"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Logger        LoggerConfig        `yaml:"logger"`
	Query         QueryConfig         `yaml:"query"`
	FilterGroup   FilterGroupConfig   `yaml:"filter_group"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode     StorageMode     `yaml:"mode"`
	KeyValue KeyValueBackend `yaml:"key_value"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// BackendConfig selects the alerts backend.
type BackendConfig struct {
	Type BackendType `yaml:"type"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	APIKey    string   `yaml:"api_key"`
}

// KibanaConfig holds Kibana connection settings.
type KibanaConfig struct {
	URL        string        `yaml:"url"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

// KafkaConfig holds Kafka connection and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// QueryConfig holds alert search settings.
type QueryConfig struct {
	DefaultPageSize int           `yaml:"default_page_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
}

// FilterGroupConfig holds filter control settings.
type FilterGroupConfig struct {
	DebounceDelay   time.Duration       `yaml:"debounce_delay"`
	MaxControls     int                 `yaml:"max_controls"`
	DefaultControls []domain.FilterItem `yaml:"default_controls"`
}

// DefaultControls is the control set used when the config file does not list one.
func DefaultControls() []domain.FilterItem {
	return []domain.FilterItem{
		{FieldName: "kibana.alert.status", Title: "Status", SelectedOptions: []string{}, Persist: true},
		{FieldName: "kibana.alert.rule.name", Title: "Rule"},
		{FieldName: "kibana.alert.group.value", Title: "Group"},
		{FieldName: "tags", Title: "Tags"},
	}
}

// Load reads configuration from the specified YAML file path.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults for any unset values
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if !c.Storage.Mode.IsValid() {
		return fmt.Errorf("invalid storage mode %q", c.Storage.Mode)
	}
	if !c.Backend.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q", c.Backend.Type)
	}
	if c.Storage.KeyValue != KeyValueRedis && c.Storage.KeyValue != KeyValuePostgres {
		return fmt.Errorf("invalid key_value backend %q", c.Storage.KeyValue)
	}
	seen := make(map[string]struct{}, len(c.FilterGroup.DefaultControls))
	for _, ctrl := range c.FilterGroup.DefaultControls {
		if ctrl.FieldName == "" {
			return fmt.Errorf("default control without field_name")
		}
		if _, dup := seen[ctrl.FieldName]; dup {
			return fmt.Errorf("duplicate default control %q", ctrl.FieldName)
		}
		seen[ctrl.FieldName] = struct{}{}
	}
	if len(c.FilterGroup.DefaultControls) > c.FilterGroup.MaxControls {
		return fmt.Errorf("%d default controls exceed max_controls %d",
			len(c.FilterGroup.DefaultControls), c.FilterGroup.MaxControls)
	}
	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}
	if cfg.Storage.KeyValue == "" {
		cfg.Storage.KeyValue = KeyValueRedis
	}

	// Backend defaults
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Elasticsearch defaults
	if len(cfg.Elasticsearch.Addresses) == 0 {
		cfg.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}

	// Kibana defaults
	if cfg.Kibana.URL == "" {
		cfg.Kibana.URL = "http://localhost:5601"
	}
	if cfg.Kibana.Timeout == 0 {
		cfg.Kibana.Timeout = 30 * time.Second
	}
	if cfg.Kibana.RetryCount == 0 {
		cfg.Kibana.RetryCount = 2
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "alertscope-filter-changes"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "alertscope-processor"
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "alertscope:"
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	// Query defaults
	if cfg.Query.DefaultPageSize == 0 {
		cfg.Query.DefaultPageSize = domain.DefaultPageSize
	}
	if cfg.Query.CacheTTL == 0 {
		cfg.Query.CacheTTL = 30 * time.Second
	}
	if cfg.Query.FetchTimeout == 0 {
		cfg.Query.FetchTimeout = 30 * time.Second
	}

	// Filter group defaults
	if cfg.FilterGroup.DebounceDelay == 0 {
		cfg.FilterGroup.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.FilterGroup.MaxControls == 0 {
		cfg.FilterGroup.MaxControls = 4
	}
	if len(cfg.FilterGroup.DefaultControls) == 0 {
		cfg.FilterGroup.DefaultControls = DefaultControls()
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
