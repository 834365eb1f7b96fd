package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/campaign-sync-engine/internal/dds/snowflake"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/tierengine"
)

// Config holds all configuration for the sync engine.
type Config struct {
	Server         ServerConfig             `yaml:"server"`
	MLP            MLPConfig                `yaml:"mlp"`
	DDS            DDSConfig                `yaml:"dds"`
	Postgres       PostgresConfig           `yaml:"postgres"`
	Redis          RedisConfig              `yaml:"redis"`
	Snowflake      SnowflakeConfig          `yaml:"snowflake"`
	DynamoDB       DynamoDBConfig           `yaml:"dynamodb"`
	API            APIConfig                `yaml:"api"`
	Sync           SyncConfig               `yaml:"sync"`
	Tiers          TiersConfig              `yaml:"tiers"`
	Transition     TransitionConfig         `yaml:"transition"`
	Catalog        []CatalogEntry           `yaml:"catalog"`
	ProductCodeMap map[string]string        `yaml:"product_code_map"`
	Logging        LoggingConfig            `yaml:"logging"`
	Errors         ErrorsConfig             `yaml:"errors"`
}

// ServerConfig holds the operator control-API HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection matching how the
// embedding platform's other services pick a bind address on containers.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// MLPConfig holds marketing-list-provider API configuration.
type MLPConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c MLPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DDSConfig holds digital-downloads-store API configuration.
type DDSConfig struct {
	APIKey          string `yaml:"api_key"`
	Token           string `yaml:"token"`
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	LoopbackSeconds int    `yaml:"loopback_seconds"`
	LoopbackMode    bool   `yaml:"loopback_mode"`
}

// Timeout returns the configured remote-call timeout as a duration.
func (c DDSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoopbackTimeout returns the fixed timeout used for local-loopback calls
// to the embedding host, independent of the remote DDS timeout.
func (c DDSConfig) LoopbackTimeout() time.Duration {
	return time.Duration(c.LoopbackSeconds) * time.Second
}

// PostgresConfig holds the persistence-layer database configuration.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured transaction timeout as a duration.
func (c PostgresConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the distributed-lock and rate-limit-tracking store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SnowflakeConfig holds the optional purchase cross-validation reader.
type SnowflakeConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// DynamoDBConfig holds the optional alternate progress-store backend.
type DynamoDBConfig struct {
	Table      string `yaml:"table"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"`
	Enabled    bool   `yaml:"enabled"`
}

// GetAWSProfile returns the AWS profile, with environment variable
// override and ECS/Lambda IAM-role detection.
func (c DynamoDBConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// APIConfig holds the shared HTTP policy for both provider clients.
type APIConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxRetries     int `yaml:"max_retries"`
	MinIntervalMs  int `yaml:"min_interval_ms"`
}

// Timeout returns the configured per-request timeout as a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MinInterval returns the minimum inter-request spacing as a duration.
func (c APIConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// SyncConfig holds the sync pipeline's batch and resource-guard tunables.
type SyncConfig struct {
	BatchSize             int     `yaml:"batch_size"`
	MemoryLimitBytes      uint64  `yaml:"memory_limit_bytes"`
	MemoryThresholdPct    float64 `yaml:"memory_threshold_pct"`
	MaxProcessingSeconds  int     `yaml:"max_processing_seconds"`
	MaxPagesPerRun        int     `yaml:"max_pages_per_run"`
	SubscribersPerPage    int     `yaml:"subscribers_per_page"`
	InFlightBatches       int     `yaml:"in_flight_batches"`
}

// MaxProcessingTime returns the configured stage timeout as a duration.
func (c SyncConfig) MaxProcessingTime() time.Duration {
	return time.Duration(c.MaxProcessingSeconds) * time.Second
}

// CatalogEntry is one operator-maintained row of local album metadata,
// merged against MLP custom campaigns by the sync pipeline's first
// stage (resolving spec §9's silence on where campaign identity comes
// from: here, the operator-edited catalog is authoritative for
// Name/Artist/Album/Year, and MLP is authoritative for the assigned ID).
type CatalogEntry struct {
	Name      string `yaml:"name"`
	ProductID string `yaml:"product_id"`
	Artist    string `yaml:"artist"`
	Album     string `yaml:"album"`
	Year      int    `yaml:"year"`
}

// TiersConfig holds the operator-configurable tier set and progression map.
type TiersConfig struct {
	Order       []string                              `yaml:"order"`
	Progression map[string]tierengine.ProgressionRule `yaml:"progression"`
}

// TransitionConfig holds the operator-configurable transition matrix and
// its daily-rate safety cap.
type TransitionConfig struct {
	Matrix             []domain.TransitionRule `yaml:"matrix"`
	MaxPerSubscriberDay int                    `yaml:"max_per_subscriber_day"`
}

// LoggingConfig holds structured-logging tunables.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retention_days"`
}

// ErrorsConfig holds the bounded error queue's capacity.
type ErrorsConfig struct {
	MaxQueue int `yaml:"max_queue"`
}

// TierEngineConfig adapts the configuration sections into the pure
// tierengine.Config value the engine is constructed with.
func (c *Config) TierEngineConfig() tierengine.Config {
	cfg := tierengine.Config{
		Order:       c.Tiers.Order,
		Progression: c.Tiers.Progression,
		Matrix:      c.Transition.Matrix,
	}
	if len(cfg.Order) == 0 {
		def := tierengine.DefaultConfig()
		cfg.Order = def.Order
	}
	if len(cfg.Progression) == 0 {
		def := tierengine.DefaultConfig()
		cfg.Progression = def.Progression
	}
	if len(cfg.Matrix) == 0 {
		cfg.Matrix = tierengine.DefaultTransitionMatrix()
	}
	return cfg
}

// SnowflakeWarehouseConfig adapts the snowflake configuration section into the
// client constructor's config value.
func (c *Config) SnowflakeWarehouseConfig() snowflake.Config {
	return snowflake.Config{
		Account:   c.Snowflake.Account,
		User:      c.Snowflake.User,
		Password:  c.Snowflake.Password,
		Database:  c.Snowflake.Database,
		Schema:    c.Snowflake.Schema,
		Warehouse: c.Snowflake.Warehouse,
		Enabled:   c.Snowflake.Enabled,
	}
}

// Load reads and parses the configuration file, applying defaults for any
// zero-valued field exactly as the embedding platform's other services do.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.MLP.TimeoutSeconds == 0 {
		cfg.MLP.TimeoutSeconds = 30
	}
	if cfg.DDS.TimeoutSeconds == 0 {
		cfg.DDS.TimeoutSeconds = 30
	}
	if cfg.DDS.LoopbackSeconds == 0 {
		cfg.DDS.LoopbackSeconds = 30
	}
	if cfg.Postgres.TimeoutSeconds == 0 {
		cfg.Postgres.TimeoutSeconds = 30
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Snowflake.Database == "" {
		cfg.Snowflake.Database = "SALES_WAREHOUSE"
	}
	if cfg.Snowflake.Schema == "" {
		cfg.Snowflake.Schema = "PUBLIC"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 30
	}
	if cfg.API.MaxRetries == 0 {
		cfg.API.MaxRetries = 3
	}
	if cfg.API.MinIntervalMs == 0 {
		cfg.API.MinIntervalMs = 1000
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 1000
	}
	if cfg.Sync.BatchSize > 10000 {
		cfg.Sync.BatchSize = 10000
	}
	if cfg.Sync.MemoryThresholdPct == 0 {
		cfg.Sync.MemoryThresholdPct = 0.8
	}
	if cfg.Sync.MaxProcessingSeconds == 0 {
		cfg.Sync.MaxProcessingSeconds = 300
	}
	if cfg.Sync.MaxPagesPerRun == 0 {
		cfg.Sync.MaxPagesPerRun = 10
	}
	if cfg.Sync.SubscribersPerPage == 0 {
		cfg.Sync.SubscribersPerPage = 100
	}
	if cfg.Sync.InFlightBatches == 0 {
		cfg.Sync.InFlightBatches = 4
	}
	if cfg.Transition.MaxPerSubscriberDay == 0 {
		cfg.Transition.MaxPerSubscriberDay = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Errors.MaxQueue == 0 {
		cfg.Errors.MaxQueue = 100
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. It
// automatically loads a .env file (if present) before reading env vars, so
// secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MLP_API_KEY"); v != "" {
		cfg.MLP.APIKey = v
	}
	if v := os.Getenv("MLP_BASE_URL"); v != "" {
		cfg.MLP.BaseURL = v
	}
	if v := os.Getenv("DDS_API_KEY"); v != "" {
		cfg.DDS.APIKey = v
	}
	if v := os.Getenv("DDS_TOKEN"); v != "" {
		cfg.DDS.Token = v
	}
	if v := os.Getenv("DDS_BASE_URL"); v != "" {
		cfg.DDS.BaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.DynamoDB.Table = v
		if !cfg.DynamoDB.Enabled {
			cfg.DynamoDB.Enabled = true
		}
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.DynamoDB.Region = v
	}

	return cfg, nil
}
