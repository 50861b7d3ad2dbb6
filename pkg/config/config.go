// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, etc.).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. A RateLimit of zero disables
// per-client limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters. It is only used
// when the corpus is read from a crawler database.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	PagesTable      string        `yaml:"pagesTable"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters. An empty
// address disables the query cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls corpus traversal, the in-memory offload threshold,
// duplicate detection and tag weighting.
type IndexerConfig struct {
	CorpusSource          string             `yaml:"corpusSource"`
	CorpusDir             string             `yaml:"corpusDir"`
	DataDir               string             `yaml:"dataDir"`
	OutputDir             string             `yaml:"outputDir"`
	ShardMaxSize          int64              `yaml:"shardMaxSize"`
	Workers               int                `yaml:"workers"`
	KeepShards            bool               `yaml:"keepShards"`
	NearDuplicateDistance int                `yaml:"nearDuplicateDistance"`
	TagWeights            map[string]float64 `yaml:"tagWeights"`
	DefaultTagWeight      float64            `yaml:"defaultTagWeight"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	IndexDir     string        `yaml:"indexDir"`
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	Stopwords    []string      `yaml:"stopwords"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultTagWeights is the per-tag multiplier table applied to every token
// found inside a tag's text. Tags not listed weigh DefaultTagWeight.
func DefaultTagWeights() map[string]float64 {
	return map[string]float64{
		"title":  50,
		"h1":     35,
		"h2":     30,
		"h3":     25,
		"h4":     20,
		"h5":     15,
		"h6":     10,
		"b":      5,
		"strong": 5,
	}
}

// DefaultStopwords is the query-time stopword list.
func DefaultStopwords() []string {
	return []string{
		"a", "an", "the", "and", "or", "but", "if", "in",
		"on", "with", "as", "by", "for", "of", "at", "to",
	}
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			RateWindow:      time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "crawler",
			User:            "crawler",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			PagesTable:      "pages",
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "searcher",
			Topics: KafkaTopics{
				IndexComplete:   "index.complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			CorpusSource:          "dir",
			CorpusDir:             "./DEV",
			DataDir:               "./data/partial",
			OutputDir:             "./data/index",
			ShardMaxSize:          5 * 1024 * 1024,
			Workers:               runtime.NumCPU(),
			NearDuplicateDistance: 1,
			TagWeights:            DefaultTagWeights(),
			DefaultTagWeight:      1,
		},
		Search: SearchConfig{
			IndexDir:     "./data/index",
			MaxResults:   100,
			DefaultLimit: 20,
			QueryTimeout: 2 * time.Second,
			Stopwords:    DefaultStopwords(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the indexing and search pipelines cannot run with.
func (c *Config) Validate() error {
	switch c.Indexer.CorpusSource {
	case "dir", "postgres":
	default:
		return fmt.Errorf("indexer.corpusSource must be dir or postgres, got %q", c.Indexer.CorpusSource)
	}
	if c.Indexer.ShardMaxSize <= 0 {
		return fmt.Errorf("indexer.shardMaxSize must be positive")
	}
	if c.Indexer.NearDuplicateDistance < 0 {
		return fmt.Errorf("indexer.nearDuplicateDistance must not be negative")
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateWindow <= 0) {
		return fmt.Errorf("server.rateLimit must not be negative and needs a positive server.rateWindow")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.defaultLimit must be positive and not exceed search.maxResults")
	}
	return nil
}

// applyEnvOverrides reads WI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WI_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("WI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("WI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WI_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("WI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WI_CORPUS_DIR"); v != "" {
		cfg.Indexer.CorpusDir = v
	}
	if v := os.Getenv("WI_INDEX_DIR"); v != "" {
		cfg.Indexer.OutputDir = v
		cfg.Search.IndexDir = v
	}
	if v := os.Getenv("WI_SHARD_MAX_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.ShardMaxSize = size
		}
	}
	if v := os.Getenv("WI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
