// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, SERP, Predictor, etc.).
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	SERP      SERPConfig      `yaml:"serp"`
	Predictor PredictorConfig `yaml:"predictor"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For header is honoured. Empty means the socket peer
	// is always the client.
	TrustedProxies  []string      `yaml:"trustedProxies"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RankEvents       string `yaml:"rankEvents"`
	PredictionEvents string `yaml:"predictionEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SERPConfig controls the search-ranking API client and the pixel estimate.
type SERPConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"apiKey"`
	Engine      string        `yaml:"engine"`
	Device      string        `yaml:"device"`
	Country     string        `yaml:"country"`
	Language    string        `yaml:"language"`
	Location    string        `yaml:"location"`
	ResultCount int           `yaml:"resultCount"`
	Timeout     time.Duration `yaml:"timeout"`

	// Concurrency bounds parallel keyword lookups within one request.
	Concurrency int `yaml:"concurrency"`

	HeaderOffset int `yaml:"headerOffset"`
	RowHeight    int `yaml:"rowHeight"`

	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`

	// RateLimitPerMinute caps rank requests per client; 0 disables limiting.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
}

// PredictorConfig names the bundled cutoff datasets and the classifier
// variant to run against them.
type PredictorConfig struct {
	Datasets         map[string][]string `yaml:"datasets"`
	DefaultDataset   string              `yaml:"defaultDataset"`
	ChanceCap        int                 `yaml:"chanceCap"`
	ChanceFloor      int                 `yaml:"chanceFloor"`
	IncludeDeviation bool                `yaml:"includeDeviation"`
	Granularity      string              `yaml:"granularity"`
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

// CORSConfig lists the browser origins allowed to call the APIs.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.SERP.ResultCount < 1 || c.SERP.ResultCount > 100 {
		return fmt.Errorf("serp.resultCount must be between 1 and 100, got %d", c.SERP.ResultCount)
	}
	for _, p := range c.Server.TrustedProxies {
		if _, err := ParsePrefix(p); err != nil {
			return fmt.Errorf("server.trustedProxies: %w", err)
		}
	}
	if c.SERP.RowHeight <= 0 {
		return fmt.Errorf("serp.rowHeight must be positive, got %d", c.SERP.RowHeight)
	}
	if c.Predictor.ChanceFloor < 0 || c.Predictor.ChanceCap > 100 || c.Predictor.ChanceFloor >= c.Predictor.ChanceCap {
		return fmt.Errorf("predictor chance bounds must satisfy 0 <= floor < cap <= 100, got %d/%d",
			c.Predictor.ChanceCap, c.Predictor.ChanceFloor)
	}
	switch c.Predictor.Granularity {
	case "two-way", "three-way":
	default:
		return fmt.Errorf("predictor.granularity must be two-way or three-way, got %q", c.Predictor.Granularity)
	}
	if c.Predictor.DefaultDataset != "" {
		if _, ok := c.Predictor.Datasets[c.Predictor.DefaultDataset]; !ok {
			return fmt.Errorf("predictor.defaultDataset %q is not a configured dataset", c.Predictor.DefaultDataset)
		}
	}
	return nil
}

// ParsePrefix parses a CIDR range or a single address.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// TrustedProxyPrefixes returns the parsed trusted proxy ranges. Load has
// already validated them.
func (s ServerConfig) TrustedProxyPrefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, p := range s.TrustedProxies {
		if prefix, err := ParsePrefix(p); err == nil {
			out = append(out, prefix)
		}
	}
	return out
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "selectyouruniversity",
			User:            "selectyouruniversity",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "selectyouruniversity-analytics",
			Topics: KafkaTopics{
				RankEvents:       "serp-rank-events",
				PredictionEvents: "prediction-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 12 * time.Hour,
		},
		SERP: SERPConfig{
			Endpoint:           "https://serpapi.com/search.json",
			Engine:             "google",
			Device:             "mobile",
			Country:            "in",
			Language:           "en",
			Location:           "w+CAIQICINV1JUwzBQbVlJMVyCF9ZYk9MQkFWTnA=",
			ResultCount:        100,
			Timeout:            30 * time.Second,
			Concurrency:        4,
			HeaderOffset:       100,
			RowHeight:          60,
			BreakerThreshold:   5,
			BreakerReset:       30 * time.Second,
			RateLimitPerMinute: 30,
		},
		Predictor: PredictorConfig{
			Datasets:         map[string][]string{},
			ChanceCap:        90,
			ChanceFloor:      10,
			IncludeDeviation: true,
			Granularity:      "two-way",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

// applyEnvOverrides reads SU_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SU_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SU_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("SU_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v)
	}
	if v := os.Getenv("SU_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SU_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SU_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SU_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SU_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SU_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SU_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v)
	}
	if v := os.Getenv("SU_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SU_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SU_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SU_SERP_API_KEY"); v != "" {
		cfg.SERP.APIKey = v
	}
	if v := os.Getenv("SU_SERP_ENDPOINT"); v != "" {
		cfg.SERP.Endpoint = v
	}
	if v := os.Getenv("SU_PREDICTOR_DEFAULT_DATASET"); v != "" {
		cfg.Predictor.DefaultDataset = v
	}
	if v := os.Getenv("SU_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SU_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SU_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
