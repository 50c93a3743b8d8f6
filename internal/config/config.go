package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "LEDGERWATCH_"

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"` // empty disables the gRPC health server

	Env string `yaml:"env"` // "dev" | "prod"

	// DB
	DBDriver    string `yaml:"db_driver"` // "sqlite" | "postgres"
	DBPath      string `yaml:"db_path"`
	DatabaseURL string `yaml:"database_url"`

	RedisURL string `yaml:"redis_url"` // empty uses the in-process cache
	NATSURL  string `yaml:"nats_url"`  // empty disables event publishing

	KnownDevices []string          `yaml:"known_devices"`
	APITokens    map[string]string `yaml:"api_tokens"` // token -> role

	Timezone string `yaml:"timezone"`

	// Health
	HealthCacheTTL         time.Duration `yaml:"health_cache_ttl"`
	HealthComputeTimeout   time.Duration `yaml:"health_compute_timeout"`
	SequenceWindow         int           `yaml:"sequence_window"`
	HeartbeatTimeout       time.Duration `yaml:"heartbeat_timeout"`
	HealthLogInterval      time.Duration `yaml:"health_log_interval"`
	HealthLogRetentionDays int           `yaml:"health_log_retention_days"` // 0 = keep forever

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" | "json"

	// Archive
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	S3Prefix   string `yaml:"s3_prefix"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		Env:                    "dev",
		DBDriver:               "sqlite",
		DBPath:                 "./data/ledgerwatch.db",
		Timezone:               "UTC",
		HealthCacheTTL:         300 * time.Second,
		HealthComputeTimeout:   3 * time.Second,
		SequenceWindow:         1000,
		HeartbeatTimeout:       5 * time.Minute,
		HealthLogInterval:      time.Hour,
		HealthLogRetentionDays: 30,
		LogLevel:               "info",
		LogFormat:              "text",
		S3Prefix:               "ledgerwatch",
	}
}

// FromEnv returns the defaults overridden by LEDGERWATCH_* variables.
func FromEnv() Config {
	cfg := Defaults()
	applyEnv(&cfg)
	return cfg.normalize()
}

// Load layers defaults, the optional YAML file at path and the environment,
// in that order. A .env file in the working directory is loaded first and
// never overrides variables that are already set.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg = cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be started with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when db_driver=postgres")
		}
	default:
		return fmt.Errorf("unknown db_driver %q", c.DBDriver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone used for calendar days.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) normalize() Config {
	c.Env = strings.ToLower(c.Env)
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.DBDriver = strings.ToLower(c.DBDriver)
	c.LogFormat = strings.ToLower(c.LogFormat)
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	return c
}

func applyEnv(c *Config) {
	c.HTTPAddr = getenvDefault(envPrefix+"HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getenvDefault(envPrefix+"GRPC_ADDR", c.GRPCAddr)
	c.Env = getenvDefault(envPrefix+"ENV", c.Env)

	c.DBDriver = getenvDefault(envPrefix+"DB_DRIVER", c.DBDriver)
	c.DBPath = getenvDefault(envPrefix+"DB_PATH", c.DBPath)
	c.DatabaseURL = getenvDefault(envPrefix+"DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getenvDefault(envPrefix+"REDIS_URL", c.RedisURL)
	c.NATSURL = getenvDefault(envPrefix+"NATS_URL", c.NATSURL)

	if v := splitCSV(os.Getenv(envPrefix + "KNOWN_DEVICES")); v != nil {
		c.KnownDevices = v
	}
	if v := ParseTokens(os.Getenv(envPrefix + "API_TOKENS")); v != nil {
		c.APITokens = v
	}

	c.Timezone = getenvDefault(envPrefix+"TIMEZONE", c.Timezone)
	c.HealthCacheTTL = getenvDuration(envPrefix+"HEALTH_CACHE_TTL", c.HealthCacheTTL)
	c.HealthComputeTimeout = getenvDuration(envPrefix+"HEALTH_COMPUTE_TIMEOUT", c.HealthComputeTimeout)
	c.SequenceWindow = getenvInt(envPrefix+"SEQUENCE_WINDOW", c.SequenceWindow)
	c.HeartbeatTimeout = getenvDuration(envPrefix+"HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	c.HealthLogInterval = getenvDuration(envPrefix+"HEALTH_LOG_INTERVAL", c.HealthLogInterval)
	c.HealthLogRetentionDays = getenvInt(envPrefix+"HEALTH_LOG_RETENTION_DAYS", c.HealthLogRetentionDays)

	c.LogLevel = getenvDefault(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault(envPrefix+"LOG_FORMAT", c.LogFormat)

	c.S3Bucket = getenvDefault(envPrefix+"S3_BUCKET", c.S3Bucket)
	c.S3Endpoint = getenvDefault(envPrefix+"S3_ENDPOINT", c.S3Endpoint)
	c.S3Region = getenvDefault(envPrefix+"S3_REGION", c.S3Region)
	c.S3Prefix = getenvDefault(envPrefix+"S3_PREFIX", c.S3Prefix)
}

// ParseTokens parses "token:role,token:role". Malformed entries are skipped.
func ParseTokens(v string) map[string]string {
	parts := splitCSV(v)
	if parts == nil {
		return nil
	}
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		token, role, ok := strings.Cut(p, ":")
		token, role = strings.TrimSpace(token), strings.TrimSpace(role)
		if !ok || token == "" || role == "" {
			continue
		}
		out[token] = role
	}
	return out
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// getenvDuration accepts Go durations ("90s") or bare seconds ("300").
func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
