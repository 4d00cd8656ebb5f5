package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Generation GenerationConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Images     ImagesConfig
	Janitor    JanitorConfig
}

type ServerConfig struct {
	Address string
}

type GatewayConfig struct {
	URL        string
	Timeout    time.Duration
	RatePerSec int
}

type GenerationConfig struct {
	MaxRetries   int
	TickInterval time.Duration
	BackoffBase  time.Duration
	Width        int
	Height       int
}

type DatabaseConfig struct {
	Enabled     bool
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type ImagesConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JanitorConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

const (
	maxRetriesLimit = 5
	minDimension    = 256
	maxDimension    = 1024
)

func LoadAll() (*Config, error) {
	var errs []error

	gatewayURL, err := requireEnv("GATEWAY_URL")
	errs = appendErr(errs, err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Gateway: GatewayConfig{
			URL:        gatewayURL,
			Timeout:    seconds(envInt(&errs, "GATEWAY_TIMEOUT_SECONDS", 300)),
			RatePerSec: envInt(&errs, "GATEWAY_RATE_PER_SEC", 0),
		},
		Generation: GenerationConfig{
			MaxRetries:   envInt(&errs, "GEN_MAX_RETRIES", 2),
			TickInterval: millis(envInt(&errs, "GEN_TICK_MS", 3000)),
			BackoffBase:  millis(envInt(&errs, "GEN_BACKOFF_BASE_MS", 2000)),
			Width:        envInt(&errs, "GEN_IMAGE_WIDTH", 1024),
			Height:       envInt(&errs, "GEN_IMAGE_HEIGHT", 1024),
		},
		Database: loadDatabaseConfig(),
		Redis:    loadRedisConfig(&errs),
		Images:   loadImagesConfig(&errs),
		Janitor: JanitorConfig{
			Retention: time.Duration(envInt(&errs, "HISTORY_RETENTION_HOURS", 168)) * time.Hour,
			Interval:  seconds(envInt(&errs, "JANITOR_INTERVAL_SECONDS", 3600)),
		},
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("POSTGRES_URL")
	return DatabaseConfig{Enabled: url != "", PostgresURL: url}
}

func loadRedisConfig(errs *[]error) RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt(errs, "REDIS_DB", 0),
		TTL:      seconds(envInt(errs, "REDIS_TTL_SECONDS", 86400)),
	}
}

func loadImagesConfig(errs *[]error) ImagesConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		return ImagesConfig{Enabled: false}
	}

	access, err := requireEnv("MINIO_ACCESS_KEY")
	*errs = appendErr(*errs, err)
	secret, err := requireEnv("MINIO_SECRET_KEY")
	*errs = appendErr(*errs, err)
	useSSL, err := getEnvBool("MINIO_USE_SSL", false)
	*errs = appendErr(*errs, err)

	return ImagesConfig{
		Enabled:   true,
		Endpoint:  endpoint,
		AccessKey: access,
		SecretKey: secret,
		Bucket:    getEnv("MINIO_BUCKET", "studio-images"),
		UseSSL:    useSSL,
	}
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Gateway.RatePerSec < 0 {
		errs = append(errs, errors.New("GATEWAY_RATE_PER_SEC must be >= 0"))
	}
	if cfg.Generation.MaxRetries < 0 || cfg.Generation.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("GEN_MAX_RETRIES must be in [0,%d]", maxRetriesLimit))
	}
	if cfg.Generation.TickInterval <= 0 {
		errs = append(errs, errors.New("GEN_TICK_MS must be > 0"))
	}
	if cfg.Generation.BackoffBase <= 0 {
		errs = append(errs, errors.New("GEN_BACKOFF_BASE_MS must be > 0"))
	}
	if !validDimension(cfg.Generation.Width) {
		errs = append(errs, fmt.Errorf("GEN_IMAGE_WIDTH must be in [%d,%d]", minDimension, maxDimension))
	}
	if !validDimension(cfg.Generation.Height) {
		errs = append(errs, fmt.Errorf("GEN_IMAGE_HEIGHT must be in [%d,%d]", minDimension, maxDimension))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	if cfg.Janitor.Retention <= 0 {
		errs = append(errs, errors.New("HISTORY_RETENTION_HOURS must be > 0"))
	}
	if cfg.Janitor.Interval <= 0 {
		errs = append(errs, errors.New("JANITOR_INTERVAL_SECONDS must be > 0"))
	}
	return errs
}

func validDimension(n int) bool {
	return n >= minDimension && n <= maxDimension
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

// envInt reads an int and records a parse failure in errs.
func envInt(errs *[]error, key string, def int) int {
	i, err := getEnvInt(key, def)
	*errs = appendErr(*errs, err)
	return i
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
