// Package config loads command configuration from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-imagecurate"
	"github.com/anatolykoptev/go-imagecurate/s3sink"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "IMAGECURATE_"

// Config holds every setting the commands accept.
type Config struct {
	Source     string `yaml:"source"`
	Output     string `yaml:"output"`
	Normalized string `yaml:"normalized"` // default: <output>/normalized
	Report     string `yaml:"report"`     // default: <output>/cleaning-report.json

	Workers             int                         `yaml:"workers"`
	SimilarityThreshold int                         `yaml:"similarity_threshold"`
	Granularity         int                         `yaml:"granularity"`
	Index               string                      `yaml:"index"`
	Rules               imagecurate.Rules           `yaml:"rules"`
	Compress            imagecurate.CompressOptions `yaml:"compress"`

	DatabaseURL string        `yaml:"database_url"`
	Redis       RedisConfig   `yaml:"redis"`
	S3          s3sink.Config `yaml:"s3"`

	MetricsFile string `yaml:"metrics_file"`
	LogFile     string `yaml:"log_file"`
	LogLevel    string `yaml:"log_level"`
}

// RedisConfig configures the optional fingerprint cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Source:   "downloads",
		Output:   "curated",
		Index:    string(imagecurate.IndexBKTree),
		Rules:    imagecurate.DefaultRules(),

		SimilarityThreshold: imagecurate.DefaultSimilarityThreshold,
		LogFile:  filepath.Join(os.TempDir(), "imagecurate.log"),
		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then IMAGECURATE_* environment variables. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.Source, "SOURCE")
	setString(&c.Output, "OUTPUT")
	setString(&c.Normalized, "NORMALIZED")
	setString(&c.Report, "REPORT")
	setString(&c.Index, "INDEX")
	setString(&c.MetricsFile, "METRICS_FILE")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.LogLevel, "LOG_LEVEL")

	errs = append(errs,
		setInt(&c.Workers, "WORKERS"),
		setInt(&c.SimilarityThreshold, "SIMILARITY_THRESHOLD"),
		setInt(&c.Granularity, "GRANULARITY"),
		setInt(&c.Rules.MinWidth, "MIN_WIDTH"),
		setInt(&c.Rules.MinHeight, "MIN_HEIGHT"),
		setFloat(&c.Rules.MinAspect, "MIN_ASPECT"),
		setFloat(&c.Rules.MaxAspect, "MAX_ASPECT"),
		setInt64(&c.Rules.MinFileBytes, "MIN_FILE_BYTES"),
		setInt64(&c.Rules.MaxFileBytes, "MAX_FILE_BYTES"),
		setInt(&c.Compress.MaxDim, "MAX_DIM"),
		setInt(&c.Compress.MaxBytes, "MAX_BYTES"),
	)

	// DATABASE_URL is also honored unprefixed.
	setString(&c.DatabaseURL, "DATABASE_URL")
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	errs = append(errs, setInt(&c.Redis.DB, "REDIS_DB"), setDuration(&c.Redis.TTL, "REDIS_TTL"))

	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.Prefix, "S3_PREFIX")
	errs = append(errs, setBool(&c.S3.UseSSL, "S3_USE_SSL"))

	return errors.Join(errs...)
}

// NormalizedDir returns the normalize output directory.
func (c Config) NormalizedDir() string {
	if c.Normalized != "" {
		return c.Normalized
	}
	return filepath.Join(c.Output, "normalized")
}

// ReportPath returns where the cleaning report is written.
func (c Config) ReportPath() string {
	if c.Report != "" {
		return c.Report
	}
	return filepath.Join(c.Output, "cleaning-report.json")
}

// CleanedDir is the local passed partition.
func (c Config) CleanedDir() string {
	return filepath.Join(c.Output, imagecurate.PartitionCleaned)
}

// UseS3 reports whether an S3 sink is configured.
func (c Config) UseS3() bool {
	return c.S3.Endpoint != "" && c.S3.Bucket != ""
}

// Library maps the settings onto an imagecurate.Config. Dependencies such as
// the cache and record store are attached by the caller.
// A similarity threshold of 0 means exact matches only.
func (c Config) Library(logger *slog.Logger) imagecurate.Config {
	threshold := c.SimilarityThreshold
	if threshold <= 0 {
		threshold = imagecurate.ExactMatch
	}
	return imagecurate.Config{
		Logger:              logger,
		Rules:               c.Rules,
		SimilarityThreshold: threshold,
		Granularity:         c.Granularity,
		IndexStrategy:       imagecurate.IndexStrategy(c.Index),
		Workers:             c.Workers,
		Compress:            c.Compress,
	}
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}
