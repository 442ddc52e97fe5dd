package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Storage   StorageConfig
	Analytics AnalyticsConfig
	Export    ExportConfig
	Sink      SinkConfig
	Logging   LoggingConfig
}

type StorageConfig struct {
	Driver        string `toml:"driver"`
	DBPath        string `toml:"db_path"`
	DSN           string `toml:"dsn"`
	RetentionDays int    `toml:"retention_days"`
	Timezone      string `toml:"timezone"`
}

// Location resolves the reporting timezone. An empty Timezone means UTC.
func (s StorageConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type AnalyticsConfig struct {
	DefaultWindowDays     int     `toml:"default_window_days"`
	DefaultGranularity    string  `toml:"default_granularity"`
	TopN                  int     `toml:"top_n"`
	HeatmapScale          float64 `toml:"heatmap_scale"`
	SeasonalityRatio      float64 `toml:"seasonality_ratio"`
	TrendThresholdPercent float64 `toml:"trend_threshold_percent"`
	Workers               int     `toml:"workers"`
}

type ExportConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
	ServiceName  string `toml:"service_name"`
}

type SinkConfig struct {
	Kind         string   `toml:"kind"`
	Path         string   `toml:"path"`
	S3Bucket     string   `toml:"s3_bucket"`
	S3Region     string   `toml:"s3_region"`
	S3Prefix     string   `toml:"s3_prefix"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

// DefaultPath returns ~/.config/pantrycost/config.toml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pantrycost", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom reads the TOML file at path on top of the defaults. A missing
// file yields the defaults without error.
func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	if data == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}
	return parse(data)
}

var knownTopLevel = map[string]bool{
	"storage":   true,
	"analytics": true,
	"export":    true,
	"sink":      true,
	"logging":   true,
}

func parse(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	md, err := toml.Decode(data, &tf)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for _, key := range md.Undecoded() {
		if len(key) > 1 && knownTopLevel[key[0]] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key.String()))
		}
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

type tomlFile struct {
	Storage   *StorageConfig   `toml:"storage"`
	Analytics *AnalyticsConfig `toml:"analytics"`
	Export    *ExportConfig    `toml:"export"`
	Sink      *SinkConfig      `toml:"sink"`
	Logging   *LoggingConfig   `toml:"logging"`
}

// mergeFromRaw copies only the keys actually present in the file so that
// an explicit zero is distinguishable from an omitted key.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			if _, exists := section["driver"]; exists {
				cfg.Storage.Driver = tf.Storage.Driver
			}
			if _, exists := section["db_path"]; exists {
				cfg.Storage.DBPath = tf.Storage.DBPath
			}
			if _, exists := section["dsn"]; exists {
				cfg.Storage.DSN = tf.Storage.DSN
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Storage.RetentionDays = tf.Storage.RetentionDays
			}
			if _, exists := section["timezone"]; exists {
				cfg.Storage.Timezone = tf.Storage.Timezone
			}
		}
	}
	if tf.Analytics != nil {
		if section, ok := rawSection(raw, "analytics"); ok {
			if _, exists := section["default_window_days"]; exists {
				cfg.Analytics.DefaultWindowDays = tf.Analytics.DefaultWindowDays
			}
			if _, exists := section["default_granularity"]; exists {
				cfg.Analytics.DefaultGranularity = tf.Analytics.DefaultGranularity
			}
			if _, exists := section["top_n"]; exists {
				cfg.Analytics.TopN = tf.Analytics.TopN
			}
			if _, exists := section["heatmap_scale"]; exists {
				cfg.Analytics.HeatmapScale = tf.Analytics.HeatmapScale
			}
			if _, exists := section["seasonality_ratio"]; exists {
				cfg.Analytics.SeasonalityRatio = tf.Analytics.SeasonalityRatio
			}
			if _, exists := section["trend_threshold_percent"]; exists {
				cfg.Analytics.TrendThresholdPercent = tf.Analytics.TrendThresholdPercent
			}
			if _, exists := section["workers"]; exists {
				cfg.Analytics.Workers = tf.Analytics.Workers
			}
		}
	}
	if tf.Export != nil {
		if section, ok := rawSection(raw, "export"); ok {
			if _, exists := section["otlp_endpoint"]; exists {
				cfg.Export.OTLPEndpoint = tf.Export.OTLPEndpoint
			}
			if _, exists := section["otlp_insecure"]; exists {
				cfg.Export.OTLPInsecure = tf.Export.OTLPInsecure
			}
			if _, exists := section["service_name"]; exists {
				cfg.Export.ServiceName = tf.Export.ServiceName
			}
		}
	}
	if tf.Sink != nil {
		if section, ok := rawSection(raw, "sink"); ok {
			if _, exists := section["kind"]; exists {
				cfg.Sink.Kind = tf.Sink.Kind
			}
			if _, exists := section["path"]; exists {
				cfg.Sink.Path = tf.Sink.Path
			}
			if _, exists := section["s3_bucket"]; exists {
				cfg.Sink.S3Bucket = tf.Sink.S3Bucket
			}
			if _, exists := section["s3_region"]; exists {
				cfg.Sink.S3Region = tf.Sink.S3Region
			}
			if _, exists := section["s3_prefix"]; exists {
				cfg.Sink.S3Prefix = tf.Sink.S3Prefix
			}
			if _, exists := section["kafka_brokers"]; exists {
				cfg.Sink.KafkaBrokers = tf.Sink.KafkaBrokers
			}
			if _, exists := section["kafka_topic"]; exists {
				cfg.Sink.KafkaTopic = tf.Sink.KafkaTopic
			}
		}
	}
	if tf.Logging != nil {
		if section, ok := rawSection(raw, "logging"); ok {
			if _, exists := section["level"]; exists {
				cfg.Logging.Level = tf.Logging.Level
			}
			if _, exists := section["format"]; exists {
				cfg.Logging.Format = tf.Logging.Format
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Validate reports every invalid setting at once. It is exported so that
// callers can re-check a Config after applying flag or env overrides.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	var errs []string

	switch cfg.Storage.Driver {
	case DriverSQLite:
		if cfg.Storage.DBPath == "" {
			errs = append(errs, "storage db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, "storage dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("storage driver must be sqlite, postgres or memory, got %q", cfg.Storage.Driver))
	}
	if cfg.Storage.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}
	if _, err := cfg.Storage.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("storage timezone %q: %v", cfg.Storage.Timezone, err))
	}

	if cfg.Analytics.DefaultWindowDays < 1 {
		errs = append(errs, fmt.Sprintf("analytics default_window_days must be positive, got %d", cfg.Analytics.DefaultWindowDays))
	}
	switch strings.ToLower(cfg.Analytics.DefaultGranularity) {
	case "daily", "weekly", "monthly":
	default:
		errs = append(errs, fmt.Sprintf("analytics default_granularity must be daily, weekly or monthly, got %q", cfg.Analytics.DefaultGranularity))
	}
	if cfg.Analytics.TopN < 1 {
		errs = append(errs, fmt.Sprintf("analytics top_n must be positive, got %d", cfg.Analytics.TopN))
	}
	if cfg.Analytics.HeatmapScale <= 0 {
		errs = append(errs, fmt.Sprintf("analytics heatmap_scale must be positive, got %f", cfg.Analytics.HeatmapScale))
	}
	if cfg.Analytics.SeasonalityRatio <= 0 {
		errs = append(errs, fmt.Sprintf("analytics seasonality_ratio must be positive, got %f", cfg.Analytics.SeasonalityRatio))
	}
	if cfg.Analytics.TrendThresholdPercent <= 0 {
		errs = append(errs, fmt.Sprintf("analytics trend_threshold_percent must be positive, got %f", cfg.Analytics.TrendThresholdPercent))
	}
	if cfg.Analytics.Workers < 1 {
		errs = append(errs, fmt.Sprintf("analytics workers must be positive, got %d", cfg.Analytics.Workers))
	}

	if cfg.Export.OTLPEndpoint != "" && cfg.Export.ServiceName == "" {
		errs = append(errs, "export service_name is required when otlp_endpoint is set")
	}

	switch cfg.Sink.Kind {
	case "":
	case SinkFile:
		if cfg.Sink.Path == "" {
			errs = append(errs, "sink path is required for the file sink")
		}
	case SinkS3:
		if cfg.Sink.S3Bucket == "" {
			errs = append(errs, "sink s3_bucket is required for the s3 sink")
		}
	case SinkKafka:
		if len(cfg.Sink.KafkaBrokers) == 0 || cfg.Sink.KafkaTopic == "" {
			errs = append(errs, "sink kafka_brokers and kafka_topic are required for the kafka sink")
		}
	default:
		errs = append(errs, fmt.Sprintf("sink kind must be file, s3 or kafka, got %q", cfg.Sink.Kind))
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging format must be json or console, got %q", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
