package config

import (
	"os"
	"path/filepath"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	SinkFile  = "file"
	SinkS3    = "s3"
	SinkKafka = "kafka"
)

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pantrycost.db"
	}
	return filepath.Join(home, ".local", "share", "pantrycost", "pantrycost.db")
}

// DefaultConfig returns the settings used for any key the config file
// leaves out.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Driver:        DriverSQLite,
			DBPath:        defaultDBPath(),
			RetentionDays: 730,
			Timezone:      "UTC",
		},
		Analytics: AnalyticsConfig{
			DefaultWindowDays:     30,
			DefaultGranularity:    "daily",
			TopN:                  5,
			HeatmapScale:          100,
			SeasonalityRatio:      0.3,
			TrendThresholdPercent: 10,
			Workers:               4,
		},
		Export: ExportConfig{
			ServiceName: "pantrycost",
		},
		Sink: SinkConfig{
			S3Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
