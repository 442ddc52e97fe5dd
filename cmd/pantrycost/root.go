package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/analytics"
	"github.com/nixlim/pantrycost/internal/config"
	"github.com/nixlim/pantrycost/internal/storage"
)

// app carries the state shared by every subcommand once the root
// PersistentPreRunE has loaded configuration.
type app struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool

	cfg    config.Config
	logger *zap.Logger
}

// override copies one viper key onto the loaded config when it was set by
// a flag or a PANTRYCOST_* environment variable.
type override struct {
	key   string
	apply func(c *config.Config, v *viper.Viper, key string)
}

var overrides = []override{
	{"storage.driver", func(c *config.Config, v *viper.Viper, k string) { c.Storage.Driver = v.GetString(k) }},
	{"storage.db_path", func(c *config.Config, v *viper.Viper, k string) { c.Storage.DBPath = v.GetString(k) }},
	{"storage.dsn", func(c *config.Config, v *viper.Viper, k string) { c.Storage.DSN = v.GetString(k) }},
	{"storage.retention_days", func(c *config.Config, v *viper.Viper, k string) { c.Storage.RetentionDays = v.GetInt(k) }},
	{"storage.timezone", func(c *config.Config, v *viper.Viper, k string) { c.Storage.Timezone = v.GetString(k) }},
	{"analytics.top_n", func(c *config.Config, v *viper.Viper, k string) { c.Analytics.TopN = v.GetInt(k) }},
	{"analytics.workers", func(c *config.Config, v *viper.Viper, k string) { c.Analytics.Workers = v.GetInt(k) }},
	{"analytics.heatmap_scale", func(c *config.Config, v *viper.Viper, k string) { c.Analytics.HeatmapScale = v.GetFloat64(k) }},
	{"export.otlp_endpoint", func(c *config.Config, v *viper.Viper, k string) { c.Export.OTLPEndpoint = v.GetString(k) }},
	{"export.otlp_insecure", func(c *config.Config, v *viper.Viper, k string) { c.Export.OTLPInsecure = v.GetBool(k) }},
	{"export.service_name", func(c *config.Config, v *viper.Viper, k string) { c.Export.ServiceName = v.GetString(k) }},
	{"sink.kind", func(c *config.Config, v *viper.Viper, k string) { c.Sink.Kind = v.GetString(k) }},
	{"sink.path", func(c *config.Config, v *viper.Viper, k string) { c.Sink.Path = v.GetString(k) }},
	{"sink.s3_bucket", func(c *config.Config, v *viper.Viper, k string) { c.Sink.S3Bucket = v.GetString(k) }},
	{"sink.s3_region", func(c *config.Config, v *viper.Viper, k string) { c.Sink.S3Region = v.GetString(k) }},
	{"sink.s3_prefix", func(c *config.Config, v *viper.Viper, k string) { c.Sink.S3Prefix = v.GetString(k) }},
	{"sink.kafka_brokers", func(c *config.Config, v *viper.Viper, k string) { c.Sink.KafkaBrokers = v.GetStringSlice(k) }},
	{"sink.kafka_topic", func(c *config.Config, v *viper.Viper, k string) { c.Sink.KafkaTopic = v.GetString(k) }},
	{"logging.level", func(c *config.Config, v *viper.Viper, k string) { c.Logging.Level = v.GetString(k) }},
	{"logging.format", func(c *config.Config, v *viper.Viper, k string) { c.Logging.Format = v.GetString(k) }},
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "pantrycost",
		Short: "Cost and usage analytics for bakery ingredients",
		Long: `pantrycost computes ingredient cost trends, consumption patterns and
usage heatmaps from recorded price and usage history.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ~/.config/pantrycost/config.toml)")
	pf.BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	pf.String("driver", "", "storage driver: sqlite, postgres or memory")
	pf.String("db", "", "SQLite database path")
	pf.String("dsn", "", "Postgres connection string")
	pf.String("timezone", "", "reporting timezone, e.g. Europe/London")
	pf.Int("workers", 0, "analysis worker count")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: console or json")

	for key, flag := range map[string]string{
		"storage.driver":    "driver",
		"storage.db_path":   "db",
		"storage.dsn":       "dsn",
		"storage.timezone":  "timezone",
		"analytics.workers": "workers",
		"logging.level":     "log-level",
		"logging.format":    "log-format",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}
	a.v.SetEnvPrefix("PANTRYCOST")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newTrendsCmd(a),
		newPatternsCmd(a),
		newHeatmapCmd(a),
		newReportCmd(a),
		newImportCmd(a),
		newSeedCmd(a),
		newPruneCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	path := a.cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	res, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	cfg := res.Config
	for _, o := range overrides {
		if a.v.IsSet(o.key) {
			o.apply(&cfg, a.v, o.key)
		}
	}
	if err := config.Validate(&cfg); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	a.logger = logger.With(zap.String("command", cmd.Name()))
	for _, w := range res.Warnings {
		a.logger.Warn("config warning", zap.String("file", path), zap.String("warning", w))
	}
	return nil
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level
	zapConfig.InitialFields = map[string]interface{}{
		"service": "pantrycost",
	}
	return zapConfig.Build()
}

func (a *app) openStore(ctx context.Context) (storage.Backend, error) {
	store, persistent, err := storage.NewStore(ctx, a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", a.cfg.Storage.Driver, err)
	}
	if !persistent {
		a.logger.Warn("using an in-memory store; records are lost on exit")
	}
	return store, nil
}

func (a *app) engine(store storage.Backend) *analytics.Engine {
	return analytics.NewEngine(store,
		analytics.WithLogger(a.logger),
		analytics.WithOptions(analytics.Options{
			TopN:                  a.cfg.Analytics.TopN,
			HeatmapScale:          a.cfg.Analytics.HeatmapScale,
			SeasonalityRatio:      a.cfg.Analytics.SeasonalityRatio,
			TrendThresholdPercent: a.cfg.Analytics.TrendThresholdPercent,
			Workers:               a.cfg.Analytics.Workers,
		}),
	)
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
