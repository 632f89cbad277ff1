// Package config loads pointraster settings from config.yaml and
// POINTRASTER_* environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Chunk      ChunkConfig      `yaml:"chunk" mapstructure:"chunk"`
	Raster     RasterConfig     `yaml:"raster" mapstructure:"raster"`
	Filter     FilterConfig     `yaml:"filter" mapstructure:"filter"`
	Polygons   PolygonsConfig   `yaml:"polygons" mapstructure:"polygons"`
	Frequency  FrequencyConfig  `yaml:"frequency" mapstructure:"frequency"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Manifest   ManifestConfig   `yaml:"manifest" mapstructure:"manifest"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ChunkConfig configures splitting the input into tiles.
type ChunkConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxWidth  float64 `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight float64 `yaml:"max_height" mapstructure:"max_height"`
	BatchSize int     `yaml:"batch_size" mapstructure:"batch_size"`
	Workers   int     `yaml:"workers" mapstructure:"workers"`
}

// RasterConfig configures aggregation and raster output.
type RasterConfig struct {
	Mode      string  `yaml:"mode" mapstructure:"mode"`
	CellSize  float64 `yaml:"cell_size" mapstructure:"cell_size"`
	CRS       string  `yaml:"crs" mapstructure:"crs"`
	Format    string  `yaml:"format" mapstructure:"format"`
	NoData    string  `yaml:"nodata" mapstructure:"nodata"`
	Quicklook bool    `yaml:"quicklook" mapstructure:"quicklook"`
}

// FilterConfig enables the point filters.
type FilterConfig struct {
	Spatial          bool    `yaml:"spatial" mapstructure:"spatial"`
	ZRange           bool    `yaml:"zrange" mapstructure:"zrange"`
	ZMin             float64 `yaml:"z_min" mapstructure:"z_min"`
	ZMax             float64 `yaml:"z_max" mapstructure:"z_max"`
	Centerline       bool    `yaml:"centerline" mapstructure:"centerline"`
	CenterlinePath   string  `yaml:"centerline_path" mapstructure:"centerline_path"`
	CenterlineBuffer float64 `yaml:"centerline_buffer" mapstructure:"centerline_buffer"`
}

// PolygonsConfig selects where water polygons come from.
type PolygonsConfig struct {
	Source      string     `yaml:"source" mapstructure:"source"`
	Path        string     `yaml:"path" mapstructure:"path"`
	BBoxBuffer  float64    `yaml:"bbox_buffer" mapstructure:"bbox_buffer"`
	Table       string     `yaml:"table" mapstructure:"table"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	SRID        int        `yaml:"srid" mapstructure:"srid"`
	PDOK        PDOKConfig `yaml:"pdok" mapstructure:"pdok"`
}

// PDOKConfig configures the BGT download client.
type PDOKConfig struct {
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	PollIntervalSecs    int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutSecs     int     `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// FrequencyConfig configures the Z frequency diagram around a probe point.
type FrequencyConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	X       float64 `yaml:"x" mapstructure:"x"`
	Y       float64 `yaml:"y" mapstructure:"y"`
	Radius  float64 `yaml:"radius" mapstructure:"radius"`
	Bins    int     `yaml:"bins" mapstructure:"bins"`
}

// PipelineConfig configures a full run.
type PipelineConfig struct {
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	ExportCSV   bool   `yaml:"export_csv" mapstructure:"export_csv"`
	Merge       bool   `yaml:"merge" mapstructure:"merge"`
}

// ManifestConfig configures the run manifest database.
type ManifestConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures run health alerts raised by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	SkipRateThreshold    float64 `yaml:"skip_rate_threshold" mapstructure:"skip_rate_threshold"`
}

// ServerConfig configures the manifest API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml; a named file that is missing is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("POINTRASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("chunk.enabled", false)
	v.SetDefault("chunk.max_width", 1000.0)
	v.SetDefault("chunk.max_height", 1000.0)
	v.SetDefault("chunk.batch_size", 1_000_000)
	v.SetDefault("chunk.workers", 1)
	v.SetDefault("raster.mode", "mode")
	v.SetDefault("raster.cell_size", 1.0)
	v.SetDefault("raster.crs", "EPSG:28992")
	v.SetDefault("raster.format", "gtiff")
	v.SetDefault("raster.nodata", "nan")
	v.SetDefault("raster.quicklook", false)
	v.SetDefault("filter.z_min", -1.0)
	v.SetDefault("filter.z_max", 1.0)
	v.SetDefault("filter.centerline_buffer", 2.0)
	v.SetDefault("polygons.source", "none")
	v.SetDefault("polygons.bbox_buffer", 100.0)
	v.SetDefault("polygons.table", "bgt_waterdeel")
	v.SetDefault("polygons.srid", 28992)
	v.SetDefault("polygons.pdok.base_url", "https://api.pdok.nl")
	v.SetDefault("polygons.pdok.rate_limit", 2.0)
	v.SetDefault("polygons.pdok.poll_interval_secs", 1)
	v.SetDefault("polygons.pdok.poll_timeout_secs", 600)
	v.SetDefault("polygons.pdok.max_retries", 3)
	v.SetDefault("polygons.pdok.breaker_threshold", 5)
	v.SetDefault("polygons.pdok.breaker_cooldown_secs", 30)
	v.SetDefault("frequency.radius", 1.0)
	v.SetDefault("frequency.bins", 100)
	v.SetDefault("pipeline.output_dir", "data/output")
	v.SetDefault("pipeline.temp_dir", "data/tmp")
	v.SetDefault("pipeline.concurrency", 2)
	v.SetDefault("pipeline.merge", true)
	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", "data/manifest.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.skip_rate_threshold", 0.01)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
