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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Notion  NotionConfig  `yaml:"notion" mapstructure:"notion"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the target datastore backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// NotionConfig holds Notion API credentials and the target database ID.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// SourceConfig holds the content API settings.
type SourceConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	Platform string  `yaml:"platform" mapstructure:"platform"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
	Burst    int     `yaml:"burst" mapstructure:"burst"`
}

// CollectConfig bounds a collection run.
type CollectConfig struct {
	MaxPages    int    `yaml:"max_pages" mapstructure:"max_pages"`
	SlotScan    int    `yaml:"slot_scan" mapstructure:"slot_scan"`
	KeyScan     int    `yaml:"key_scan" mapstructure:"key_scan"`
	ChunkSize   int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	PresetsPath string `yaml:"presets_path" mapstructure:"presets_path"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "collector.db")
	v.SetDefault("store.table", "videos")
	v.SetDefault("source.base_url", "https://api.clipstream.example")
	v.SetDefault("source.platform", "clipstream")
	v.SetDefault("source.rps", 5.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("collect.max_pages", 100)
	v.SetDefault("collect.slot_scan", 500)
	v.SetDefault("collect.key_scan", 5000)
	v.SetDefault("collect.chunk_size", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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
