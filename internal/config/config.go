// Package config loads application settings from config.yaml and the
// WXBENCH_ environment, and owns global logger setup.
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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Compare   CompareConfig   `yaml:"compare" mapstructure:"compare"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Skill     SkillConfig     `yaml:"skill" mapstructure:"skill"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the forecast archive backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CatalogConfig points at the optional source catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CompareConfig holds defaults for verification runs.
type CompareConfig struct {
	Reference     string  `yaml:"reference" mapstructure:"reference"`
	Lat           float64 `yaml:"lat" mapstructure:"lat"`
	Lon           float64 `yaml:"lon" mapstructure:"lon"`
	LeadHours     int     `yaml:"lead_hours" mapstructure:"lead_hours"`
	MaxMembers    int     `yaml:"max_members" mapstructure:"max_members"`
	MaxConcurrent int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ReportConfig configures presentation of results.
type ReportConfig struct {
	Units  string `yaml:"units" mapstructure:"units"`   // si | metric | imperial
	Format string `yaml:"format" mapstructure:"format"` // table | json | csv | xlsx
}

// SkillConfig configures the accuracy-band sweep.
type SkillConfig struct {
	Days int `yaml:"days" mapstructure:"days"`
}

// FetchConfig configures export-file downloads.
type FetchConfig struct {
	DataDir          string  `yaml:"data_dir" mapstructure:"data_dir"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSecond    float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// AnthropicConfig holds the API settings for narrative report summaries.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
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
	v.SetEnvPrefix("WXBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "wxbench.db")
	v.SetDefault("compare.reference", "era5")
	v.SetDefault("compare.lat", 40.7128)
	v.SetDefault("compare.lon", -74.0060)
	v.SetDefault("compare.lead_hours", 24)
	v.SetDefault("compare.max_members", 50)
	v.SetDefault("compare.max_concurrent", 4)
	v.SetDefault("report.units", "imperial")
	v.SetDefault("report.format", "table")
	v.SetDefault("skill.days", 9)
	v.SetDefault("fetch.data_dir", "data")
	v.SetDefault("fetch.user_agent", "wxbench/1.0")
	v.SetDefault("fetch.rate_per_second", 2)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("server.port", 8080)
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

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for the postgres driver")
	}
	switch c.Report.Units {
	case "si", "metric", "imperial":
	default:
		return eris.Errorf("config: unknown unit system %q", c.Report.Units)
	}
	if c.Compare.LeadHours <= 0 {
		return eris.New("config: compare.lead_hours must be positive")
	}
	if c.Compare.MaxMembers < 0 {
		return eris.New("config: compare.max_members cannot be negative")
	}
	if c.Skill.Days <= 0 {
		return eris.New("config: skill.days must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
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
