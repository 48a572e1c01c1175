package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Taxonomy TaxonomyConfig `yaml:"taxonomy" mapstructure:"taxonomy"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// MonitoringConfig tunes the background health checker and its alert webhook.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinMeanScore         float64 `yaml:"min_mean_score" mapstructure:"min_mean_score"`
	NoParseThreshold     int     `yaml:"no_parse_threshold" mapstructure:"no_parse_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// IngestConfig holds the ingestion API endpoint settings.
type IngestConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Key          string  `yaml:"key" mapstructure:"key"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst    int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxAttempts  int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoff string  `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// QueryConfig holds the parsed-record query API endpoint settings. The rate
// cap bounds total poll pressure independently of the worker pool size.
type QueryConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Key        string  `yaml:"key" mapstructure:"key"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst  int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// TaxonomyConfig locates the schema taxonomy definition.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// EngineConfig configures the validation orchestrator.
type EngineConfig struct {
	Concurrency       int `yaml:"concurrency" mapstructure:"concurrency"`
	EventsPerPair     int `yaml:"events_per_pair" mapstructure:"events_per_pair"`
	BatchTimeoutSecs  int `yaml:"batch_timeout_secs" mapstructure:"batch_timeout_secs"`
	ParseTimeoutSecs  int `yaml:"parse_timeout_secs" mapstructure:"parse_timeout_secs"`
	PollIntervalMS    int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxPollIntervalMS int `yaml:"max_poll_interval_ms" mapstructure:"max_poll_interval_ms"`
}

// BatchTimeout returns the batch deadline as a duration; zero disables it.
func (c EngineConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSecs) * time.Second
}

// ParseTimeout returns the per-job retrieval window.
func (c EngineConfig) ParseTimeout() time.Duration {
	return time.Duration(c.ParseTimeoutSecs) * time.Second
}

// PollInterval returns the initial poll interval.
func (c EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MaxPollInterval returns the poll interval ceiling.
func (c EngineConfig) MaxPollInterval() time.Duration {
	return time.Duration(c.MaxPollIntervalMS) * time.Millisecond
}

// ScoringConfig tunes the compliance scorer.
type ScoringConfig struct {
	PenaltyWeight float64 `yaml:"penalty_weight" mapstructure:"penalty_weight"`
	GradeCeiling  string  `yaml:"grade_ceiling" mapstructure:"grade_ceiling"`
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
	v.SetEnvPrefix("PARITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "parity.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.base_url", "http://localhost:8088")
	v.SetDefault("ingest.rate_per_sec", 50)
	v.SetDefault("ingest.rate_burst", 100)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.retry_backoff", "1s")
	v.SetDefault("query.base_url", "http://localhost:8089")
	v.SetDefault("query.rate_per_sec", 20)
	v.SetDefault("query.rate_burst", 40)
	v.SetDefault("taxonomy.path", "taxonomy.yaml")
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.events_per_pair", 5)
	v.SetDefault("engine.batch_timeout_secs", 600)
	v.SetDefault("engine.parse_timeout_secs", 120)
	v.SetDefault("engine.poll_interval_ms", 2000)
	v.SetDefault("engine.max_poll_interval_ms", 30000)
	v.SetDefault("scoring.penalty_weight", 5.0)
	v.SetDefault("scoring.grade_ceiling", "B")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_mean_score", 70.0)
	v.SetDefault("monitoring.no_parse_threshold", 3)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

// Validate checks the configuration for the given command mode. Faults are
// collected and reported together so a misconfigured file surfaces everything
// at once, before any jobs run.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "validate", "matrix":
		if c.Ingest.BaseURL == "" {
			problems = append(problems, "ingest.base_url is required")
		}
		if c.Query.BaseURL == "" {
			problems = append(problems, "query.base_url is required")
		}
		if c.Taxonomy.Path == "" {
			problems = append(problems, "taxonomy.path is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "runs", "report":
		// Store-only modes; the driver check below covers them.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Engine.Concurrency < 1 || c.Engine.Concurrency > 64 {
		problems = append(problems, "engine.concurrency must be between 1 and 64")
	}
	if c.Engine.EventsPerPair < 1 || c.Engine.EventsPerPair > 1000 {
		problems = append(problems, "engine.events_per_pair must be between 1 and 1000")
	}
	if c.Scoring.PenaltyWeight < 0 {
		problems = append(problems, "scoring.penalty_weight must be >= 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
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
