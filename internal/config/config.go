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
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LookupConfig selects the external lookup backend.
type LookupConfig struct {
	// Mode is "live" (Google Places + Geocoding) or "offline" (synthetic data).
	Mode string `yaml:"mode" mapstructure:"mode"`
	// Seed drives the offline RNG; 0 seeds from the clock.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
	// Analyzer is "claude" (needs anthropic.key; analysis is skipped
	// without one) or "pattern" (address heuristics, no AI).
	Analyzer string `yaml:"analyzer" mapstructure:"analyzer"`
}

// GoogleConfig holds Google Maps Platform settings.
type GoogleConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	PlacesBaseURL string  `yaml:"places_base_url" mapstructure:"places_base_url"`
	GeocodeURL    string  `yaml:"geocode_url" mapstructure:"geocode_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JobsConfig tunes the job workflows.
type JobsConfig struct {
	VerificationBatchSize int         `yaml:"verification_batch_size" mapstructure:"verification_batch_size"`
	TemplateBatchSize     int         `yaml:"template_batch_size" mapstructure:"template_batch_size"`
	MaxCandidateLocations int         `yaml:"max_candidate_locations" mapstructure:"max_candidate_locations"`
	DefaultProspectCount  int         `yaml:"default_prospect_count" mapstructure:"default_prospect_count"`
	AISampleRows          int         `yaml:"ai_sample_rows" mapstructure:"ai_sample_rows"`
	Retry                 RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures the AI location extraction retry schedule.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// CircuitConfig configures the per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("lookup.mode", "offline")
	v.SetDefault("lookup.seed", 0)
	v.SetDefault("lookup.analyzer", "claude")
	v.SetDefault("google.key", "")
	v.SetDefault("google.places_base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.geocode_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("google.rate_limit", 10)
	v.SetDefault("google.timeout_secs", 10)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("jobs.verification_batch_size", 10)
	v.SetDefault("jobs.template_batch_size", 25)
	v.SetDefault("jobs.max_candidate_locations", 8)
	v.SetDefault("jobs.default_prospect_count", 50)
	v.SetDefault("jobs.ai_sample_rows", 50)
	v.SetDefault("jobs.retry.max_attempts", 3)
	v.SetDefault("jobs.retry.initial_backoff_ms", 2000)
	v.SetDefault("jobs.retry.multiplier", 2.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks mode-specific requirements. mode names the command
// being run; commands that never touch the lookup backend skip its checks.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve", "run", "import", "export", "inspect", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for driver "+c.Store.Driver)
		}
	default:
		errs = append(errs, "store.driver must be memory, sqlite or postgres")
	}

	if mode == "serve" || mode == "run" {
		switch c.Lookup.Mode {
		case "offline":
		case "live":
			if c.Google.Key == "" {
				errs = append(errs, "google.key is required for live lookups")
			}
		default:
			errs = append(errs, "lookup.mode must be live or offline")
		}

		switch c.Lookup.Analyzer {
		case "", "claude", "pattern":
		default:
			errs = append(errs, "lookup.analyzer must be claude or pattern")
		}

		if c.Jobs.VerificationBatchSize <= 0 || c.Jobs.TemplateBatchSize <= 0 {
			errs = append(errs, "jobs batch sizes must be positive")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
