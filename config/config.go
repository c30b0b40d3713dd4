package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// BreakerConfig holds the breaker defaults applied to every upstream that
// does not override them.
type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
	HalfOpenMaxCalls int    `mapstructure:"half_open_max_calls"`
}

// UpstreamConfig describes one downstream service. The breaker fields are
// optional overrides: zero values fall back to the global defaults.
type UpstreamConfig struct {
	Name             string `mapstructure:"name"`
	URL              string `mapstructure:"url"`
	HealthInterval   string `mapstructure:"health_interval"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
	HalfOpenMaxCalls int    `mapstructure:"half_open_max_calls"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Breaker   BreakerConfig    `mapstructure:"breaker"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.reset_timeout", "60s")
	viper.SetDefault("breaker.half_open_max_calls", 1)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.ResetTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.HalfOpenMaxCalls,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateUpstreamConfig)),
			validation.By(validateUniqueNames),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateUpstreamConfig(value interface{}) error {
	up, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}

	if up.Name == "" {
		return validation.NewError("validation_empty_name", "upstream name cannot be empty")
	}

	if up.URL == "" {
		return validation.NewError("validation_empty_url", "upstream URL cannot be empty")
	}

	parsedURL, err := url.Parse(up.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if up.FailureThreshold < 0 {
		return validation.NewError("validation_invalid_threshold", "failure threshold cannot be negative")
	}

	if up.HalfOpenMaxCalls < 0 {
		return validation.NewError("validation_invalid_half_open", "half-open max calls cannot be negative")
	}

	if up.ResetTimeout != "" {
		if err := validateDuration(up.ResetTimeout); err != nil {
			return err
		}
	}

	if up.HealthInterval != "" {
		if err := validateDuration(up.HealthInterval); err != nil {
			return err
		}
	}

	return nil
}

func validateUniqueNames(value interface{}) error {
	upstreams, ok := value.([]UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of upstreams")
	}

	seen := make(map[string]bool, len(upstreams))
	for _, up := range upstreams {
		if seen[up.Name] {
			return validation.NewError("validation_duplicate_name", "upstream names must be unique")
		}
		seen[up.Name] = true
	}

	return nil
}
