package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
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

const (
	DefaultAddress             = "0.0.0.0:1100"
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultHealthCheckPath     = "/"
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultRateLimitWindow     = time.Minute
	DefaultAdminAddress        = ":9100"
)

const (
	flagConfig              = "config"
	flagBind                = "bind"
	flagUpstream            = "upstream"
	flagHealthCheckInterval = "active-health-check-interval"
	flagHealthCheckPath     = "active-health-check-path"
	flagMaxRequests         = "max-requests-per-minute"
	flagLogLevel            = "log-level"
	flagAdminAddress        = "admin-address"
)

var healthPathPattern = regexp.MustCompile(`^/`)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
	Timeout  string `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"`
	Window               string `mapstructure:"window"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Upstreams   []string          `mapstructure:"upstreams"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("balancebeam", pflag.ContinueOnError)

	fs.String(flagConfig, "", "path to a YAML config file")
	fs.String(flagBind, DefaultAddress, "IP/port to bind to")
	fs.StringArray(flagUpstream, nil, "upstream host:port to forward requests to (repeatable)")
	fs.Int(flagHealthCheckInterval, int(DefaultHealthCheckInterval/time.Second), "seconds between active health checks")
	fs.String(flagHealthCheckPath, DefaultHealthCheckPath, "path to send active health check requests to")
	fs.Int(flagMaxRequests, 0, "maximum requests per client IP per minute (0 disables)")
	fs.String(flagLogLevel, LogLevelInfo, "log level (debug, info, warn, error)")
	fs.String(flagAdminAddress, DefaultAdminAddress, "address of the metrics and health endpoints (empty disables)")

	return fs
}

// Load builds the configuration from defaults, the config file, environment
// variables and args, in increasing order of precedence.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", DefaultAddress)
	v.SetDefault("upstreams", []string{})
	v.SetDefault("health_check.interval", DefaultHealthCheckInterval.String())
	v.SetDefault("health_check.path", DefaultHealthCheckPath)
	v.SetDefault("health_check.timeout", DefaultHealthCheckTimeout.String())
	v.SetDefault("rate_limit.max_requests_per_minute", 0)
	v.SetDefault("rate_limit.window", DefaultRateLimitWindow.String())
	v.SetDefault("admin.address", DefaultAdminAddress)
	v.SetDefault("logging.level", LogLevelInfo)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"server.address":                     flagBind,
		"health_check.path":                  flagHealthCheckPath,
		"rate_limit.max_requests_per_minute": flagMaxRequests,
		"logging.level":                      flagLogLevel,
		"admin.address":                      flagAdminAddress,
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	// These two need converting, so they override only when given.
	if fs.Changed(flagUpstream) {
		upstreams, _ := fs.GetStringArray(flagUpstream)
		v.Set("upstreams", upstreams)
	}
	if fs.Changed(flagHealthCheckInterval) {
		seconds, _ := fs.GetInt(flagHealthCheckInterval)
		v.Set("health_check.interval", (time.Duration(seconds) * time.Second).String())
	}

	return nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if path, _ := fs.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return err
		}
		slog.Debug("config file not found, using defaults, flags and environment variables")
		return nil
	}

	slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	return nil
}

func (c *Config) HealthCheckInterval() time.Duration {
	return parseDuration(c.HealthCheck.Interval, DefaultHealthCheckInterval)
}

func (c *Config) HealthCheckTimeout() time.Duration {
	return parseDuration(c.HealthCheck.Timeout, DefaultHealthCheckTimeout)
}

func (c *Config) RateLimitWindow() time.Duration {
	return parseDuration(c.RateLimit.Window, DefaultRateLimitWindow)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Upstreams,
			validation.Required.Error("at least one upstream is required"),
			validation.Each(validation.By(validateUpstream)),
		),
		validation.Field(&c.HealthCheck),
		validation.Field(&c.RateLimit),
		validation.Field(&c.Admin),
		validation.Field(&c.Logging),
	)
}

func (sc ServerConfig) Validate() error {
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
}

func (hc HealthCheckConfig) Validate() error {
	return validation.ValidateStruct(&hc,
		validation.Field(&hc.Interval, validation.Required, validation.By(validateDuration)),
		validation.Field(&hc.Path,
			validation.Required,
			validation.Match(healthPathPattern).Error("must start with /"),
		),
		validation.Field(&hc.Timeout, validation.Required, validation.By(validateDuration)),
	)
}

func (rc RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.MaxRequestsPerMinute, validation.Min(0)),
		validation.Field(&rc.Window, validation.Required, validation.By(validateDuration)),
	)
}

func (ac AdminConfig) Validate() error {
	return validation.ValidateStruct(&ac,
		validation.Field(&ac.Address, validation.When(ac.Address != "", validation.By(validateHostPort))),
	)
}

func (lc LoggingConfig) Validate() error {
	return validation.ValidateStruct(&lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
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
	if err := is.Digit.Validate(port); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateUpstream(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if addr == "" {
		return validation.NewError("validation_empty_upstream", "upstream address cannot be empty")
	}
	return validateHostPort(addr)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}
