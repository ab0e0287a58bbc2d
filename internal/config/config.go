package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// FetchModeBuiltin runs the Punting Form collector in-process.
	FetchModeBuiltin = "builtin"
	// FetchModeCommand runs an external program with the date as its last argument.
	FetchModeCommand = "command"

	defaultLogDir    = "logs"
	defaultTimezone  = "Australia/Melbourne"
	defaultPFBaseURL = "https://api.puntingform.com.au/v2"
	defaultPFTimeout = 30 * time.Second
	defaultDBPath    = "gear.db"
	defaultListen    = "127.0.0.1:8080"
)

// Config holds application configuration
type Config struct {
	LogDir       string
	Timezone     string
	FetchMode    string
	FetchCommand []string
	RuntimePath  string
	Lock         bool

	PFAPIKey  string
	PFBaseURL string
	PFTimeout time.Duration

	DatabasePath string
	Listen       string

	LogLevel  string
	LogFormat string
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("GEARCRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_dir", defaultLogDir)
	v.SetDefault("timezone", defaultTimezone)
	v.SetDefault("fetch.mode", FetchModeBuiltin)
	v.SetDefault("fetch.command", []string{})
	v.SetDefault("runtime_path", "")
	v.SetDefault("lock", false)
	v.SetDefault("pf.base_url", defaultPFBaseURL)
	v.SetDefault("pf.timeout", defaultPFTimeout.String())
	v.SetDefault("database_path", defaultDBPath)
	v.SetDefault("listen", defaultListen)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// The upstream key has always been exported without our prefix.
	_ = v.BindEnv("pf.api_key", "GEARCRON_PF_API_KEY", "PF_API_KEY")
}

// LoadConfig loads configuration from defaults, an optional config file, .env and
// environment variables, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal; anything already exported wins over the file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gearcron")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a validated Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogDir:       strings.TrimSpace(v.GetString("log_dir")),
		Timezone:     strings.TrimSpace(v.GetString("timezone")),
		FetchMode:    strings.ToLower(strings.TrimSpace(v.GetString("fetch.mode"))),
		FetchCommand: v.GetStringSlice("fetch.command"),
		RuntimePath:  strings.TrimSpace(v.GetString("runtime_path")),
		Lock:         v.GetBool("lock"),
		PFAPIKey:     strings.TrimSpace(v.GetString("pf.api_key")),
		PFBaseURL:    strings.TrimRight(strings.TrimSpace(v.GetString("pf.base_url")), "/"),
		PFTimeout:    parseDuration(v.GetString("pf.timeout"), defaultPFTimeout),
		DatabasePath: strings.TrimSpace(v.GetString("database_path")),
		Listen:       strings.TrimSpace(v.GetString("listen")),
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if c.LogDir == "" {
		return errors.New("log_dir must not be empty")
	}
	if c.Timezone == "" {
		return errors.New("timezone must not be empty")
	}
	switch c.FetchMode {
	case FetchModeBuiltin:
	case FetchModeCommand:
		if len(c.FetchCommand) == 0 {
			return errors.New("fetch.command is required when fetch.mode is \"command\"")
		}
	default:
		return fmt.Errorf("fetch.mode: unsupported value %q", c.FetchMode)
	}
	return nil
}

// RuntimeRequirement returns the path the fetch runtime must exist at, or "" when
// nothing needs checking.
func (c *Config) RuntimeRequirement() string {
	if c.RuntimePath != "" {
		return c.RuntimePath
	}
	if c.FetchMode == FetchModeCommand && len(c.FetchCommand) > 0 {
		return c.FetchCommand[0]
	}
	return ""
}

// parseDuration parses a duration string with a default
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return d
}
