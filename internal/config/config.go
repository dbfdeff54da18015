package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-rent-must-flow/internal/common"
)

// EnvPrefix prefixes every environment override, e.g. RENT_DATABASE_PATH.
const EnvPrefix = "RENT"

// Config holds the resolved application settings.
type Config struct {
	DatabasePath     string
	LogLevel         string
	LogFormat        string
	CombinationsFile string
	PropertyID       int64
}

// Dir returns the directory holding the config file and the default database.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "rent"), nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.config/rent/rent.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("reference.combinations_file", "")
	v.SetDefault("property.default_id", 1)
}

// Load reads configuration into v and resolves it. configFile overrides the
// default search of $HOME/.config/rent/config.yaml and ./config.yaml. A missing
// config file is not an error; a .env file in the working directory is applied
// to the environment first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(ExpandPath(configFile))
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("No config file found, using defaults")
	}

	return Resolve(v)
}

// Resolve builds a Config from the current values in v.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath:     ExpandPath(v.GetString("database.path")),
		LogLevel:         v.GetString("logging.level"),
		LogFormat:        v.GetString("logging.format"),
		CombinationsFile: ExpandPath(v.GetString("reference.combinations_file")),
		PropertyID:       v.GetInt64("property.default_id"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path is empty", common.ErrInvalidConfig)
	}
	if c.PropertyID <= 0 {
		return fmt.Errorf("%w: property.default_id must be positive, got %d", common.ErrInvalidConfig, c.PropertyID)
	}
	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
