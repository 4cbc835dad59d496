// Package config loads naivebayes settings from defaults, an optional YAML
// file, NAIVEBAYES_* environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hickeroar/naivebayes/bayes"
	"github.com/hickeroar/naivebayes/logging"
	"github.com/hickeroar/naivebayes/tokenizer"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "NAIVEBAYES"

var errInvalidConfig = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Model      ModelConfig      `mapstructure:"model"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Tokenizer  tokenizer.Config `mapstructure:"tokenizer"`
	Logging    logging.Config   `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	AuthToken       string        `mapstructure:"auth_token"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig selects where the trained model is kept.
type ModelConfig struct {
	Path        string `mapstructure:"path"`         // gob file, used when RedisURL is empty
	RedisURL    string `mapstructure:"redis_url"`    // redis://host:port/db
	RedisPrefix string `mapstructure:"redis_prefix"` // key prefix for the redis tables
}

// ClassifierConfig holds scoring parameters.
type ClassifierConfig struct {
	Smoothing float64 `mapstructure:"smoothing"`
}

// New returns a viper instance with every default registered, so that
// environment variables resolve even without a config file.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("model.path", filepath.Join(os.TempDir(), "naivebayes.gob"))
	v.SetDefault("model.redis_url", "")
	v.SetDefault("model.redis_prefix", "naivebayes")

	v.SetDefault("classifier.smoothing", 1.0)

	tok := tokenizer.DefaultConfig()
	v.SetDefault("tokenizer.language", tok.Language)
	v.SetDefault("tokenizer.stem", tok.Stem)
	v.SetDefault("tokenizer.min_length", tok.MinLength)
	v.SetDefault("tokenizer.max_length", tok.MaxLength)
	v.SetDefault("tokenizer.bigrams", tok.Bigrams)

	logCfg := logging.DefaultConfig()
	v.SetDefault("logging.level", logCfg.Level)
	v.SetDefault("logging.format", logCfg.Format)
	v.SetDefault("logging.file", logCfg.File)
	v.SetDefault("logging.max_size", logCfg.MaxSize)
	v.SetDefault("logging.max_backups", logCfg.MaxBackups)
	v.SetDefault("logging.max_age", logCfg.MaxAge)
	v.SetDefault("logging.compress", logCfg.Compress)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads cfgFile (or searches the standard locations when empty) into v
// and decodes the result. A missing config file is only an error when it was
// named explicitly.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "naivebayes"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("naivebayes")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is empty", errInvalidConfig)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", errInvalidConfig)
	}
	if !bayes.ValidSmoothing(c.Classifier.Smoothing) {
		return fmt.Errorf("%w: classifier.smoothing must be within [%g, %g], got %g",
			errInvalidConfig, bayes.MinSmoothing, bayes.MaxSmoothing, c.Classifier.Smoothing)
	}
	if c.Model.RedisURL == "" && !filepath.IsAbs(c.Model.Path) {
		return fmt.Errorf("%w: model.path must be absolute, got %q", errInvalidConfig, c.Model.Path)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	return nil
}
