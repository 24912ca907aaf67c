// Package config loads chunkflow settings from defaults, an optional YAML
// file, an optional .env file and CHUNKFLOW_* environment variables, in
// that order of precedence (later wins).
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lguimbarda/chunkflow/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CHUNKFLOW"

// Config is the complete chunkflow configuration.
type Config struct {
	Log      logger.Config  `mapstructure:"log"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Server   ServerConfig   `mapstructure:"server"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Store    StoreConfig    `mapstructure:"store"`
}

// PipelineConfig sizes the channels and chunks of a pipeline run.
type PipelineConfig struct {
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0"`
	ChunkSize  int `mapstructure:"chunk_size" validate:"gt=0"`
	Workers    int `mapstructure:"workers" validate:"gte=1,lte=256"`
}

// ServerConfig configures the TCP chunk server.
type ServerConfig struct {
	Addr      string        `mapstructure:"addr" validate:"required,hostname_port"`
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"gt=0"`
	Transform string        `mapstructure:"transform" validate:"oneof=upper scrypt echo"`
}

// CryptoConfig holds the key derivation parameters.
type CryptoConfig struct {
	Salt   string `mapstructure:"salt" validate:"required"`
	KeyLen int    `mapstructure:"key_len" validate:"gt=0,lte=1024"`
}

// StoreConfig configures chunk persistence.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory sqlite3"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver sqlite3"`
}

var defaults = map[string]any{
	"log.level":            "info",
	"log.format":           "console",
	"log.output":           "stderr",
	"log.no_color":         false,
	"log.caller":           false,
	"pipeline.buffer_size": 1,
	"pipeline.chunk_size":  16 * 1024,
	"pipeline.workers":     1,
	"server.addr":          "127.0.0.1:3000",
	"server.heartbeat":     time.Second,
	"server.transform":     "upper",
	"crypto.salt":          "a-salt",
	"crypto.key_len":       32,
	"store.driver":         "memory",
	"store.dsn":            "",
}

type loaderConfig struct {
	configFile string
	envFile    string
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*loaderConfig)

// WithConfigFile sets an explicit YAML config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.configFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *loaderConfig) { lc.envFile = path }
}

// Load builds and validates the configuration. A .env file only sets
// variables that are not already in the environment.
func Load(opts ...LoaderOption) (*Config, error) {
	var lc loaderConfig
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.envFile != "" {
		if err := godotenv.Load(lc.envFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %s", lc.envFile)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if lc.configFile != "" {
		v.SetConfigFile(lc.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", lc.configFile)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	err := validate().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate config")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return errors.WithHint(
		errors.Newf("invalid config: %s", strings.Join(msgs, "; ")),
		"set the value in the config file or as "+EnvPrefix+"_<SECTION>_<KEY>",
	)
}
