// Package config provides centralized configuration management for
// Parley. Values come from three layers: built-in defaults, an
// optional YAML config file, and PARLEY_* environment variables.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PARLEY_SERVER_PORT maps to server.port.
const EnvPrefix = "PARLEY"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// setDefaults registers the built-in defaults on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", "250ms")
	v.SetDefault("redis.probe_interval", "30s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "./parley.db")

	v.SetDefault("admission.default_limit", 60)
	v.SetDefault("admission.default_window", "1m")

	v.SetDefault("classifier.lexical_weight", 0.4)
	v.SetDefault("classifier.similarity_weight", 0.6)
	v.SetDefault("classifier.floor", 0.30)
	v.SetDefault("classifier.epsilon", 0.02)
	v.SetDefault("classifier.embedding_dim", 256)
	v.SetDefault("classifier.embed_timeout", "2s")
	v.SetDefault("classifier.cache_ttl", "10m")
	v.SetDefault("classifier.revalidate_below", 0.65)

	v.SetDefault("routing.thresholds.direct", 0.85)
	v.SetDefault("routing.thresholds.clarify", 0.65)
	v.SetDefault("routing.thresholds.confirm", 0.45)
	v.SetDefault("routing.clarify_ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
}

// newViper builds a viper instance with defaults, file search paths and
// environment binding applied.
func newViper(cfgFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("parley")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/parley")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration from the given file (or the default search
// paths when cfgFile is empty), applies environment overrides and
// returns the validated result. Safe to call repeatedly for reloads;
// the previous configuration is kept when the new one is invalid.
func Load(cfgFile string) (*Config, error) {
	v := newViper(cfgFile)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and environment
		// variables carry the load. An unreadable or malformed one
		// is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Watch invokes onChange whenever the config file is written. It is a
// no-op when no config file is in use (defaults plus environment only).
// The callback runs on the watcher goroutine and should re-run Load
// itself; editors that truncate-and-write may fire more than once per
// save.
func Watch(cfgFile string, onChange func()) {
	v := newViper(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return
	}
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		onChange()
	})
	v.WatchConfig()
}

// decode unmarshals merged settings into the typed config struct.
func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that the type system cannot.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Admission.DefaultLimit <= 0 {
		return fmt.Errorf("admission.default_limit must be positive, got %d", c.Admission.DefaultLimit)
	}
	if c.Admission.DefaultWindow <= 0 {
		return fmt.Errorf("admission.default_window must be positive, got %s", c.Admission.DefaultWindow)
	}
	for i, r := range c.Admission.Rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("admission.rules[%d]: empty pattern", i)
		}
		if r.Limit <= 0 || r.Window <= 0 {
			return fmt.Errorf("admission.rules[%d] (%s): limit and window must be positive", i, r.Pattern)
		}
	}
	if c.Classifier.Floor < 0 || c.Classifier.Floor >= 1 {
		return fmt.Errorf("classifier.floor %.2f out of range [0,1)", c.Classifier.Floor)
	}
	if c.Classifier.EmbeddingDim <= 0 {
		return fmt.Errorf("classifier.embedding_dim must be positive, got %d", c.Classifier.EmbeddingDim)
	}
	t := c.Routing.Thresholds
	if t.Direct <= t.Clarify || t.Clarify <= t.Confirm || t.Confirm <= 0 || t.Direct > 1 {
		return fmt.Errorf("routing.thresholds must satisfy 0 < confirm < clarify < direct <= 1, got %.2f/%.2f/%.2f",
			t.Direct, t.Clarify, t.Confirm)
	}
	if len(c.Routing.Nodes) > 0 && strings.TrimSpace(c.Routing.Root) == "" {
		return fmt.Errorf("routing.root is required when routing.nodes is set")
	}
	return nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig swaps in a newly loaded configuration.
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
