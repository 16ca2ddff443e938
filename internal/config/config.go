package config

import (
	"time"
)

// Config represents the complete application configuration. Values are
// merged from defaults, an optional YAML config file and PARLEY_*
// environment variables, in that order.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Store      StoreConfig      `mapstructure:"store"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the shared capacity counters. When disabled
// (or when Redis is unreachable at startup) counters fall back to the
// in-process store.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// StoreConfig contains database configuration for libsql/Turso. The
// audit trail is written here.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AdmissionConfig holds the default quota and the per-route overrides.
type AdmissionConfig struct {
	DefaultLimit  int           `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
	Rules         []QuotaRule   `mapstructure:"rules"`
}

// QuotaRule binds a route pattern (exact path or trailing-* prefix) to
// a sliding-window quota.
type QuotaRule struct {
	Pattern string        `mapstructure:"pattern"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// ClassifierConfig configures intent scoring and the result cache.
type ClassifierConfig struct {
	LexicalWeight    float64       `mapstructure:"lexical_weight"`
	SimilarityWeight float64       `mapstructure:"similarity_weight"`
	Floor            float64       `mapstructure:"floor"`
	Epsilon          float64       `mapstructure:"epsilon"`
	EmbeddingDim     int           `mapstructure:"embedding_dim"`
	EmbedTimeout     time.Duration `mapstructure:"embed_timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	RevalidateBelow  float64       `mapstructure:"revalidate_below"`
	Rules            []LexicalRule `mapstructure:"rules"`
}

// LexicalRule binds an intent label to its trigger keywords.
type LexicalRule struct {
	Label    string   `mapstructure:"label"`
	Keywords []string `mapstructure:"keywords"`
	Weight   float64  `mapstructure:"weight"`
}

// RoutingConfig holds the capability graph and dispatch thresholds.
type RoutingConfig struct {
	Root       string           `mapstructure:"root"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds"`
	ClarifyTTL time.Duration    `mapstructure:"clarify_ttl"`
	Nodes      []CapabilityConf `mapstructure:"nodes"`
}

// ThresholdConfig holds the confidence band boundaries.
type ThresholdConfig struct {
	Direct  float64 `mapstructure:"direct"`
	Clarify float64 `mapstructure:"clarify"`
	Confirm float64 `mapstructure:"confirm"`
}

// CapabilityConf describes one node of the capability graph.
type CapabilityConf struct {
	ID             string   `mapstructure:"id"`
	Description    string   `mapstructure:"description"`
	Domains        []string `mapstructure:"domains"`
	Accepts        []string `mapstructure:"accepts"`
	Priority       int      `mapstructure:"priority"`
	EscalationPath []string `mapstructure:"escalation_path"`
}

// AdminConfig gates the operational endpoints.
type AdminConfig struct {
	// ReloadToken must be presented as a bearer token on
	// POST /admin/reload. Empty disables the endpoint.
	ReloadToken string `mapstructure:"reload_token"`
}

// LoggingConfig contains logging configuration.
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}
