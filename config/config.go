// Package config provides CLI configuration management for the sightline
// command-line tool. It supports loading configuration from YAML files,
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sightlinehq/sightline-cli/pkg/secrets"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".sightline"
	DefaultConfigFile   = "config.yaml"
	DefaultSourcesFile  = "sources.yaml"

	DefaultRedisAddr   = "localhost:6379"
	DefaultMetricsAddr = ":9090"

	DefaultQueueName         = "render:jobs"
	DefaultVisibilityTimeout = 120 * time.Second
	DefaultQueueMaxRetries   = 3
	DefaultQueueRetention    = 24 * time.Hour
)

// Color modes for terminal rendering.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// DatabaseConfig holds PostgreSQL connection settings for the source
// catalog.
type DatabaseConfig struct {
	// Host is the database server hostname. Empty disables the catalog;
	// sources then come from the YAML file.
	Host string `yaml:"host,omitempty"`

	// Port is the database server port (default: 5432).
	Port int `yaml:"port,omitempty"`

	// Database is the database name.
	Database string `yaml:"database,omitempty"`

	// User is the database username.
	User string `yaml:"user,omitempty"`

	// Password is resolved at load time: env var, then secret store, then
	// this value.
	Password string `yaml:"password,omitempty"`

	// SSLMode is the SSL connection mode (disable, require, verify-ca,
	// verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`

	// MaxConns and MinConns bound the pgx pool.
	MaxConns int32 `yaml:"max_conns,omitempty"`
	MinConns int32 `yaml:"min_conns,omitempty"`
}

// IsConfigured reports whether the source catalog database is usable.
func (c *DatabaseConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != "" && c.User != ""
}

// RedisConfig holds Redis connection settings for the batch queue.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty"`

	// Password is resolved at load time like the database password.
	Password string `yaml:"password,omitempty"`
}

// QueueConfig holds batch queue tuning.
type QueueConfig struct {
	// Name is the queue key prefix in Redis.
	Name string `yaml:"name"`

	// VisibilityTimeout is how long a dequeued job stays invisible before
	// it is considered stale and recovered.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// MaxRetries is the number of redeliveries before dead-lettering.
	MaxRetries int `yaml:"max_retries"`

	// RetentionPeriod bounds how long message payloads are kept.
	RetentionPeriod time.Duration `yaml:"retention_period"`
}

// RenderConfig holds terminal rendering preferences.
type RenderConfig struct {
	// Width wraps output at the given column. Zero auto-detects from the
	// terminal.
	Width int `yaml:"width,omitempty"`

	// Color is one of auto, always, never.
	Color string `yaml:"color,omitempty"`

	// LinkScheme overrides the citation deep link scheme.
	LinkScheme string `yaml:"link_scheme,omitempty"`
}

// ColorEnabled resolves the color mode against terminal detection.
func (c RenderConfig) ColorEnabled(isTTY bool) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return isTTY
	}
}

// LedgerConfig holds render history settings.
type LedgerConfig struct {
	// Enabled switches ledger recording on.
	Enabled bool `yaml:"enabled,omitempty"`

	// DSN is the PostgreSQL connection string for the ledger database.
	DSN string `yaml:"dsn,omitempty"`

	// Labels are stamped on every recorded run.
	Labels []string `yaml:"labels,omitempty"`
}

// IsConfigured reports whether runs should be recorded.
func (c *LedgerConfig) IsConfigured() bool {
	return c != nil && c.Enabled && c.DSN != ""
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat selects console or json log output.
	LogFormat string `yaml:"log_format"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// SourcesFile is the YAML source catalog path. Empty means
	// sources.yaml inside the config directory.
	SourcesFile string `yaml:"sources_file,omitempty"`

	// Database holds the source catalog connection settings.
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Redis holds the batch queue connection settings.
	Redis RedisConfig `yaml:"redis"`

	// Queue holds batch queue tuning.
	Queue QueueConfig `yaml:"queue"`

	// Render holds terminal rendering preferences.
	Render RenderConfig `yaml:"render"`

	// Ledger holds render history settings.
	Ledger LedgerConfig `yaml:"ledger,omitempty"`

	// MetricsAddr is the listen address for the worker's /metrics server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		OutputFormat: DefaultOutputFormat,
		Database: DatabaseConfig{
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Queue: QueueConfig{
			Name:              DefaultQueueName,
			VisibilityTimeout: DefaultVisibilityTimeout,
			MaxRetries:        DefaultQueueMaxRetries,
			RetentionPeriod:   DefaultQueueRetention,
		},
		Render: RenderConfig{
			Color: ColorAuto,
		},
		MetricsAddr: DefaultMetricsAddr,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $SIGHTLINE_CONFIG_DIR if set, otherwise ~/.sightline.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SIGHTLINE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// SourcesPath returns the source catalog file path, honoring the
// configured override.
func (c *CLIConfig) SourcesPath() (string, error) {
	if c.SourcesFile != "" {
		return ExpandPath(c.SourcesFile)
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultSourcesFile), nil
}

// LoadConfig loads the CLI configuration.
// Sources are applied in this order (later overrides earlier):
//  1. Default values
//  2. Config file (~/.sightline/config.yaml or $SIGHTLINE_CONFIG_DIR/config.yaml)
//  3. Secret store (datastore passwords only)
//  4. Environment variables (SIGHTLINE_*)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromSecretStore(cfg)
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile is the YAML form: durations serialize as strings.
type configFile struct {
	LogLevel     string         `yaml:"log_level,omitempty"`
	LogFormat    string         `yaml:"log_format,omitempty"`
	OutputFormat OutputFormat   `yaml:"output_format,omitempty"`
	SourcesFile  string         `yaml:"sources_file,omitempty"`
	Database     DatabaseConfig `yaml:"database,omitempty"`
	Redis        RedisConfig    `yaml:"redis,omitempty"`
	Queue        queueFile      `yaml:"queue,omitempty"`
	Render       RenderConfig   `yaml:"render,omitempty"`
	Ledger       LedgerConfig   `yaml:"ledger,omitempty"`
	MetricsAddr  string         `yaml:"metrics_addr,omitempty"`
}

type queueFile struct {
	Name              string `yaml:"name,omitempty"`
	VisibilityTimeout string `yaml:"visibility_timeout,omitempty"`
	MaxRetries        *int   `yaml:"max_retries,omitempty"`
	RetentionPeriod   string `yaml:"retention_period,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogFormat != "" {
		cfg.LogFormat = fileCfg.LogFormat
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.SourcesFile != "" {
		cfg.SourcesFile = fileCfg.SourcesFile
	}
	if fileCfg.MetricsAddr != "" {
		cfg.MetricsAddr = fileCfg.MetricsAddr
	}

	mergeDatabase(&cfg.Database, fileCfg.Database)
	if fileCfg.Redis.Addr != "" {
		cfg.Redis.Addr = fileCfg.Redis.Addr
	}
	if fileCfg.Redis.DB != 0 {
		cfg.Redis.DB = fileCfg.Redis.DB
	}
	if fileCfg.Redis.Password != "" {
		cfg.Redis.Password = fileCfg.Redis.Password
	}

	if err := mergeQueue(&cfg.Queue, fileCfg.Queue); err != nil {
		return err
	}

	if fileCfg.Render.Width != 0 {
		cfg.Render.Width = fileCfg.Render.Width
	}
	if fileCfg.Render.Color != "" {
		cfg.Render.Color = fileCfg.Render.Color
	}
	if fileCfg.Render.LinkScheme != "" {
		cfg.Render.LinkScheme = fileCfg.Render.LinkScheme
	}

	cfg.Ledger.Enabled = fileCfg.Ledger.Enabled
	if fileCfg.Ledger.DSN != "" {
		cfg.Ledger.DSN = fileCfg.Ledger.DSN
	}
	if fileCfg.Ledger.Labels != nil {
		cfg.Ledger.Labels = fileCfg.Ledger.Labels
	}

	return nil
}

func mergeDatabase(dst *DatabaseConfig, src DatabaseConfig) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.Database != "" {
		dst.Database = src.Database
	}
	if src.User != "" {
		dst.User = src.User
	}
	if src.Password != "" {
		dst.Password = src.Password
	}
	if src.SSLMode != "" {
		dst.SSLMode = src.SSLMode
	}
	if src.MaxConns != 0 {
		dst.MaxConns = src.MaxConns
	}
	if src.MinConns != 0 {
		dst.MinConns = src.MinConns
	}
}

func mergeQueue(dst *QueueConfig, src queueFile) error {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.VisibilityTimeout != "" {
		d, err := time.ParseDuration(src.VisibilityTimeout)
		if err != nil {
			return fmt.Errorf("parsing queue visibility_timeout: %w", err)
		}
		dst.VisibilityTimeout = d
	}
	if src.MaxRetries != nil {
		dst.MaxRetries = *src.MaxRetries
	}
	if src.RetentionPeriod != "" {
		d, err := time.ParseDuration(src.RetentionPeriod)
		if err != nil {
			return fmt.Errorf("parsing queue retention_period: %w", err)
		}
		dst.RetentionPeriod = d
	}
	return nil
}

// loadFromSecretStore fills datastore passwords from the encrypted secret
// store. The store outranks file values but not environment variables.
// Failures are soft: without a secrets file or usable key the config is
// left untouched.
func loadFromSecretStore(cfg *CLIConfig) {
	dir, err := secrets.SecretsDir()
	if err != nil {
		return
	}
	if _, err := os.Stat(filepath.Join(dir, secrets.DefaultSecretsFile)); err != nil {
		return
	}

	store, err := secrets.NewStore()
	if err != nil {
		return
	}

	if v, err := store.Get(secrets.DatabasePassword); err == nil && v != "" {
		cfg.Database.Password = v
	}
	if v, err := store.Get(secrets.RedisPassword); err == nil && v != "" {
		cfg.Redis.Password = v
	}
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("SIGHTLINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SIGHTLINE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SIGHTLINE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("SIGHTLINE_SOURCES_FILE"); v != "" {
		cfg.SourcesFile = v
	}
	if v := os.Getenv("SIGHTLINE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	loadDatabaseFromEnv(&cfg.Database)
	loadRedisFromEnv(&cfg.Redis)
	loadQueueFromEnv(&cfg.Queue)
	loadRenderFromEnv(&cfg.Render)
	loadLedgerFromEnv(&cfg.Ledger)
}

func loadDatabaseFromEnv(cfg *DatabaseConfig) {
	if v := os.Getenv("SIGHTLINE_DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("SIGHTLINE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("SIGHTLINE_DB_NAME"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("SIGHTLINE_DB_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("SIGHTLINE_DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SIGHTLINE_DB_SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := os.Getenv("SIGHTLINE_DB_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("SIGHTLINE_DB_MIN_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.MinConns = int32(n)
		}
	}
}

func loadRedisFromEnv(cfg *RedisConfig) {
	if v := os.Getenv("SIGHTLINE_REDIS_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SIGHTLINE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DB = n
		}
	}
	if v := os.Getenv("SIGHTLINE_REDIS_PASSWORD"); v != "" {
		cfg.Password = v
	}
}

func loadQueueFromEnv(cfg *QueueConfig) {
	if v := os.Getenv("SIGHTLINE_QUEUE_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("SIGHTLINE_QUEUE_VISIBILITY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.VisibilityTimeout = d
		}
	}
	if v := os.Getenv("SIGHTLINE_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("SIGHTLINE_QUEUE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetentionPeriod = d
		}
	}
}

func loadRenderFromEnv(cfg *RenderConfig) {
	if v := os.Getenv("SIGHTLINE_RENDER_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Width = n
		}
	}
	if v := os.Getenv("SIGHTLINE_RENDER_COLOR"); v != "" {
		cfg.Color = v
	}
	if v := os.Getenv("SIGHTLINE_RENDER_LINK_SCHEME"); v != "" {
		cfg.LinkScheme = v
	}
}

func loadLedgerFromEnv(cfg *LedgerConfig) {
	if v := os.Getenv("SIGHTLINE_LEDGER_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("SIGHTLINE_LEDGER_ENABLED"); v == "true" || v == "1" {
		cfg.Enabled = true
	}
	if v := os.Getenv("SIGHTLINE_LEDGER_LABELS"); v != "" {
		parts := strings.Split(v, ",")
		labels := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				labels = append(labels, p)
			}
		}
		cfg.Labels = labels
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (must be debug, info, warn, or error)", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %q (must be console or json)", c.LogFormat)
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max_conns (%d) must be >= min_conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis db: %d", c.Redis.DB)
	}

	if c.Queue.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("queue visibility_timeout must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries must not be negative")
	}

	if c.Render.Width < 0 {
		return fmt.Errorf("render width must not be negative")
	}
	switch c.Render.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("invalid render color: %q (must be auto, always, or never)", c.Render.Color)
	}

	if c.Ledger.Enabled && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger enabled without dsn")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file. Passwords never
// land on disk here; they belong in the secret store.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	fileCfg := configFile{
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		OutputFormat: cfg.OutputFormat,
		SourcesFile:  cfg.SourcesFile,
		Database:     cfg.Database,
		Redis:        cfg.Redis,
		Queue: queueFile{
			Name:              cfg.Queue.Name,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout.String(),
			MaxRetries:        &cfg.Queue.MaxRetries,
			RetentionPeriod:   cfg.Queue.RetentionPeriod.String(),
		},
		Render:      cfg.Render,
		Ledger:      cfg.Ledger,
		MetricsAddr: cfg.MetricsAddr,
	}
	fileCfg.Database.Password = ""
	fileCfg.Redis.Password = ""

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
