// Package main provides the sightline CLI entry point.
// sightline renders exported chat transcripts in the terminal, resolving
// [Title m:ss] citations against a source registry.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/sightlinehq/sightline-cli/cmd"
	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/buildinfo"
	"github.com/sightlinehq/sightline-cli/pkg/db"
	"github.com/sightlinehq/sightline-cli/pkg/ledger"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
	"github.com/sightlinehq/sightline-cli/pkg/secrets"
)

// Global flags and state.
var (
	cfgDir       string
	logLevel     string
	outputFormat string

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sightline",
	Short: "Sightline CLI - Chat transcript renderer",
	Long: `sightline renders exported chat transcripts in the terminal.

Messages are annotated into structural blocks (headings, list items,
paragraphs) and inline spans, and [Title m:ss] citations are resolved
against a registry of video sources into clickable deep links. The
registry lives in a YAML file or, when configured, the source catalog
database.

COMMON WORKFLOWS:
  Render a transcript:  sightline render session.jsonl
  Inspect annotation:   sightline annotate segment notes.md
  Resolve a citation:   sightline annotate resolve "[Deep Dive 14:03]"
  Manage sources:       sightline sources add "Deep Dive" --duration 1260  →  sightline sources list
  Render in bulk:       sightline batch submit exports/*.jsonl  →  sightline batch worker
  Check system:         sightline status  →  sightline batch status

DISCOVERY:
  sightline <command> --help   Subcommands, flags, and examples for any command
  sightline status             Configuration and backend connectivity
  sightline batch status       Queue depth and dead letters`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// An explicit config directory applies to the config file, the
		// sources file and the secret store alike.
		if cfgDir != "" {
			expanded, err := config.ExpandPath(cfgDir)
			if err != nil {
				return fmt.Errorf("resolving config directory: %w", err)
			}
			os.Setenv("SIGHTLINE_CONFIG_DIR", expanded)
		}

		// Load configuration.
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}

		logging.SetGlobal(logging.NewLogger(&logging.Config{
			Level:       logging.Level(cfg.LogLevel),
			ServiceName: "sightline-cli",
			JSONFormat:  cfg.LogFormat == "json",
		}))

		return nil
	},
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the sightline CLI.

Examples:
  sightline version                Show version
  sightline version --output-json  Output as JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get("sightline-cli")

		if versionOutputJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sightline version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		return nil
	},
}

// statusResult is the output shape of 'sightline status'.
type statusResult struct {
	ConfigPath string           `json:"config_path" yaml:"config_path"`
	Registry   string           `json:"registry" yaml:"registry"`
	Redis      *redisStatus     `json:"redis" yaml:"redis"`
	Queue      *queueStatus     `json:"queue,omitempty" yaml:"queue,omitempty"`
	Database   *db.HealthStatus `json:"database,omitempty" yaml:"database,omitempty"`
	Ledger     *ledgerStatus    `json:"ledger,omitempty" yaml:"ledger,omitempty"`
}

// redisStatus reports the batch queue connection probe.
type redisStatus struct {
	Addr      string  `json:"addr" yaml:"addr"`
	Healthy   bool    `json:"healthy" yaml:"healthy"`
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// queueStatus reports the render queue depth.
type queueStatus struct {
	Name  string       `json:"name" yaml:"name"`
	Stats *queue.Stats `json:"stats" yaml:"stats"`
}

// ledgerStatus reports the render ledger probe.
type ledgerStatus struct {
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// statusCmd checks configuration and backend connectivity.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check configuration and backend connectivity",
	Long: `Check the configured backends of the sightline CLI.

Probes Redis (batch queue), the source catalog database and the render
ledger where configured. Rendering itself needs none of these; an
unreachable backend only limits sources, batch and history commands.

Examples:
  sightline status                 Human-readable status
  sightline status --output json   Machine-readable status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		result := &statusResult{}
		result.ConfigPath, _ = config.ConfigPath()

		if cfg.Database.IsConfigured() {
			result.Registry = fmt.Sprintf("database (%s/%s)", cfg.Database.Host, cfg.Database.Database)
		} else if path, err := cfg.SourcesPath(); err == nil {
			result.Registry = fmt.Sprintf("file (%s)", path)
		}

		result.Redis = probeRedis(ctx, result)

		if cfg.Database.IsConfigured() {
			result.Database = probeCatalog(ctx)
		}

		if cfg.Ledger.IsConfigured() {
			result.Ledger = probeLedger(ctx)
		}

		format := cfg.OutputFormat
		if outputFormat != "" {
			format = config.OutputFormat(outputFormat)
		}
		switch format {
		case config.OutputFormatJSON:
			return outputJSON(result)
		case config.OutputFormatYAML:
			return outputYAML(result)
		default:
			return outputStatusHuman(result)
		}
	},
}

// probeRedis pings the batch queue connection and, when reachable, reads
// the queue depth into the result.
func probeRedis(ctx context.Context, result *statusResult) *redisStatus {
	status := &redisStatus{Addr: cfg.Redis.Addr}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000

	q := queue.NewRedisQueue(client, queue.QueueConfig{
		Name:              cfg.Queue.Name,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxRetries:        cfg.Queue.MaxRetries,
		RetentionPeriod:   cfg.Queue.RetentionPeriod,
	})
	if stats, err := q.Stats(); err == nil {
		result.Queue = &queueStatus{Name: q.Name(), Stats: stats}
	}

	return status
}

// probeCatalog connects to the source catalog and runs a health check.
func probeCatalog(ctx context.Context) *db.HealthStatus {
	dbCfg := db.DefaultConfig()
	dbCfg.Host = cfg.Database.Host
	dbCfg.Password = cfg.Database.Password
	if cfg.Database.Port != 0 {
		dbCfg.Port = cfg.Database.Port
	}
	if cfg.Database.Database != "" {
		dbCfg.Database = cfg.Database.Database
	}
	if cfg.Database.User != "" {
		dbCfg.User = cfg.Database.User
	}
	if cfg.Database.SSLMode != "" {
		dbCfg.SSLMode = cfg.Database.SSLMode
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.Connect(connectCtx, dbCfg)
	if err != nil {
		return &db.HealthStatus{Error: err.Error()}
	}
	defer db.Close(pool)

	return db.Check(connectCtx, pool)
}

// probeLedger pings the render ledger database.
func probeLedger(ctx context.Context) *ledgerStatus {
	client, err := ledger.NewClient(&ledger.Config{DSN: cfg.Ledger.DSN, Labels: cfg.Ledger.Labels})
	if err != nil {
		return &ledgerStatus{Error: err.Error()}
	}
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		return &ledgerStatus{Error: err.Error()}
	}
	return &ledgerStatus{Healthy: true}
}

// outputStatusHuman outputs status in human-readable format.
func outputStatusHuman(result *statusResult) error {
	fmt.Println("Sightline Status")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("  Config:    %s\n", result.ConfigPath)
	fmt.Printf("  Registry:  %s\n", result.Registry)

	redisState := statusWithColor(result.Redis.Healthy, "")
	if result.Redis.Healthy {
		redisState = fmt.Sprintf("%s (ping %.1fms)", statusWithColor(true, "reachable"), result.Redis.LatencyMs)
	} else {
		redisState = fmt.Sprintf("%s: %s", statusWithColor(false, "unreachable"), result.Redis.Error)
	}
	fmt.Printf("  Redis:     %s  %s\n", result.Redis.Addr, redisState)

	if result.Queue != nil {
		fmt.Printf("  Queue:     %s  queued %d, processing %d, dead letters %d\n",
			result.Queue.Name,
			result.Queue.Stats.Queued,
			result.Queue.Stats.Processing,
			result.Queue.Stats.DeadLetters)
	}

	if result.Database != nil {
		fmt.Printf("  Database:  %s\n", result.Database.String())
	} else {
		fmt.Println("  Database:  (not configured, sources come from the file registry)")
	}

	if result.Ledger != nil {
		if result.Ledger.Healthy {
			fmt.Printf("  Ledger:    %s\n", statusWithColor(true, "reachable"))
		} else {
			fmt.Printf("  Ledger:    %s: %s\n", statusWithColor(false, "unreachable"), result.Ledger.Error)
		}
	} else {
		fmt.Println("  Ledger:    (not configured)")
	}

	return nil
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the sightline CLI configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current CLI configuration values. Passwords are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load config (uses PersistentPreRunE, so cfg is already loaded).
		if cfg == nil {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
		}

		configPath, _ := config.ConfigPath()
		sourcesPath, _ := cfg.SourcesPath()

		fmt.Println("Current configuration:")
		fmt.Printf("  Config file:    %s\n", configPath)
		fmt.Printf("  Log level:      %s\n", cfg.LogLevel)
		fmt.Printf("  Log format:     %s\n", cfg.LogFormat)
		fmt.Printf("  Output format:  %s\n", cfg.OutputFormat)
		fmt.Printf("  Sources file:   %s\n", sourcesPath)
		if cfg.Database.IsConfigured() {
			fmt.Printf("  Database:       %s:%d/%s (user %s)\n",
				cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.User)
			if cfg.Database.Password != "" {
				fmt.Printf("  DB password:    %s\n", secrets.MaskSecret(cfg.Database.Password))
			}
		} else {
			fmt.Println("  Database:       (not configured)")
		}
		fmt.Printf("  Redis:          %s (db %d)\n", cfg.Redis.Addr, cfg.Redis.DB)
		if cfg.Redis.Password != "" {
			fmt.Printf("  Redis password: %s\n", secrets.MaskSecret(cfg.Redis.Password))
		}
		fmt.Printf("  Queue:          %s (visibility %s, %d retries)\n",
			cfg.Queue.Name, cfg.Queue.VisibilityTimeout, cfg.Queue.MaxRetries)
		fmt.Printf("  Render:         width %s, color %s\n",
			valueOrDefault(widthString(cfg.Render.Width), "auto"), cfg.Render.Color)
		if cfg.Render.LinkScheme != "" {
			fmt.Printf("  Link scheme:    %s\n", cfg.Render.LinkScheme)
		}
		if cfg.Ledger.IsConfigured() {
			fmt.Println("  Ledger:         enabled")
		} else {
			fmt.Println("  Ledger:         disabled")
		}
		fmt.Printf("  Metrics addr:   %s\n", cfg.MetricsAddr)

		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		// Check if config already exists.
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Configuration file already exists: %s\n", configPath)
			fmt.Println("Use 'sightline config show' to view current settings.")
			return nil
		}

		// Create default config.
		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Printf("Created configuration file: %s\n", configPath)
		fmt.Println("\nDefault settings:")
		fmt.Printf("  Redis:          %s\n", defaultCfg.Redis.Addr)
		fmt.Printf("  Queue:          %s\n", defaultCfg.Queue.Name)
		fmt.Printf("  Output format:  %s\n", defaultCfg.OutputFormat)

		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Available keys:
  log_level           - Minimum log level (debug, info, warn, error)
  log_format          - Log output format (console, json)
  output_format       - Default output format (text, json, yaml)
  sources_file        - Path to the YAML sources file (supports ~)
  database.host       - Source catalog host (empty disables the catalog)
  database.port       - Source catalog port
  database.database   - Source catalog database name
  database.user       - Source catalog user
  database.sslmode    - Source catalog SSL mode
  redis.addr          - Redis address for the batch queue (host:port)
  redis.db            - Redis database number
  queue.name          - Batch queue key prefix
  queue.max_retries   - Redeliveries before dead-lettering
  render.width        - Wrap column (0 auto-detects)
  render.color        - Color mode (auto, always, never)
  render.link_scheme  - Citation deep link scheme
  ledger.enabled      - Record render runs (true/false)
  ledger.dsn          - Ledger PostgreSQL connection string
  metrics_addr        - Worker metrics listen address

Passwords are not config keys; store them with 'sightline config set-secret'.

Examples:
  sightline config set output_format json
  sightline config set database.host catalog.internal
  sightline config set render.width 100
  sightline config set ledger.enabled true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		// Load current config.
		currentCfg, err := config.LoadConfig()
		if err != nil {
			// If config doesn't exist, start with defaults.
			currentCfg = config.DefaultConfig()
		}

		// Set the value.
		switch key {
		case "log_level":
			switch value {
			case "debug", "info", "warn", "error":
				currentCfg.LogLevel = value
			default:
				return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", value)
			}
		case "log_format":
			if value != "console" && value != "json" {
				return fmt.Errorf("invalid log format: %s (must be console or json)", value)
			}
			currentCfg.LogFormat = value
		case "output_format":
			format := config.OutputFormat(value)
			if !format.IsValid() {
				return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
			}
			currentCfg.OutputFormat = format
		case "sources_file":
			// Validate the path is expandable.
			expanded, err := config.ExpandPath(value)
			if err != nil {
				return fmt.Errorf("invalid sources file path: %w", err)
			}
			// Store the original value (with ~) for readability.
			currentCfg.SourcesFile = value
			fmt.Printf("  (expands to: %s)\n", expanded)
		case "database.host":
			currentCfg.Database.Host = value
		case "database.port":
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 {
				return fmt.Errorf("invalid port: %s", value)
			}
			currentCfg.Database.Port = port
		case "database.database":
			currentCfg.Database.Database = value
		case "database.user":
			currentCfg.Database.User = value
		case "database.sslmode":
			currentCfg.Database.SSLMode = value
		case "redis.addr":
			currentCfg.Redis.Addr = value
		case "redis.db":
			dbNum, err := strconv.Atoi(value)
			if err != nil || dbNum < 0 {
				return fmt.Errorf("invalid redis database number: %s", value)
			}
			currentCfg.Redis.DB = dbNum
		case "queue.name":
			currentCfg.Queue.Name = value
		case "queue.max_retries":
			retries, err := strconv.Atoi(value)
			if err != nil || retries < 0 {
				return fmt.Errorf("invalid retry count: %s", value)
			}
			currentCfg.Queue.MaxRetries = retries
		case "render.width":
			width, err := strconv.Atoi(value)
			if err != nil || width < 0 {
				return fmt.Errorf("invalid width: %s", value)
			}
			currentCfg.Render.Width = width
		case "render.color":
			switch value {
			case config.ColorAuto, config.ColorAlways, config.ColorNever:
				currentCfg.Render.Color = value
			default:
				return fmt.Errorf("invalid color mode: %s (must be auto, always, or never)", value)
			}
		case "render.link_scheme":
			currentCfg.Render.LinkScheme = value
		case "ledger.enabled":
			if value == "true" || value == "1" {
				currentCfg.Ledger.Enabled = true
			} else if value == "false" || value == "0" {
				currentCfg.Ledger.Enabled = false
			} else {
				return fmt.Errorf("invalid ledger.enabled value: %s (must be true or false)", value)
			}
		case "ledger.dsn":
			currentCfg.Ledger.DSN = value
		case "metrics_addr":
			currentCfg.MetricsAddr = value
		default:
			return fmt.Errorf("unknown configuration key: %s", key)
		}

		// Save the config.
		if err := config.SaveConfig(currentCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

// configSetSecretCmd stores an encrypted secret.
var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <name>",
	Short: "Store an encrypted secret",
	Long: `Store a secret in the encrypted secret store.

The value is prompted for, never passed on the command line, and stored
AES-256-GCM encrypted. Secrets resolve during config loading, after
environment variables and before plaintext config values.

Available secrets:
  database_password  - Source catalog password
  redis_password     - Redis password

Examples:
  sightline config set-secret database_password
  echo "$PASSWORD" | sightline config set-secret redis_password`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name != secrets.DatabasePassword && name != secrets.RedisPassword {
			return fmt.Errorf("unknown secret %q (expected %s or %s)",
				name, secrets.DatabasePassword, secrets.RedisPassword)
		}

		value, err := promptSecret(name)
		if err != nil {
			return err
		}
		if value == "" {
			return fmt.Errorf("empty secret value")
		}

		store, err := secrets.NewStore()
		if err != nil {
			return fmt.Errorf("opening secret store: %w", err)
		}
		if err := store.Set(name, value); err != nil {
			return fmt.Errorf("storing secret: %w", err)
		}

		fmt.Printf("Stored %s = %s (key source: %s)\n", name, secrets.MaskSecret(value), store.KeySource())
		return nil
	},
}

// configDeleteSecretCmd removes a stored secret.
var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret <name>",
	Short: "Delete a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return fmt.Errorf("opening secret store: %w", err)
		}
		if err := store.Delete(args[0]); err != nil {
			return fmt.Errorf("deleting secret: %w", err)
		}

		fmt.Printf("Deleted secret %s\n", args[0])
		return nil
	},
}

// configSecretsCmd lists stored secret names.
var configSecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "List stored secret names",
	Long:  `List the names of stored secrets. Values are never shown.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := secrets.NewStore()
		if err != nil {
			return fmt.Errorf("opening secret store: %w", err)
		}
		names, err := store.List()
		if err != nil {
			return fmt.Errorf("listing secrets: %w", err)
		}

		if len(names) == 0 {
			fmt.Println("No secrets stored.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

// promptSecret reads a secret value: hidden terminal input when stdin is
// a TTY, a single line otherwise (piped input).
func promptSecret(name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Printf("Enter value for %s: ", name)
		value, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(value), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for sightline.

To load completions:

Bash:
  $ source <(sightline completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ sightline completion bash > /etc/bash_completion.d/sightline
  # macOS:
  $ sightline completion bash > $(brew --prefix)/etc/bash_completion.d/sightline

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ sightline completion zsh > "${fpath[1]}/_sightline"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ sightline completion fish | source

  # To load completions for each session, execute once:
  $ sightline completion fish > ~/.config/fish/completions/sightline.fish

PowerShell:
  PS> sightline completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> sightline completion powershell > sightline.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return nil
	},
}

// outputJSON outputs data as JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML outputs data as YAML.
func outputYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	return enc.Encode(v)
}

// statusWithColor returns a colored status string.
func statusWithColor(healthy bool, status string) string {
	if healthy {
		if status == "" {
			return "\033[32mhealthy\033[0m"
		}
		return fmt.Sprintf("\033[32m%s\033[0m", status)
	}
	if status == "" {
		return "\033[31munhealthy\033[0m"
	}
	return fmt.Sprintf("\033[31m%s\033[0m", status)
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// widthString renders a wrap width for display, empty when unset.
func widthString(width int) string {
	if width == 0 {
		return ""
	}
	return strconv.Itoa(width)
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default is ~/.sightline)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "render", Title: "Rendering:"},
		&cobra.Group{ID: "sources", Title: "Source Registry:"},
		&cobra.Group{ID: "batch", Title: "Batch Processing:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	// Rendering
	renderCmd := cmd.NewRenderCommand(nil)
	renderCmd.GroupID = "render"
	rootCmd.AddCommand(renderCmd)

	annotateCmd := cmd.NewAnnotateCommand(nil)
	annotateCmd.GroupID = "render"
	rootCmd.AddCommand(annotateCmd)

	// Source Registry
	sourcesCmd := cmd.NewSourcesCommand(nil)
	sourcesCmd.GroupID = "sources"
	rootCmd.AddCommand(sourcesCmd)

	// Batch Processing
	batchCmd := cmd.NewBatchCommand(nil)
	batchCmd.GroupID = "batch"
	rootCmd.AddCommand(batchCmd)

	// System
	statusCmd.GroupID = "system"
	rootCmd.AddCommand(statusCmd)

	configCmd.GroupID = "system"
	rootCmd.AddCommand(configCmd)

	completionCmd.GroupID = "system"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "system"
	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)

	// Config subcommands.
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSecretsCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)
}

func main() {
	// Set up signal handling for graceful shutdown. The first signal
	// cancels the command context so batch workers finish in-flight jobs;
	// a second signal forces exit.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
		<-sigChan
		os.Exit(1)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
