package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/db"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
	"github.com/sightlinehq/sightline-cli/pkg/sources"
)

// Registry origins reported by loadRegistry.
const (
	registryOriginDatabase = "database"
	registryOriginFile     = "file"
)

// dbConfigFromCLI maps the CLI database section onto a pool config,
// keeping pool defaults for anything the config leaves unset.
func dbConfigFromCLI(cfg *config.CLIConfig) *db.Config {
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
	if cfg.Database.MaxConns != 0 {
		dbCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns != 0 {
		dbCfg.MinConns = cfg.Database.MinConns
	}
	return dbCfg
}

// connectSourceCatalog opens a connection pool to the source catalog
// database. Callers own the pool and must close it via db.Close.
func connectSourceCatalog(ctx context.Context, cfg *config.CLIConfig) (*pgxpool.Pool, error) {
	if !cfg.Database.IsConfigured() {
		return nil, fmt.Errorf("source catalog database is not configured (set database.host, database.database and database.user)")
	}
	pool, err := db.Connect(ctx, dbConfigFromCLI(cfg))
	if err != nil {
		return nil, fmt.Errorf("connecting to source catalog: %w", err)
	}
	return pool, nil
}

// connectRedis opens and pings the Redis connection backing the batch queue.
func connectRedis(ctx context.Context, cfg *config.CLIConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// newRenderQueue builds the render queue on an open Redis connection.
func newRenderQueue(client *redis.Client, cfg *config.CLIConfig) *queue.RedisQueue {
	return queue.NewRedisQueue(client, queue.QueueConfig{
		Name:              cfg.Queue.Name,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxRetries:        cfg.Queue.MaxRetries,
		RetentionPeriod:   cfg.Queue.RetentionPeriod,
	})
}

// loadRegistry loads the source registry used for citation resolution.
// The database catalog wins when configured; otherwise the YAML sources
// file is used, and a missing file just means an empty registry.
func loadRegistry(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger) (annotate.Registry, string, error) {
	if cfg.Database.IsConfigured() {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		defer db.Close(pool)

		store := sources.NewStore(pool, logger)
		registry, err := store.Registry(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("loading source registry: %w", err)
		}
		return registry, registryOriginDatabase, nil
	}

	path, err := cfg.SourcesPath()
	if err != nil {
		return nil, "", err
	}
	return loadRegistryFromFile(path)
}

// loadRegistryFromFile loads the registry from a YAML sources file.
func loadRegistryFromFile(path string) (annotate.Registry, string, error) {
	list, err := sources.LoadFile(path)
	if errors.Is(err, slerrors.ErrNotFound) {
		return annotate.Registry{}, registryOriginFile, nil
	}
	if err != nil {
		return nil, "", err
	}
	return sources.Registry(list), registryOriginFile, nil
}

// resolveFormat picks the output format: explicit flag first, then the
// configured default.
func resolveFormat(cfg *config.CLIConfig, flagValue string) config.OutputFormat {
	if flagValue != "" {
		return config.OutputFormat(flagValue)
	}
	if cfg != nil && cfg.OutputFormat != "" {
		return cfg.OutputFormat
	}
	return config.OutputFormatText
}

// outputJSON outputs data as formatted JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// outputYAML outputs data as YAML.
func outputYAML(data any) error {
	encoder := yaml.NewEncoder(os.Stdout)
	return encoder.Encode(data)
}

// formatDurationMs formats a millisecond count for human display.
func formatDurationMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
