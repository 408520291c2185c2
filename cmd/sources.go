package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	"github.com/sightlinehq/sightline-cli/pkg/db"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/sources"
)

// Sources command flags.
var (
	sourcesFile        string
	sourcesOutput      string
	sourcesAddID       string
	sourcesAddURL      string
	sourcesAddDuration int
)

// starterSourcesFile seeds 'sources init' when no database is configured.
const starterSourcesFile = `# Sightline source registry.
# Citations resolve against these records in order; the first record is
# the fallback when no title matches.
sources:
  - id: vd-example
    title: Example Deep Dive
    url: https://example.com/watch?v=example
    duration_seconds: 1260
`

// SourcesCommandDeps holds the dependencies for sources commands.
type SourcesCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultSourcesDeps returns the default dependencies for production use.
func DefaultSourcesDeps() *SourcesCommandDeps {
	return &SourcesCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewSourcesCommand creates the sources command with subcommands.
func NewSourcesCommand(deps *SourcesCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultSourcesDeps()
	}

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the source registry used for citation resolution",
		Long: `Manage the registry of video sources that citations resolve against.

The registry lives in the source catalog database when one is configured,
otherwise in a YAML sources file (sources.yaml in the config directory by
default). Registry order matters: the first record is the resolution
fallback when no title matches. import and export move the registry
between file and database, preserving that order.

Examples:
  # Register a source, letting the CLI generate its id
  sightline sources add "Deep Dive: Storage Engines" --duration 1260

  # Show the registry in catalog order
  sightline sources list

  # Move a file registry into the catalog database
  sightline sources import ./sources.yaml

  # Snapshot the catalog for offline use
  sightline sources export ./sources.yaml`,
	}

	cmd.AddCommand(newSourcesListCommand(deps))
	cmd.AddCommand(newSourcesAddCommand(deps))
	cmd.AddCommand(newSourcesRemoveCommand(deps))
	cmd.AddCommand(newSourcesRenameCommand(deps))
	cmd.AddCommand(newSourcesImportCommand(deps))
	cmd.AddCommand(newSourcesExportCommand(deps))
	cmd.AddCommand(newSourcesInitCommand(deps))

	return cmd
}

// newSourcesListCommand creates the 'sources list' subcommand.
func newSourcesListCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources in registry order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesList(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&sourcesFile, "file", "", "Sources file overriding the configured location")
	cmd.Flags().StringVarP(&sourcesOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newSourcesAddCommand creates the 'sources add' subcommand.
func newSourcesAddCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Register a new source",
		Long: `Register a new source at the end of the registry.

The id is generated (vd- prefix) unless --id supplies one. Duplicate ids
are rejected.

Flags:
  --id         Explicit source id (default: generated)
  --url        Source URL
  --duration   Source duration in seconds

Examples:
  sightline sources add "Deep Dive: Storage Engines" --duration 1260
  sightline sources add "Planning Session" --id vd-planning --url https://example.com/p`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesAdd(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().StringVar(&sourcesAddID, "id", "", "Explicit source id (default: generated)")
	cmd.Flags().StringVar(&sourcesAddURL, "url", "", "Source URL")
	cmd.Flags().IntVar(&sourcesAddDuration, "duration", 0, "Source duration in seconds")
	cmd.Flags().StringVar(&sourcesFile, "file", "", "Sources file overriding the configured location")
	cmd.Flags().StringVarP(&sourcesOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newSourcesRemoveCommand creates the 'sources remove' subcommand.
func newSourcesRemoveCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a source from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesRemove(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().StringVar(&sourcesFile, "file", "", "Sources file overriding the configured location")

	return cmd
}

// newSourcesRenameCommand creates the 'sources rename' subcommand.
func newSourcesRenameCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change a source's title",
		Long: `Change the title of a registered source.

Resolution matches on titles, so renaming a source changes which
citations it captures from the next render on.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesRename(cmd.Context(), deps, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&sourcesFile, "file", "", "Sources file overriding the configured location")

	return cmd
}

// newSourcesImportCommand creates the 'sources import' subcommand.
func newSourcesImportCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a sources file into the catalog database",
		Long: `Import a YAML sources file into the catalog database, preserving order.

Sources whose id already exists in the catalog are skipped, so importing
the same file twice is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesImport(cmd.Context(), deps, args[0])
		},
	}

	return cmd
}

// newSourcesExportCommand creates the 'sources export' subcommand.
func newSourcesExportCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the catalog database to a sources file",
		Long: `Export the catalog database to a YAML sources file in registry order.

The exported file works as a standalone registry for offline use, and
round-trips through 'sources import'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesExport(cmd.Context(), deps, args[0])
		},
	}

	return cmd
}

// newSourcesInitCommand creates the 'sources init' subcommand.
func newSourcesInitCommand(deps *SourcesCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the source registry",
		Long: `Initialize the source registry.

With a catalog database configured this creates the sources table.
Without one it writes a starter sources.yaml, leaving an existing file
untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourcesInit(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&sourcesFile, "file", "", "Sources file overriding the configured location")

	return cmd
}

// ==================== Command Implementations ====================

func runSourcesList(ctx context.Context, deps *SourcesCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	var list []sources.Source
	var origin string
	if useCatalog(cfg) {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		list, err = sources.NewStore(pool, logging.MustGlobal()).List(ctx)
		if err != nil {
			return err
		}
		origin = registryOriginDatabase
	} else {
		path, err := sourcesPath(cfg)
		if err != nil {
			return err
		}
		list, err = sources.LoadFile(path)
		if err != nil && !errors.Is(err, slerrors.ErrNotFound) {
			return err
		}
		origin = path
	}

	switch resolveFormat(cfg, sourcesOutput) {
	case config.OutputFormatJSON:
		return outputJSON(list)
	case config.OutputFormatYAML:
		return outputYAML(list)
	default:
		if len(list) == 0 {
			fmt.Println("No sources registered.")
			return nil
		}
		fmt.Printf("%-16s %-40s %-9s %s\n", "ID", "TITLE", "DURATION", "ADDED")
		for _, src := range list {
			added := "-"
			if !src.AddedAt.IsZero() {
				added = src.AddedAt.Format("2006-01-02")
			}
			fmt.Printf("%-16s %-40s %-9s %s\n",
				src.ID, truncate(src.Title, 40), formatSeconds(src.DurationSeconds), added)
		}
		fmt.Printf("\nTotal: %d sources (%s)\n", len(list), origin)
		return nil
	}
}

func runSourcesAdd(ctx context.Context, deps *SourcesCommandDeps, title string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: source title is required", slerrors.ErrValidation)
	}

	src := sources.Source{
		ID:              sourcesAddID,
		Title:           title,
		URL:             sourcesAddURL,
		DurationSeconds: sourcesAddDuration,
	}

	var stored *sources.Source
	if useCatalog(cfg) {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		store := sources.NewStore(pool, logging.MustGlobal())
		stored, err = store.Add(ctx, src)
		if err != nil {
			return err
		}
	} else {
		path, err := sourcesPath(cfg)
		if err != nil {
			return err
		}
		stored, err = addToSourcesFile(path, src)
		if err != nil {
			return err
		}
	}

	switch resolveFormat(cfg, sourcesOutput) {
	case config.OutputFormatJSON:
		return outputJSON(stored)
	case config.OutputFormatYAML:
		return outputYAML(stored)
	default:
		fmt.Printf("Added source \033[32m%s\033[0m (%s)\n", stored.ID, stored.Title)
		return nil
	}
}

func runSourcesRemove(ctx context.Context, deps *SourcesCommandDeps, id string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if useCatalog(cfg) {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		if err := sources.NewStore(pool, logging.MustGlobal()).Remove(ctx, id); err != nil {
			return err
		}
	} else {
		path, err := sourcesPath(cfg)
		if err != nil {
			return err
		}
		if err := removeFromSourcesFile(path, id); err != nil {
			return err
		}
	}

	fmt.Printf("Removed source %s\n", id)
	return nil
}

func runSourcesRename(ctx context.Context, deps *SourcesCommandDeps, id, title string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: source title is required", slerrors.ErrValidation)
	}

	if useCatalog(cfg) {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		if err := sources.NewStore(pool, logging.MustGlobal()).Rename(ctx, id, title); err != nil {
			return err
		}
	} else {
		path, err := sourcesPath(cfg)
		if err != nil {
			return err
		}
		if err := renameInSourcesFile(path, id, title); err != nil {
			return err
		}
	}

	fmt.Printf("Renamed source %s to %q\n", id, title)
	return nil
}

func runSourcesImport(ctx context.Context, deps *SourcesCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	list, err := sources.LoadFile(path)
	if err != nil {
		return err
	}

	pool, err := connectSourceCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	logger := logging.MustGlobal()
	store := sources.NewStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	imported := 0
	skipped := 0
	failed := 0
	for _, src := range list {
		_, err := store.Add(ctx, src)
		switch {
		case err == nil:
			imported++
		case errors.Is(err, slerrors.ErrAlreadyExists):
			skipped++
		default:
			failed++
			logger.Warn("importing source",
				logging.Err(err),
				logging.F("source_id", src.ID))
		}
	}

	fmt.Println()
	fmt.Println("Import Complete")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("  Total:       %d\n", len(list))
	fmt.Printf("  Imported:    \033[32m%d\033[0m\n", imported)
	fmt.Printf("  Skipped:     \033[33m%d\033[0m\n", skipped)
	fmt.Printf("  Failed:      \033[31m%d\033[0m\n", failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed to import", failed, len(list))
	}
	return nil
}

func runSourcesExport(ctx context.Context, deps *SourcesCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	pool, err := connectSourceCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	list, err := sources.NewStore(pool, logging.MustGlobal()).List(ctx)
	if err != nil {
		return err
	}

	if err := sources.SaveFile(path, list); err != nil {
		return err
	}

	fmt.Printf("Exported %d sources to %s\n", len(list), path)
	return nil
}

func runSourcesInit(ctx context.Context, deps *SourcesCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if useCatalog(cfg) {
		pool, err := connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(pool)

		if err := sources.NewStore(pool, logging.MustGlobal()).EnsureSchema(ctx); err != nil {
			return err
		}
		fmt.Println("Source catalog schema ready.")
		return nil
	}

	path, err := sourcesPath(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Sources file already exists: %s\n", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating sources directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterSourcesFile), 0600); err != nil {
		return fmt.Errorf("writing sources file: %w", err)
	}

	fmt.Printf("Created starter sources file: %s\n", path)
	return nil
}

// ==================== Helpers ====================

// useCatalog reports whether sources operations target the catalog
// database rather than the YAML file.
func useCatalog(cfg *config.CLIConfig) bool {
	return sourcesFile == "" && cfg.Database.IsConfigured()
}

// sourcesPath resolves the YAML sources file location: the --file flag
// wins over the configured path.
func sourcesPath(cfg *config.CLIConfig) (string, error) {
	if sourcesFile != "" {
		return config.ExpandPath(sourcesFile)
	}
	return cfg.SourcesPath()
}

// addToSourcesFile appends a source to the YAML registry, generating an
// id when absent, mirroring the catalog's add semantics.
func addToSourcesFile(path string, src sources.Source) (*sources.Source, error) {
	list, err := sources.LoadFile(path)
	if err != nil && !errors.Is(err, slerrors.ErrNotFound) {
		return nil, err
	}

	if src.ID == "" {
		src.ID = contentid.New(contentid.TypeVideo)
	}
	for _, existing := range list {
		if existing.ID == src.ID {
			return nil, fmt.Errorf("%w: source %q", slerrors.ErrAlreadyExists, src.ID)
		}
	}
	src.AddedAt = time.Now().UTC()

	if err := sources.SaveFile(path, append(list, src)); err != nil {
		return nil, err
	}
	return &src, nil
}

// removeFromSourcesFile deletes a source from the YAML registry.
func removeFromSourcesFile(path string, id string) error {
	list, err := sources.LoadFile(path)
	if err != nil {
		return err
	}

	updated := make([]sources.Source, 0, len(list))
	found := false
	for _, existing := range list {
		if existing.ID == id {
			found = true
			continue
		}
		updated = append(updated, existing)
	}
	if !found {
		return fmt.Errorf("%w: source %q", slerrors.ErrNotFound, id)
	}

	return sources.SaveFile(path, updated)
}

// renameInSourcesFile retitles a source in the YAML registry.
func renameInSourcesFile(path string, id, title string) error {
	list, err := sources.LoadFile(path)
	if err != nil {
		return err
	}

	found := false
	for i := range list {
		if list[i].ID == id {
			list[i].Title = title
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: source %q", slerrors.ErrNotFound, id)
	}

	return sources.SaveFile(path, list)
}

// formatSeconds renders a duration in seconds as m:ss.
func formatSeconds(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
