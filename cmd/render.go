// Package cmd provides CLI commands for the sightline tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	"github.com/sightlinehq/sightline-cli/pkg/ledger"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render"
	"github.com/sightlinehq/sightline-cli/pkg/transcript"
)

// Render command flags.
var (
	renderSourcesFile string
	renderFilter      string
	renderCharset     string
	renderWidth       int
	renderColor       string
	renderOutFile     string
	renderShowLinks   bool
	renderShowStats   bool
	renderOutput      string
)

// RenderCommandDeps holds the dependencies for the render command.
type RenderCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultRenderDeps returns the default dependencies for production use.
func DefaultRenderDeps() *RenderCommandDeps {
	return &RenderCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewRenderCommand creates the render command.
func NewRenderCommand(deps *RenderCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultRenderDeps()
	}

	cmd := &cobra.Command{
		Use:   "render <transcript>",
		Short: "Render a chat transcript with resolved citations",
		Long: `Render a chat transcript as styled terminal text with citation deep links.

The transcript is parsed by extension (.jsonl as one message per line,
anything else as a single plain-text message), segmented into headings,
list items and paragraphs, and every [title m:ss] citation is resolved
against the source registry. Resolved citations render with the source
title, timestamp and a deep link; unresolved ones print exactly as written.

The registry comes from the source catalog database when one is
configured, otherwise from the YAML sources file. --sources overrides
both with an explicit file.

Flags:
  --sources   Sources file overriding the configured registry
  --filter    Keep only matching messages (e.g. 'role:assistant has:citation')
  --charset   Decode the transcript from a legacy charset before parsing
  --width     Wrap width in columns (0 = detect from terminal)
  --color     Color mode: auto, always, never
  --out       Write rendered output to a file instead of stdout
  --links     List citation deep links after the rendered text
  --stats     Print run statistics to stderr

Examples:
  # Render a transcript to the terminal
  sightline render session.jsonl

  # Render only assistant messages that cite a source
  sightline render session.jsonl --filter 'role:assistant has:citation'

  # Produce the document form for scripting
  sightline render session.jsonl -o json > session.json

  # Render a latin1 export to a fixed width file
  sightline render legacy.txt --charset latin1 --width 100 --out legacy.out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().StringVar(&renderSourcesFile, "sources", "", "Sources file overriding the configured registry")
	cmd.Flags().StringVar(&renderFilter, "filter", "", "Message filter expression")
	cmd.Flags().StringVar(&renderCharset, "charset", "", "Transcript charset (utf-8, latin1, windows-1252, shift-jis)")
	cmd.Flags().IntVar(&renderWidth, "width", 0, "Wrap width in columns (0 = detect)")
	cmd.Flags().StringVar(&renderColor, "color", "", "Color mode: auto, always, never")
	cmd.Flags().StringVar(&renderOutFile, "out", "", "Write output to file instead of stdout")
	cmd.Flags().BoolVar(&renderShowLinks, "links", false, "List citation deep links after the rendered text")
	cmd.Flags().BoolVar(&renderShowStats, "stats", false, "Print run statistics to stderr")
	cmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

func runRender(ctx context.Context, deps *RenderCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	logger := logging.MustGlobal()

	t, err := transcript.LoadWithCharset(path, renderCharset)
	if err != nil {
		return err
	}

	msgs := t.Messages
	if renderFilter != "" {
		filter, err := transcript.ParseFilter(renderFilter)
		if err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
		msgs = filter.Apply(msgs)
	}

	var registry annotate.Registry
	var origin string
	if renderSourcesFile != "" {
		registry, origin, err = loadRegistryFromFile(renderSourcesFile)
	} else {
		registry, origin, err = loadRegistry(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	logger.Debug("rendering transcript",
		logging.F("transcript", path),
		logging.F("format", t.Format),
		logging.F("messages", len(msgs)),
		logging.F("sources", len(registry)),
		logging.F("registry_origin", origin))

	out := io.Writer(os.Stdout)
	toFile := renderOutFile != ""
	if toFile {
		f, err := os.Create(renderOutFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	// Color and width follow the destination: a file or pipe gets no
	// color and the configured width unless flags say otherwise.
	renderCfg := cfg.Render
	if renderColor != "" {
		renderCfg.Color = renderColor
	}
	if renderWidth != 0 {
		renderCfg.Width = renderWidth
	}
	fd := int(os.Stdout.Fd())
	isTTY := !toFile && render.IsTTY(fd)

	opts := render.Options{
		Color:      renderCfg.ColorEnabled(isTTY),
		Width:      renderCfg.Width,
		LinkScheme: renderCfg.LinkScheme,
	}
	if opts.Width == 0 && isTTY {
		opts.Width = render.DetectWidth(fd, 0)
	}

	// The document form carries a link per citation summary already, so
	// the collector only feeds the text footer.
	format := resolveFormat(cfg, renderOutput)
	collector := render.NewCollector(renderCfg.LinkScheme)
	if renderShowLinks && format == config.OutputFormatText {
		opts.OnActivate = collector.Func()
	}

	var stats *render.Stats
	switch format {
	case config.OutputFormatJSON:
		doc := render.BuildDocument(msgs, registry, opts)
		stats = &doc.Stats
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(doc)
	case config.OutputFormatYAML:
		doc := render.BuildDocument(msgs, registry, opts)
		stats = &doc.Stats
		err = yaml.NewEncoder(out).Encode(doc)
	default:
		stats, err = render.RenderText(out, msgs, registry, opts)
	}

	if cfg.Ledger.IsConfigured() {
		recordRenderEntry(ctx, cfg, logger, t, stats, err)
	}
	if err != nil {
		return err
	}

	if renderShowLinks && format == config.OutputFormatText {
		printCitationLinks(out, collector.Links())
	}
	if renderShowStats {
		printRenderStats(os.Stderr, stats, len(registry), origin)
	}
	return nil
}

// printCitationLinks appends the collected deep links after the output.
func printCitationLinks(w io.Writer, links []render.Link) {
	if len(links) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Citation Links:")
	for _, link := range links {
		fmt.Fprintf(w, "  %s\n", link.URL)
	}
}

// printRenderStats writes the run summary, normally to stderr so it never
// mixes with rendered output on stdout.
func printRenderStats(w io.Writer, stats *render.Stats, registrySize int, origin string) {
	if stats == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render Complete")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "  Messages:    %d\n", stats.Messages)
	fmt.Fprintf(w, "  Blocks:      %d\n", stats.Blocks)
	fmt.Fprintf(w, "  Citations:   %d (%d resolved, %d fallback, %d unresolved)\n",
		stats.Citations, stats.Resolved, stats.Fallback, stats.Unresolved)
	fmt.Fprintf(w, "  Registry:    %d sources (%s)\n", registrySize, origin)
	fmt.Fprintf(w, "  Duration:    %s\n", formatDurationMs(stats.DurationMs))
}

// recordRenderEntry writes one run to the render ledger. Best effort: a
// ledger failure is logged, never fatal to the render itself.
func recordRenderEntry(ctx context.Context, cfg *config.CLIConfig, logger logging.Logger, t *transcript.Transcript, stats *render.Stats, runErr error) {
	client, err := ledger.NewClient(&ledger.Config{DSN: cfg.Ledger.DSN, Labels: cfg.Ledger.Labels})
	if err != nil {
		logger.Warn("render ledger unavailable", logging.Err(err))
		return
	}
	defer client.Close()

	if err := client.EnsureSchema(ctx); err != nil {
		logger.Warn("preparing render ledger schema", logging.Err(err))
		return
	}

	entry := &ledger.Entry{
		JobID:          contentid.New(contentid.TypeRender),
		TranscriptPath: t.Path,
		Fingerprint:    t.Fingerprint,
		Success:        runErr == nil,
	}
	if stats != nil {
		entry.Messages = stats.Messages
		entry.Citations = stats.Citations
		entry.Resolved = stats.Resolved
		entry.Fallback = stats.Fallback
		entry.DurationMs = stats.DurationMs
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}

	if err := client.Record(ctx, entry); err != nil {
		logger.Warn("recording render run", logging.Err(err))
	}
}
