package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render"
	"github.com/sightlinehq/sightline-cli/pkg/transcript"
)

// Annotate command flags.
var (
	annotateCharset string
	annotateSources string
	annotateOutput  string
)

// AnnotateCommandDeps holds the dependencies for annotate commands.
type AnnotateCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultAnnotateDeps returns the default dependencies for production use.
func DefaultAnnotateDeps() *AnnotateCommandDeps {
	return &AnnotateCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewAnnotateCommand creates the annotate command with subcommands.
func NewAnnotateCommand(deps *AnnotateCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAnnotateDeps()
	}

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Inspect the annotation pipeline stage by stage",
		Long: `Run individual annotation stages against ad-hoc input.

The render pipeline has three stages: block segmentation, inline token
extraction and citation resolution. Each subcommand runs exactly one
stage and prints its output, which makes transcript quirks easy to
diagnose without rendering a whole file.

Examples:
  # Show how a file splits into blocks
  sightline annotate segment notes.txt

  # Show the tokens of a single line
  sightline annotate inline 'See **this** and [Deep Dive 14:03].'

  # Resolve one citation against the registry
  sightline annotate resolve '[Deep Dive 14:03]'`,
	}

	cmd.AddCommand(newAnnotateSegmentCommand(deps))
	cmd.AddCommand(newAnnotateInlineCommand(deps))
	cmd.AddCommand(newAnnotateResolveCommand(deps))

	return cmd
}

// newAnnotateSegmentCommand creates the 'annotate segment' subcommand.
func newAnnotateSegmentCommand(deps *AnnotateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <file>",
		Short: "Segment text into block nodes",
		Long: `Segment message text into line-granularity block nodes.

Reads the file argument, or stdin when the argument is "-", and prints
one node per physical line: heading (level 1-3), list_item, break or
paragraph.

Examples:
  sightline annotate segment notes.txt
  cat notes.txt | sightline annotate segment - -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotateSegment(cmd.Context(), deps, args[0])
		},
	}

	cmd.Flags().StringVar(&annotateCharset, "charset", "", "Input charset (utf-8, latin1, windows-1252, shift-jis)")
	cmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newAnnotateInlineCommand creates the 'annotate inline' subcommand.
func newAnnotateInlineCommand(deps *AnnotateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inline <line>",
		Short: "Extract inline annotation tokens from a line",
		Long: `Extract the inline tokens of a single line of message text.

Prints the literal runs, **emphasis** spans and [title m:ss] citations
in source order with their byte offsets. Concatenating the raw form of
every token reconstructs the line exactly.

Examples:
  sightline annotate inline 'See **this** and [Deep Dive 14:03].'
  sightline annotate inline 'Broken [cite 1:2] stays literal' -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotateInline(cmd.Context(), deps, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newAnnotateResolveCommand creates the 'annotate resolve' subcommand.
func newAnnotateResolveCommand(deps *AnnotateCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <citation>",
		Short: "Resolve a citation against the source registry",
		Long: `Resolve one [title m:ss] citation against the source registry.

The registry is scanned in order and the first record wins where either
the record title contains the citation title, or the citation title
contains the record title's leading characters. With no match the first
record is the fallback; an empty registry leaves the citation unresolved
and it would render inert.

Flags:
  --sources   Sources file overriding the configured registry

Examples:
  sightline annotate resolve '[Deep Dive 14:03]'
  sightline annotate resolve '[Planning 0:45]' --sources ./sources.yaml -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotateResolve(cmd.Context(), deps, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&annotateSources, "sources", "", "Sources file overriding the configured registry")
	cmd.Flags().StringVarP(&annotateOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

func runAnnotateSegment(ctx context.Context, deps *AnnotateCommandDeps, path string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	text, err := readTextArg(path, annotateCharset)
	if err != nil {
		return err
	}

	blocks := annotate.Segment(text)

	switch resolveFormat(cfg, annotateOutput) {
	case config.OutputFormatJSON:
		return outputJSON(blocks)
	case config.OutputFormatYAML:
		return outputYAML(blocks)
	default:
		printBlocks(os.Stdout, blocks)
		return nil
	}
}

func runAnnotateInline(ctx context.Context, deps *AnnotateCommandDeps, line string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	tokens := annotate.ExtractInline(line)

	switch resolveFormat(cfg, annotateOutput) {
	case config.OutputFormatJSON:
		return outputJSON(tokens)
	case config.OutputFormatYAML:
		return outputYAML(tokens)
	default:
		printTokens(os.Stdout, tokens)
		return nil
	}
}

// resolveResult is the output shape of 'annotate resolve'.
type resolveResult struct {
	Citation       annotate.InlineToken      `json:"citation" yaml:"citation"`
	Resolved       annotate.ResolvedCitation `json:"resolved" yaml:"resolved"`
	Link           string                    `json:"link,omitempty" yaml:"link,omitempty"`
	RegistrySize   int                       `json:"registry_size" yaml:"registry_size"`
	RegistryOrigin string                    `json:"registry_origin" yaml:"registry_origin"`
}

func runAnnotateResolve(ctx context.Context, deps *AnnotateCommandDeps, line string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	logger := logging.MustGlobal()

	var citation *annotate.InlineToken
	tokens := annotate.ExtractInline(line)
	for i := range tokens {
		if tokens[i].Kind == annotate.TokenCitation {
			citation = &tokens[i]
			break
		}
	}
	if citation == nil {
		return fmt.Errorf("no citation found in %q (expected [title m:ss])", line)
	}

	var registry annotate.Registry
	var origin string
	if annotateSources != "" {
		registry, origin, err = loadRegistryFromFile(annotateSources)
	} else {
		registry, origin, err = loadRegistry(ctx, cfg, logger)
	}
	if err != nil {
		return err
	}

	resolved := annotate.ResolveCitation(*citation, registry)

	result := resolveResult{
		Citation:       *citation,
		Resolved:       resolved,
		RegistrySize:   len(registry),
		RegistryOrigin: origin,
	}
	if resolved.SourceID != "" {
		result.Link = render.DeepLink(cfg.Render.LinkScheme, resolved.SourceID, resolved.AbsoluteSeconds)
	}

	switch resolveFormat(cfg, annotateOutput) {
	case config.OutputFormatJSON:
		return outputJSON(result)
	case config.OutputFormatYAML:
		return outputYAML(result)
	default:
		printResolveResult(os.Stdout, result)
		return nil
	}
}

// readTextArg reads an annotate input argument, treating "-" as stdin.
func readTextArg(path, charset string) (string, error) {
	if path == "-" {
		r, err := transcript.DecodeReader(os.Stdin, charset)
		if err != nil {
			return "", err
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	decoded, err := transcript.DecodeBytes(data, charset)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func printBlocks(w io.Writer, blocks []annotate.BlockNode) {
	fmt.Fprintf(w, "%-5s %-10s %-6s %s\n", "#", "KIND", "LEVEL", "TEXT")
	for i, block := range blocks {
		level := ""
		if block.Level > 0 {
			level = strconv.Itoa(block.Level)
		}
		fmt.Fprintf(w, "%-5d %-10s %-6s %s\n", i+1, block.Kind, level, block.Text)
	}
	fmt.Fprintf(w, "\nTotal: %d blocks\n", len(blocks))
}

func printTokens(w io.Writer, tokens []annotate.InlineToken) {
	fmt.Fprintf(w, "%-5s %-9s %-6s %s\n", "#", "KIND", "START", "CONTENT")
	for i, tok := range tokens {
		content := tok.Text
		if tok.Kind == annotate.TokenCitation {
			content = fmt.Sprintf("%s @ %s:%s", tok.RawTitle, tok.Minutes, tok.Seconds)
		}
		fmt.Fprintf(w, "%-5d %-9s %-6d %s\n", i+1, tok.Kind, tok.Start, content)
	}
	fmt.Fprintf(w, "\nTotal: %d tokens\n", len(tokens))
}

func printResolveResult(w io.Writer, result resolveResult) {
	fmt.Fprintf(w, "Citation:   %s @ %s:%s\n",
		result.Citation.RawTitle, result.Citation.Minutes, result.Citation.Seconds)
	fmt.Fprintf(w, "Match:      %s\n", result.Resolved.Match)
	if result.Resolved.SourceID != "" {
		fmt.Fprintf(w, "Source:     %s\n", result.Resolved.SourceID)
		fmt.Fprintf(w, "Offset:     %ds\n", result.Resolved.AbsoluteSeconds)
		fmt.Fprintf(w, "Link:       %s\n", result.Link)
	} else {
		fmt.Fprintln(w, "Source:     (unresolved, renders inert)")
	}
	fmt.Fprintf(w, "Registry:   %d sources (%s)\n", result.RegistrySize, result.RegistryOrigin)
}
