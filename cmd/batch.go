package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	"github.com/sightlinehq/sightline-cli/pkg/ledger"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
	"github.com/sightlinehq/sightline-cli/pkg/transcript"
)

// Batch command flags.
var (
	batchPriority    string
	batchFilter      string
	batchCharset     string
	batchSources     string
	batchFormat      string
	batchOutputDir   string
	batchVerify      bool
	batchDeadLetters int
	batchRetryMax    int
	batchLimit       int
	batchOutput      string
)

// Batch render output formats accepted by --format.
const (
	batchFormatText = "text"
	batchFormatJSON = "json"
)

// BatchCommandDeps holds the dependencies for batch commands.
type BatchCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultBatchDeps returns the default dependencies for production use.
func DefaultBatchDeps() *BatchCommandDeps {
	return &BatchCommandDeps{
		LoadConfig: config.LoadConfig,
	}
}

// NewBatchCommand creates the batch command with subcommands.
func NewBatchCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Render transcripts asynchronously through the job queue",
		Long: `Submit transcripts to the Redis-backed render queue and run workers.

submit enqueues one job per transcript file, worker consumes the queue
and writes rendered output, status shows queue depth and dead letters,
retry requeues dead letters and history lists completed runs from the
render ledger.

Examples:
  # Enqueue a directory of transcripts at high priority
  sightline batch submit exports/*.jsonl --priority high --output-dir rendered/

  # Run four workers with metrics on :9090
  sightline batch worker --workers 4

  # Watch the queue
  sightline batch status --dead-letters 5`,
	}

	if deps == nil {
		deps = DefaultBatchDeps()
	}

	cmd.AddCommand(newBatchSubmitCommand(deps))
	cmd.AddCommand(newBatchWorkerCommand(deps))
	cmd.AddCommand(newBatchStatusCommand(deps))
	cmd.AddCommand(newBatchRetryCommand(deps))
	cmd.AddCommand(newBatchHistoryCommand(deps))

	return cmd
}

// newBatchSubmitCommand creates the 'batch submit' subcommand.
func newBatchSubmitCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <transcript>...",
		Short: "Enqueue transcripts for asynchronous rendering",
		Long: `Enqueue one render job per transcript file.

Jobs share a generated batch id. Output lands next to each transcript as
<name>.render.txt (or .json), or inside --output-dir when given. With
--verify, jobs annotate and record statistics without writing output.

Flags:
  --priority     Job priority: low, normal, high
  --filter       Message filter applied by the worker
  --charset      Transcript charset
  --sources      Sources file the worker should resolve against
  --format       Rendered output format: text, json
  --output-dir   Directory for rendered output files
  --verify       Annotate only, write no output

Examples:
  sightline batch submit session.jsonl
  sightline batch submit exports/*.jsonl --priority high --output-dir rendered/
  sightline batch submit legacy/*.txt --charset latin1 --verify`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchSubmit(cmd.Context(), deps, args)
		},
	}

	cmd.Flags().StringVar(&batchPriority, "priority", "normal", "Job priority: low, normal, high")
	cmd.Flags().StringVar(&batchFilter, "filter", "", "Message filter applied by the worker")
	cmd.Flags().StringVar(&batchCharset, "charset", "", "Transcript charset (utf-8, latin1, windows-1252, shift-jis)")
	cmd.Flags().StringVar(&batchSources, "sources", "", "Sources file the worker should resolve against")
	cmd.Flags().StringVar(&batchFormat, "format", batchFormatText, "Rendered output format: text, json")
	cmd.Flags().StringVar(&batchOutputDir, "output-dir", "", "Directory for rendered output files")
	cmd.Flags().BoolVar(&batchVerify, "verify", false, "Annotate only, write no output")
	cmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newBatchStatusCommand creates the 'batch status' subcommand.
func newBatchStatusCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth and dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchStatus(cmd.Context(), deps)
		},
	}

	cmd.Flags().IntVar(&batchDeadLetters, "dead-letters", 0, "List up to N dead letter entries")
	cmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// newBatchRetryCommand creates the 'batch retry' subcommand.
func newBatchRetryCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Requeue dead letters for another attempt",
		Long: `Move dead letters back onto the queue with their retry count reset.

Fix the underlying problem first; a job that dead-lettered for a
permanent reason will dead-letter again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchRetry(cmd.Context(), deps)
		},
	}

	cmd.Flags().IntVar(&batchRetryMax, "max", 100, "Maximum dead letters to requeue")

	return cmd
}

// newBatchHistoryCommand creates the 'batch history' subcommand.
func newBatchHistoryCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent render runs from the ledger",
		Long: `List recent render runs recorded in the render ledger, newest first.

Requires the ledger to be configured (ledger.enabled with a DSN).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchHistory(cmd.Context(), deps)
		},
	}

	cmd.Flags().IntVar(&batchLimit, "limit", 20, "Maximum entries to list")
	cmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output format: text, json, yaml")

	return cmd
}

// ==================== Command Implementations ====================

// batchSubmitResult is the output shape of 'batch submit'.
type batchSubmitResult struct {
	BatchID  string `json:"batch_id" yaml:"batch_id"`
	Jobs     int    `json:"jobs" yaml:"jobs"`
	Priority string `json:"priority" yaml:"priority"`
	Queue    string `json:"queue" yaml:"queue"`
	Verify   bool   `json:"verify,omitempty" yaml:"verify,omitempty"`
}

func runBatchSubmit(ctx context.Context, deps *BatchCommandDeps, paths []string) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	priority, err := parsePriority(batchPriority)
	if err != nil {
		return err
	}
	if batchFormat != batchFormatText && batchFormat != batchFormatJSON {
		return fmt.Errorf("invalid format %q (expected text or json)", batchFormat)
	}
	if batchFilter != "" {
		if _, err := transcript.ParseFilter(batchFilter); err != nil {
			return fmt.Errorf("invalid filter: %w", err)
		}
	}

	sourcesPath := batchSources
	if sourcesPath != "" {
		if sourcesPath, err = filepath.Abs(sourcesPath); err != nil {
			return fmt.Errorf("resolving sources path: %w", err)
		}
	}

	batchID := contentid.New(contentid.TypeBatch)
	now := time.Now().UTC()

	// Paths go absolute so workers in another working directory find them.
	msgs := make([]queue.Message, 0, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving transcript path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("transcript %s: %w", path, err)
		}

		if batchVerify {
			msgs = append(msgs, &queue.VerifyMessage{
				TranscriptPath: abs,
				SourcesPath:    sourcesPath,
				Charset:        batchCharset,
				Priority:       priority,
				BatchID:        batchID,
				SubmittedAt:    now,
			})
			continue
		}
		msgs = append(msgs, &queue.RenderMessage{
			TranscriptPath: abs,
			SourcesPath:    sourcesPath,
			OutputPath:     renderOutputPath(abs, batchOutputDir, batchFormat),
			Format:         batchFormat,
			Filter:         batchFilter,
			Charset:        batchCharset,
			Priority:       priority,
			BatchID:        batchID,
			SubmittedAt:    now,
		})
	}

	client, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	q := newRenderQueue(client, cfg)
	if err := q.EnqueueBatch(msgs); err != nil {
		return fmt.Errorf("enqueueing batch: %w", err)
	}

	result := batchSubmitResult{
		BatchID:  batchID,
		Jobs:     len(msgs),
		Priority: batchPriority,
		Queue:    q.Name(),
		Verify:   batchVerify,
	}

	switch resolveFormat(cfg, batchOutput) {
	case config.OutputFormatJSON:
		return outputJSON(result)
	case config.OutputFormatYAML:
		return outputYAML(result)
	default:
		fmt.Println()
		fmt.Println("Batch Submitted")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Printf("  Batch ID:    \033[32m%s\033[0m\n", result.BatchID)
		fmt.Printf("  Jobs:        %d\n", result.Jobs)
		fmt.Printf("  Priority:    %s\n", result.Priority)
		fmt.Printf("  Queue:       %s\n", result.Queue)
		if result.Verify {
			fmt.Println("  Mode:        verify (no output files)")
		}
		return nil
	}
}

// batchStatusResult is the output shape of 'batch status'.
type batchStatusResult struct {
	Queue       string             `json:"queue" yaml:"queue"`
	Stats       *queue.Stats       `json:"stats" yaml:"stats"`
	DeadLetters []queue.DeadLetter `json:"dead_letters,omitempty" yaml:"dead_letters,omitempty"`
}

func runBatchStatus(ctx context.Context, deps *BatchCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	client, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	q := newRenderQueue(client, cfg)
	stats, err := q.Stats()
	if err != nil {
		return fmt.Errorf("reading queue stats: %w", err)
	}

	result := batchStatusResult{Queue: q.Name(), Stats: stats}
	if batchDeadLetters > 0 {
		letters, err := q.DeadLetters(int64(batchDeadLetters))
		if err != nil {
			return fmt.Errorf("reading dead letters: %w", err)
		}
		result.DeadLetters = letters
	}

	switch resolveFormat(cfg, batchOutput) {
	case config.OutputFormatJSON:
		return outputJSON(result)
	case config.OutputFormatYAML:
		return outputYAML(result)
	default:
		fmt.Printf("Queue: %s\n", result.Queue)
		fmt.Println(strings.Repeat("=", 50))
		fmt.Printf("  Queued:       %d\n", stats.Queued)
		fmt.Printf("  Processing:   %d\n", stats.Processing)
		fmt.Printf("  Dead Letters: %d\n", stats.DeadLetters)
		if len(result.DeadLetters) > 0 {
			fmt.Println("\nDead Letters:")
			for _, letter := range result.DeadLetters {
				printDeadLetter(letter)
			}
		}
		return nil
	}
}

// printDeadLetter writes one DLQ entry, falling back to the raw payload
// when the entry predates the current message format.
func printDeadLetter(letter queue.DeadLetter) {
	qm, err := letter.Parse()
	if err != nil {
		fmt.Printf("  - %s (%s)\n", truncate(letter.Message, 60), letter.Reason)
		return
	}

	path := "unknown"
	if msg, err := qm.ParseMessage(); err == nil {
		path = msg.GetTranscriptPath()
	}
	fmt.Printf("  - %s %s\n", qm.ID, path)
	fmt.Printf("    reason: %s (retries: %d, moved: %s)\n",
		letter.Reason, qm.RetryCount, letter.MovedAt)
}

func runBatchRetry(ctx context.Context, deps *BatchCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	client, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	q := newRenderQueue(client, cfg)
	requeued, err := q.RetryDeadLetters(int64(batchRetryMax))
	if err != nil {
		return fmt.Errorf("retrying dead letters: %w", err)
	}

	if requeued == 0 {
		fmt.Println("No dead letters to retry.")
		return nil
	}
	fmt.Printf("Requeued \033[32m%d\033[0m dead letter(s) on %s\n", requeued, q.Name())
	return nil
}

func runBatchHistory(ctx context.Context, deps *BatchCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg

	if !cfg.Ledger.IsConfigured() {
		return fmt.Errorf("render ledger is not configured (set ledger.enabled and ledger.dsn)")
	}

	client, err := ledger.NewClient(&ledger.Config{DSN: cfg.Ledger.DSN, Labels: cfg.Ledger.Labels})
	if err != nil {
		return fmt.Errorf("opening render ledger: %w", err)
	}
	defer client.Close()

	entries, err := client.ListRecent(ctx, batchLimit)
	if err != nil {
		return fmt.Errorf("listing render history: %w", err)
	}

	switch resolveFormat(cfg, batchOutput) {
	case config.OutputFormatJSON:
		return outputJSON(entries)
	case config.OutputFormatYAML:
		return outputYAML(entries)
	default:
		if len(entries) == 0 {
			fmt.Println("No render runs recorded.")
			return nil
		}
		fmt.Printf("%-14s %-20s %-9s %-11s %-9s %s\n",
			"JOB", "WHEN", "MESSAGES", "CITATIONS", "DURATION", "TRANSCRIPT")
		for _, entry := range entries {
			status := ""
			if !entry.Success {
				status = " \033[31mFAILED\033[0m"
			}
			fmt.Printf("%-14s %-20s %-9d %-11s %-9s %s%s\n",
				entry.JobID,
				entry.CreatedAt.Format("2006-01-02 15:04:05"),
				entry.Messages,
				fmt.Sprintf("%d/%d", entry.Resolved, entry.Citations),
				formatDurationMs(entry.DurationMs),
				entry.TranscriptPath,
				status)
		}
		fmt.Printf("\nTotal: %d runs\n", len(entries))
		return nil
	}
}

// ==================== Helpers ====================

// parsePriority maps a --priority flag value onto a queue priority.
func parsePriority(value string) (queue.Priority, error) {
	switch strings.ToLower(value) {
	case "low":
		return queue.PriorityLow, nil
	case "normal", "":
		return queue.PriorityNormal, nil
	case "high":
		return queue.PriorityHigh, nil
	default:
		return 0, fmt.Errorf("invalid priority %q (expected low, normal or high)", value)
	}
}

// renderOutputPath derives where a batch render job writes its output:
// session.jsonl becomes session.render.txt (or .json) beside the
// transcript, or inside outputDir when given.
func renderOutputPath(transcriptPath, outputDir, format string) string {
	ext := "txt"
	if format == batchFormatJSON {
		ext = "json"
	}
	base := filepath.Base(transcriptPath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".render." + ext
	if outputDir != "" {
		return filepath.Join(outputDir, name)
	}
	return filepath.Join(filepath.Dir(transcriptPath), name)
}
