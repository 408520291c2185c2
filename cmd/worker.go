package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/buildinfo"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	"github.com/sightlinehq/sightline-cli/pkg/db"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/ledger"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
	"github.com/sightlinehq/sightline-cli/pkg/render"
	"github.com/sightlinehq/sightline-cli/pkg/render/observability"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
	"github.com/sightlinehq/sightline-cli/pkg/render/workers"
	"github.com/sightlinehq/sightline-cli/pkg/sources"
	"github.com/sightlinehq/sightline-cli/pkg/transcript"
)

// Batch worker command flags.
var (
	workerCount        int
	workerBatchSize    int
	workerPollInterval time.Duration
	workerMetricsAddr  string
)

// newBatchWorkerCommand creates the 'batch worker' subcommand.
func newBatchWorkerCommand(deps *BatchCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run render workers against the job queue",
		Long: `Run a pool of workers that drain the render queue.

Each worker dequeues jobs, renders the transcript (or, for verify jobs,
annotates it without writing output) and records the run in the ledger
when one is configured. Failed jobs retry with backoff; permanent
failures move to the dead letter queue with a reason.

The worker serves prometheus metrics on /metrics and build information
on /buildinfo at the metrics address. Stop with SIGINT or SIGTERM; the
pool finishes in-flight jobs before exiting.

Flags:
  --workers        Number of concurrent workers
  --batch-size     Messages dequeued per poll
  --poll-interval  Queue poll interval
  --metrics-addr   Listen address for /metrics and /buildinfo

Examples:
  sightline batch worker
  sightline batch worker --workers 8 --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchWorker(cmd.Context(), deps)
		},
	}

	defaults := workers.DefaultWorkerConfig()
	cmd.Flags().IntVar(&workerCount, "workers", defaults.Count, "Number of concurrent workers")
	cmd.Flags().IntVar(&workerBatchSize, "batch-size", defaults.BatchSize, "Messages dequeued per poll")
	cmd.Flags().DurationVar(&workerPollInterval, "poll-interval", defaults.PollInterval, "Queue poll interval")
	cmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "Listen address for /metrics and /buildinfo (default from config)")

	return cmd
}

func runBatchWorker(ctx context.Context, deps *BatchCommandDeps) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	logger := logging.MustGlobal().With(logging.F("component", "batch_worker"))

	client, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	q := newRenderQueue(client, cfg)

	registry := prometheus.NewRegistry()
	metrics := observability.NewRenderMetrics(registry)

	// The catalog pool is optional: without one, jobs resolve against the
	// sources file instead.
	var catalogPool *pgxpool.Pool
	if cfg.Database.IsConfigured() {
		catalogPool, err = connectSourceCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close(catalogPool)

		if _, err := db.RegisterPoolStatsCollectorWithRegistry(catalogPool, "sightline", "batch_worker", registry); err != nil {
			logger.Warn("registering pool stats collector", logging.Err(err))
		}
	}

	var ledgerClient *ledger.Client
	if cfg.Ledger.IsConfigured() {
		ledgerClient, err = ledger.NewClient(&ledger.Config{DSN: cfg.Ledger.DSN, Labels: cfg.Ledger.Labels})
		if err != nil {
			logger.Warn("render ledger unavailable", logging.Err(err))
		} else {
			defer ledgerClient.Close()
			if err := ledgerClient.EnsureSchema(ctx); err != nil {
				logger.Warn("preparing render ledger schema", logging.Err(err))
				ledgerClient.Close()
				ledgerClient = nil
			}
		}
	}

	emitter := observability.NewEventEmitter(observability.NewRedisEventPublisher(
		func(ctx context.Context, channel string, message interface{}) error {
			return client.Publish(ctx, channel, message).Err()
		}))
	defer emitter.Close()

	processor := &renderJobProcessor{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  observability.NewTracer(),
		emitter: emitter,
		ledger:  ledgerClient,
		pool:    catalogPool,
	}

	metricsAddr := workerMetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/buildinfo", buildinfo.Handler("sightline-worker"))
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics server listening", logging.F("addr", metricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()

	// Stale-message recovery and queue depth reporting share one ticker
	// tied to the visibility window.
	go func() {
		ticker := time.NewTicker(cfg.Queue.VisibilityTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.RecoverStaleMessages(); err != nil {
					logger.Warn("recovering stale messages", logging.Err(err))
				}
				reportQueueDepth(ctx, q, metrics, emitter, logger)
			}
		}
	}()

	workerCfg := workers.DefaultWorkerConfig()
	workerCfg.VisibilityTimeout = cfg.Queue.VisibilityTimeout
	if workerCount > 0 {
		workerCfg.Count = workerCount
	}
	if workerBatchSize > 0 {
		workerCfg.BatchSize = workerBatchSize
	}
	if workerPollInterval > 0 {
		workerCfg.PollInterval = workerPollInterval
	}

	pool := workers.NewPool(workerCfg, q, processor.Handle, logger)
	pool.Start()
	logger.Info("batch worker started",
		logging.F("workers", workerCfg.Count),
		logging.F("queue", q.Name()),
		logging.F("metrics_addr", metricsAddr))
	fmt.Printf("Batch worker running with %d worker(s) on queue %q. Press Ctrl+C to stop.\n",
		workerCfg.Count, q.Name())

	<-ctx.Done()

	logger.Info("shutting down batch worker")
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", logging.Err(err))
	}

	stats := pool.Stats()
	fmt.Printf("\nWorker stopped. Processed: \033[32m%d\033[0m, Failed: \033[31m%d\033[0m\n",
		stats.Processed, stats.Failed)
	return nil
}

// reportQueueDepth refreshes the depth gauges and emits a stats event.
func reportQueueDepth(ctx context.Context, q *queue.RedisQueue, metrics *observability.RenderMetrics, emitter *observability.EventEmitter, logger logging.Logger) {
	stats, err := q.Stats()
	if err != nil {
		logger.Warn("reading queue stats", logging.Err(err))
		return
	}
	metrics.SetQueueDepth(q.Name(), observability.QueueStateQueued, float64(stats.Queued))
	metrics.SetQueueDepth(q.Name(), observability.QueueStateProcessing, float64(stats.Processing))
	metrics.SetQueueDepth(q.Name(), observability.QueueStateDeadLetter, float64(stats.DeadLetters))

	event := observability.NewQueueStatsEvent(q.Name(), stats.Queued, stats.Processing, stats.DeadLetters)
	if err := emitter.EmitQueueStats(ctx, event); err != nil {
		logger.Warn("emitting queue stats", logging.Err(err))
	}
}

// ==================== Job Processing ====================

// renderJobProcessor handles render and verify jobs dequeued by the pool.
type renderJobProcessor struct {
	cfg     *config.CLIConfig
	logger  logging.Logger
	metrics *observability.RenderMetrics
	tracer  *observability.Tracer
	emitter *observability.EventEmitter
	ledger  *ledger.Client
	pool    *pgxpool.Pool // nil without a catalog database
}

// Handle dispatches one queue message. Returned ProcessingErrors drive
// the pool's retry decision: transient and dependency errors requeue,
// permanent ones dead-letter.
func (p *renderJobProcessor) Handle(ctx context.Context, msg queue.Message) error {
	switch m := msg.(type) {
	case *queue.RenderMessage:
		return p.processJob(ctx, observability.JobTypeRender, m.BatchID, m.TranscriptPath, func(ctx context.Context, rec *jobRecording) *queue.ProcessingError {
			return p.renderJob(ctx, m, rec)
		})
	case *queue.VerifyMessage:
		return p.processJob(ctx, observability.JobTypeVerify, m.BatchID, m.TranscriptPath, func(ctx context.Context, rec *jobRecording) *queue.ProcessingError {
			return p.verifyJob(ctx, m, rec)
		})
	default:
		return queue.NewPermanentError(queue.ErrorCodeInvalidInput,
			fmt.Sprintf("unsupported message type %q", msg.GetMessageType()), nil)
	}
}

// jobRecording carries the per-job observability handles and the
// artifacts the wrap-up needs.
type jobRecording struct {
	helper   *observability.SpanHelper
	recorder *observability.JobRecorder

	transcript *transcript.Transcript
	stats      *render.Stats
	outputPath string
}

// processJob wraps one job in a trace span, metrics, ledger entry and
// completion event, delegating the pipeline itself to run.
func (p *renderJobProcessor) processJob(ctx context.Context, jobType, batchID, transcriptPath string, run func(context.Context, *jobRecording) *queue.ProcessingError) error {
	jobID := contentid.New(contentid.TypeRender)
	ctx, span := p.tracer.StartJobSpan(ctx, jobType, jobID, batchID)
	defer span.End()

	rec := &jobRecording{
		helper:   observability.NewSpanHelper(span),
		recorder: observability.NewJobRecorder(p.metrics, jobType),
	}
	logger := p.logger.With(
		logging.F("job_id", jobID),
		logging.F("job_type", jobType),
		logging.F("transcript", transcriptPath))
	logger.Info("job started")

	start := time.Now()
	procErr := run(ctx, rec)
	durationMs := time.Since(start).Milliseconds()
	rec.helper.SetDuration(durationMs)

	p.recordLedgerEntry(ctx, jobID, transcriptPath, rec, durationMs, procErr)

	if procErr != nil {
		rec.helper.SetError(procErr, string(procErr.Category), procErr.IsRetryable())
		rec.recorder.RecordCompletion(observability.JobStatusFailed, time.Since(start).Seconds())
		logger.Error("job failed",
			logging.Err(procErr),
			logging.F("error_code", procErr.Code),
			logging.F("retryable", procErr.IsRetryable()))

		event := observability.NewJobFailedEvent(jobID, jobType, transcriptPath,
			procErr.Code, procErr.Message, procErr.IsRetryable(), 0)
		if err := p.emitter.EmitJobFailed(ctx, event); err != nil {
			logger.Warn("emitting job event", logging.Err(err))
		}
		return procErr
	}

	rec.helper.SetSuccess()
	rec.recorder.RecordCompletion(observability.JobStatusSuccess, time.Since(start).Seconds())
	logger.Info("job completed",
		logging.F("duration_ms", durationMs),
		logging.F("output", rec.outputPath))

	event := observability.NewJobCompletedEvent(jobID, jobType, transcriptPath, durationMs)
	event.BatchID = batchID
	event.TraceID = observability.GetTraceID(ctx)
	event.OutputPath = rec.outputPath
	if rec.stats != nil {
		event.Messages = rec.stats.Messages
		event.Blocks = rec.stats.Blocks
		event.Citations = rec.stats.Citations
		event.Fallbacks = rec.stats.Fallback
	}
	if err := p.emitter.EmitJobCompleted(ctx, event); err != nil {
		logger.Warn("emitting job event", logging.Err(err))
	}
	return nil
}

// renderJob runs the full pipeline for one render message and writes the
// output file.
func (p *renderJobProcessor) renderJob(ctx context.Context, m *queue.RenderMessage, rec *jobRecording) *queue.ProcessingError {
	doc, procErr := p.buildJobDocument(ctx, m.TranscriptPath, m.Charset, m.Filter, m.SourcesPath, rec)
	if procErr != nil {
		return procErr
	}

	var buf bytes.Buffer
	switch m.Format {
	case batchFormatJSON:
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			return queue.NewPermanentError(queue.ErrorCodeIO, "encoding document", err)
		}
	default:
		renderer := render.NewTextRenderer(render.Options{
			Width:      p.cfg.Render.Width,
			LinkScheme: p.cfg.Render.LinkScheme,
		})
		for i, dm := range doc.Messages {
			if i > 0 {
				buf.WriteByte('\n')
			}
			if err := renderer.RenderMessage(&buf, dm.AnnotatedMessage); err != nil {
				return queue.NewPermanentError(queue.ErrorCodeIO, "rendering message", err)
			}
		}
	}

	if m.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.OutputPath), 0755); err != nil {
			return queue.NewTransientError(queue.ErrorCodeIO, "creating output directory", err)
		}
		if err := os.WriteFile(m.OutputPath, buf.Bytes(), 0644); err != nil {
			return queue.NewTransientError(queue.ErrorCodeIO, "writing output file", err)
		}
		rec.outputPath = m.OutputPath
	}

	rec.recorder.RecordDocument(m.Format, buf.Len())
	rec.helper.SetDocument(m.Format, buf.Len())
	return nil
}

// verifyJob annotates a transcript and records statistics without
// producing output.
func (p *renderJobProcessor) verifyJob(ctx context.Context, m *queue.VerifyMessage, rec *jobRecording) *queue.ProcessingError {
	_, procErr := p.buildJobDocument(ctx, m.TranscriptPath, m.Charset, "", m.SourcesPath, rec)
	return procErr
}

// buildJobDocument loads, filters and annotates one transcript, feeding
// the span and metrics as it goes.
func (p *renderJobProcessor) buildJobDocument(ctx context.Context, transcriptPath, charset, filterExpr, sourcesPath string, rec *jobRecording) (*render.Document, *queue.ProcessingError) {
	t, err := transcript.LoadWithCharset(transcriptPath, charset)
	if err != nil {
		return nil, classifyLoadError(err)
	}
	rec.transcript = t
	rec.helper.SetTranscript(t.Path, len(t.Messages))

	msgs := t.Messages
	if filterExpr != "" {
		filter, err := transcript.ParseFilter(filterExpr)
		if err != nil {
			return nil, queue.NewPermanentError(queue.ErrorCodeInvalidInput, "invalid filter", err)
		}
		msgs = filter.Apply(msgs)
	}

	registry, procErr := p.loadJobRegistry(ctx, sourcesPath)
	if procErr != nil {
		return nil, procErr
	}

	_, span := p.tracer.StartStageSpan(ctx, "annotate")
	doc := render.BuildDocument(msgs, registry, render.Options{LinkScheme: p.cfg.Render.LinkScheme})
	span.End()

	rec.stats = &doc.Stats
	rec.helper.SetAnnotationStats(doc.Stats.Blocks, doc.Stats.Tokens, doc.Stats.Citations, doc.Stats.Fallback)
	observeDocument(doc, rec.recorder)

	return doc, nil
}

// loadJobRegistry resolves the registry for one job: an explicit sources
// file on the message wins, then the catalog database, then the
// configured sources file.
func (p *renderJobProcessor) loadJobRegistry(ctx context.Context, sourcesPath string) (annotate.Registry, *queue.ProcessingError) {
	if sourcesPath != "" {
		_, span := p.tracer.StartRegistryLoadSpan(ctx, registryOriginFile)
		defer span.End()

		registry, _, err := loadRegistryFromFile(sourcesPath)
		if err != nil {
			return nil, queue.NewPermanentError(queue.ErrorCodeInvalidInput, "loading sources file", err)
		}
		return registry, nil
	}

	if p.pool != nil {
		_, span := p.tracer.StartRegistryLoadSpan(ctx, registryOriginDatabase)
		defer span.End()

		registry, err := sources.NewStore(p.pool, p.logger).Registry(ctx)
		if err != nil {
			return nil, queue.NewDependencyError(queue.ErrorCodeDatabase, "loading source registry", err)
		}
		return registry, nil
	}

	path, err := p.cfg.SourcesPath()
	if err != nil {
		return nil, queue.NewPermanentError(queue.ErrorCodeInvalidInput, "resolving sources path", err)
	}
	_, span := p.tracer.StartRegistryLoadSpan(ctx, registryOriginFile)
	defer span.End()

	registry, _, err := loadRegistryFromFile(path)
	if err != nil {
		return nil, queue.NewPermanentError(queue.ErrorCodeInvalidInput, "loading sources file", err)
	}
	return registry, nil
}

// recordLedgerEntry writes the job outcome to the render ledger when one
// is configured. Best effort.
func (p *renderJobProcessor) recordLedgerEntry(ctx context.Context, jobID, transcriptPath string, rec *jobRecording, durationMs int64, procErr *queue.ProcessingError) {
	if p.ledger == nil {
		return
	}

	entry := &ledger.Entry{
		JobID:          jobID,
		TranscriptPath: transcriptPath,
		DurationMs:     durationMs,
		Success:        procErr == nil,
	}
	if rec.transcript != nil {
		entry.Fingerprint = rec.transcript.Fingerprint
	}
	if rec.stats != nil {
		entry.Messages = rec.stats.Messages
		entry.Citations = rec.stats.Citations
		entry.Resolved = rec.stats.Resolved
		entry.Fallback = rec.stats.Fallback
	}
	if procErr != nil {
		entry.ErrorMessage = procErr.Error()
	}

	if err := p.ledger.Record(ctx, entry); err != nil {
		p.logger.Warn("recording render run", logging.Err(err), logging.F("job_id", jobID))
	}
}

// observeDocument feeds per-kind annotation metrics from a built document.
func observeDocument(doc *render.Document, recorder *observability.JobRecorder) {
	blockKinds := make(map[string]int)
	tokenKinds := make(map[string]int)
	for _, dm := range doc.Messages {
		recorder.RecordMessage(dm.Role)
		for _, block := range dm.Blocks {
			blockKinds[string(block.Kind)]++
			for _, tok := range block.Tokens {
				tokenKinds[string(tok.Kind)]++
				if tok.Kind == annotate.TokenCitation && tok.Resolved != nil {
					recorder.RecordCitation(string(tok.Resolved.Match))
				}
			}
		}
	}
	for kind, count := range blockKinds {
		recorder.RecordBlocks(kind, count)
	}
	for kind, count := range tokenKinds {
		recorder.RecordTokens(kind, count)
	}
}

// classifyLoadError maps a transcript load failure onto a retry category.
// Missing or malformed transcripts never heal on retry; IO errors might.
func classifyLoadError(err error) *queue.ProcessingError {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return queue.NewPermanentError(queue.ErrorCodeInvalidInput, "transcript not found", err)
	case errors.Is(err, slerrors.ErrUnsupportedFormat):
		return queue.NewPermanentError(queue.ErrorCodeEncoding, "unsupported charset", err)
	case errors.Is(err, slerrors.ErrValidation):
		return queue.NewPermanentError(queue.ErrorCodeParse, "malformed transcript", err)
	default:
		return queue.NewTransientError(queue.ErrorCodeIO, "reading transcript", err)
	}
}
