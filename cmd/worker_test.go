package cmd

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/render"
	"github.com/sightlinehq/sightline-cli/pkg/render/observability"
	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
)

// TestNewBatchWorkerCommand tests that the worker command is created correctly.
func TestNewBatchWorkerCommand(t *testing.T) {
	deps := DefaultBatchDeps()
	cmd := newBatchWorkerCommand(deps)

	if cmd == nil {
		t.Fatal("newBatchWorkerCommand returned nil")
	}

	if cmd.Use != "worker" {
		t.Errorf("Use = %v, want 'worker'", cmd.Use)
	}

	if cmd.RunE == nil {
		t.Error("worker command should have RunE")
	}

	if err := cmd.Args(cmd, []string{"extra"}); err == nil {
		t.Error("worker should not accept positional arguments")
	}
}

// TestBatchWorkerCommandFlags tests that the worker command flags have
// correct types and defaults.
func TestBatchWorkerCommandFlags(t *testing.T) {
	deps := DefaultBatchDeps()
	cmd := newBatchWorkerCommand(deps)

	tests := []struct {
		name         string
		flagType     string
		defaultValue string
	}{
		{"workers", "int", "4"},
		{"batch-size", "int", "1"},
		{"poll-interval", "duration", "1s"},
		{"metrics-addr", "string", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flag := cmd.Flags().Lookup(tc.name)
			if flag == nil {
				t.Fatalf("--%s flag should be registered", tc.name)
			}

			if flag.Value.Type() != tc.flagType {
				t.Errorf("--%s type = %v, want %v", tc.name, flag.Value.Type(), tc.flagType)
			}

			if flag.DefValue != tc.defaultValue {
				t.Errorf("--%s default = %v, want %v", tc.name, flag.DefValue, tc.defaultValue)
			}
		})
	}
}

// TestClassifyLoadError tests that transcript load failures map onto the
// retry categories the pool acts on.
func TestClassifyLoadError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCategory  queue.ErrorCategory
		wantCode      string
		wantRetryable bool
	}{
		{
			name:          "missing transcript is permanent",
			err:           fmt.Errorf("opening transcript: %w", os.ErrNotExist),
			wantCategory:  queue.ErrorCategoryPermanent,
			wantCode:      queue.ErrorCodeInvalidInput,
			wantRetryable: false,
		},
		{
			name:          "unknown charset is permanent",
			err:           fmt.Errorf("%w: unknown charset \"ebcdic\"", slerrors.ErrUnsupportedFormat),
			wantCategory:  queue.ErrorCategoryPermanent,
			wantCode:      queue.ErrorCodeEncoding,
			wantRetryable: false,
		},
		{
			name:          "malformed transcript is permanent",
			err:           fmt.Errorf("%w: message 3 has no role", slerrors.ErrValidation),
			wantCategory:  queue.ErrorCategoryPermanent,
			wantCode:      queue.ErrorCodeParse,
			wantRetryable: false,
		},
		{
			name:          "io failure is transient",
			err:           errors.New("read /mnt/transcripts: input/output error"),
			wantCategory:  queue.ErrorCategoryTransient,
			wantCode:      queue.ErrorCodeIO,
			wantRetryable: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			procErr := classifyLoadError(tc.err)
			if procErr == nil {
				t.Fatal("classifyLoadError returned nil")
			}

			if procErr.Category != tc.wantCategory {
				t.Errorf("Category = %v, want %v", procErr.Category, tc.wantCategory)
			}
			if procErr.Code != tc.wantCode {
				t.Errorf("Code = %v, want %v", procErr.Code, tc.wantCode)
			}
			if procErr.IsRetryable() != tc.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", procErr.IsRetryable(), tc.wantRetryable)
			}
			if !errors.Is(procErr, tc.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}
}

// TestObserveDocument tests that a built document feeds the per-kind
// annotation metrics.
func TestObserveDocument(t *testing.T) {
	registry := annotate.Registry{
		{ID: "vd-deep", Title: "Deep Dive Session"},
	}
	msgs := []annotate.RawMessage{
		{ID: "m1", Role: "user", Content: "How does resolution order work?"},
		{ID: "m2", Role: "assistant", Content: "# Findings\nSee [Deep Dive 14:03] for the walkthrough."},
	}
	doc := render.BuildDocument(msgs, registry, render.Options{})

	reg := prometheus.NewRegistry()
	metrics := observability.NewRenderMetrics(reg)
	recorder := observability.NewJobRecorder(metrics, observability.JobTypeRender)

	observeDocument(doc, recorder)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"sightline_render_messages_total":    false,
		"sightline_render_blocks_total":      false,
		"sightline_render_tokens_total":      false,
		"sightline_citations_resolved_total": false,
	}
	for _, fam := range families {
		if _, ok := expectedMetrics[fam.GetName()]; ok {
			expectedMetrics[fam.GetName()] = true
		}
	}
	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Expected metric %s not found", name)
		}
	}

	// Both messages land on the message counter, split by role.
	var messageTotal float64
	for _, fam := range families {
		if fam.GetName() != "sightline_render_messages_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			messageTotal += metric.GetCounter().GetValue()
		}
	}
	if messageTotal != 2 {
		t.Errorf("message counter total = %v, want 2", messageTotal)
	}
}
