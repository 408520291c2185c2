package cmd

import (
	"path/filepath"
	"testing"

	"github.com/sightlinehq/sightline-cli/pkg/render/queue"
)

// TestNewBatchCommand tests that the batch command is created correctly.
func TestNewBatchCommand(t *testing.T) {
	deps := DefaultBatchDeps()
	cmd := NewBatchCommand(deps)

	if cmd == nil {
		t.Fatal("NewBatchCommand returned nil")
	}

	if cmd.Use != "batch" {
		t.Errorf("Use = %v, want 'batch'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description should not be empty")
	}

	// Verify subcommands are registered by name
	found := map[string]bool{
		"submit": false, "worker": false, "status": false,
		"retry": false, "history": false,
	}
	for _, sub := range cmd.Commands() {
		found[sub.Name()] = true
	}
	for name, ok := range found {
		if !ok {
			t.Errorf("%s subcommand should be registered", name)
		}
	}
}

// TestBatchSubmitCommandFlags tests that the submit command flags have
// correct types and defaults.
func TestBatchSubmitCommandFlags(t *testing.T) {
	deps := DefaultBatchDeps()
	cmd := newBatchSubmitCommand(deps)

	tests := []struct {
		name         string
		flagType     string
		defaultValue string
	}{
		{"priority", "string", "normal"},
		{"filter", "string", ""},
		{"charset", "string", ""},
		{"sources", "string", ""},
		{"format", "string", "text"},
		{"output-dir", "string", ""},
		{"verify", "bool", "false"},
		{"output", "string", ""},
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

// TestBatchCommandFlagDefaults tests the remaining subcommands' flag defaults.
func TestBatchCommandFlagDefaults(t *testing.T) {
	deps := DefaultBatchDeps()

	status := newBatchStatusCommand(deps)
	if flag := status.Flags().Lookup("dead-letters"); flag == nil {
		t.Error("status --dead-letters flag should be registered")
	} else if flag.Value.Type() != "int" || flag.DefValue != "0" {
		t.Errorf("status --dead-letters = %v/%v, want int/0", flag.Value.Type(), flag.DefValue)
	}

	retry := newBatchRetryCommand(deps)
	if flag := retry.Flags().Lookup("max"); flag == nil {
		t.Error("retry --max flag should be registered")
	} else if flag.Value.Type() != "int" || flag.DefValue != "100" {
		t.Errorf("retry --max = %v/%v, want int/100", flag.Value.Type(), flag.DefValue)
	}

	history := newBatchHistoryCommand(deps)
	if flag := history.Flags().Lookup("limit"); flag == nil {
		t.Error("history --limit flag should be registered")
	} else if flag.Value.Type() != "int" || flag.DefValue != "20" {
		t.Errorf("history --limit = %v/%v, want int/20", flag.Value.Type(), flag.DefValue)
	}
}

// TestBatchSubmitCommandArgs tests the submit argument contract.
func TestBatchSubmitCommandArgs(t *testing.T) {
	deps := DefaultBatchDeps()
	cmd := newBatchSubmitCommand(deps)

	if err := cmd.Args(cmd, []string{"a.jsonl"}); err != nil {
		t.Errorf("submit should accept one transcript: %v", err)
	}
	if err := cmd.Args(cmd, []string{"a.jsonl", "b.jsonl", "c.jsonl"}); err != nil {
		t.Errorf("submit should accept multiple transcripts: %v", err)
	}
	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("submit should require at least one transcript")
	}
}

// TestBatchDepsInterface tests that BatchCommandDeps has the expected structure.
func TestBatchDepsInterface(t *testing.T) {
	deps := DefaultBatchDeps()

	if deps == nil {
		t.Fatal("DefaultBatchDeps returned nil")
	}

	if deps.LoadConfig == nil {
		t.Error("LoadConfig function should be set in default deps")
	}

	if deps.Config != nil {
		t.Error("Config should be nil until command execution")
	}
}

// ==================== Helper Tests ====================

func TestParsePriority(t *testing.T) {
	tests := []struct {
		value   string
		want    queue.Priority
		wantErr bool
	}{
		{"low", queue.PriorityLow, false},
		{"normal", queue.PriorityNormal, false},
		{"", queue.PriorityNormal, false},
		{"high", queue.PriorityHigh, false},
		{"HIGH", queue.PriorityHigh, false},
		{"urgent", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			got, err := parsePriority(tc.value)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePriority(%q) should fail", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePriority(%q) failed: %v", tc.value, err)
			}
			if got != tc.want {
				t.Errorf("parsePriority(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestRenderOutputPath(t *testing.T) {
	tests := []struct {
		name           string
		transcriptPath string
		outputDir      string
		format         string
		want           string
	}{
		{
			name:           "text beside transcript",
			transcriptPath: filepath.Join("/data", "exports", "session.jsonl"),
			format:         "text",
			want:           filepath.Join("/data", "exports", "session.render.txt"),
		},
		{
			name:           "json into output dir",
			transcriptPath: filepath.Join("/data", "exports", "session.jsonl"),
			outputDir:      filepath.Join("/data", "rendered"),
			format:         "json",
			want:           filepath.Join("/data", "rendered", "session.render.json"),
		},
		{
			name:           "extensionless transcript",
			transcriptPath: filepath.Join("/data", "session"),
			format:         "text",
			want:           filepath.Join("/data", "session.render.txt"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := renderOutputPath(tc.transcriptPath, tc.outputDir, tc.format)
			if got != tc.want {
				t.Errorf("renderOutputPath() = %v, want %v", got, tc.want)
			}
		})
	}
}
