// Package cmd provides CLI commands for the sightline tool.
package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sightlinehq/sightline-cli/config"
	"github.com/sightlinehq/sightline-cli/pkg/render"
)

// TestNewRenderCommand tests that the render command is created correctly.
func TestNewRenderCommand(t *testing.T) {
	deps := DefaultRenderDeps()
	cmd := NewRenderCommand(deps)

	if cmd == nil {
		t.Fatal("NewRenderCommand returned nil")
	}

	if cmd.Use != "render <transcript>" {
		t.Errorf("Use = %v, want 'render <transcript>'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description should not be empty")
	}

	if cmd.Long == "" {
		t.Error("Long description should not be empty")
	}

	if cmd.RunE == nil {
		t.Error("render command should have RunE function defined")
	}

	// Test that command requires exactly one argument
	if err := cmd.Args(cmd, []string{}); err == nil {
		t.Error("Command should require an argument")
	}

	if err := cmd.Args(cmd, []string{"session.jsonl"}); err != nil {
		t.Errorf("Command should accept one argument: %v", err)
	}

	if err := cmd.Args(cmd, []string{"a.jsonl", "b.jsonl"}); err == nil {
		t.Error("Command should not accept two arguments")
	}
}

// TestRenderCommandFlags tests that all expected flags have correct types and defaults.
func TestRenderCommandFlags(t *testing.T) {
	deps := DefaultRenderDeps()
	cmd := NewRenderCommand(deps)

	tests := []struct {
		name         string
		flagType     string
		defaultValue string
	}{
		{"sources", "string", ""},
		{"filter", "string", ""},
		{"charset", "string", ""},
		{"width", "int", "0"},
		{"color", "string", ""},
		{"out", "string", ""},
		{"links", "bool", "false"},
		{"stats", "bool", "false"},
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

	// Verify shorthand for output flag
	if cmd.Flags().ShorthandLookup("o") == nil {
		t.Error("-o shorthand should be registered for output flag")
	}
}

// TestRenderDepsInterface tests that RenderCommandDeps has the expected structure.
func TestRenderDepsInterface(t *testing.T) {
	deps := DefaultRenderDeps()

	if deps == nil {
		t.Fatal("DefaultRenderDeps returned nil")
	}

	if deps.LoadConfig == nil {
		t.Error("LoadConfig function should be set in default deps")
	}

	if deps.Config != nil {
		t.Error("Config should be nil until command execution")
	}
}

// ==================== Execution Tests ====================

// writeRenderFixture lays out a transcript and sources file in dir.
func writeRenderFixture(t *testing.T, dir string) (transcriptPath, sourcesPath string) {
	t.Helper()

	transcriptPath = filepath.Join(dir, "session.jsonl")
	transcriptData := `{"id":"m1","role":"user","content":"What did the deep dive cover?"}
{"id":"m2","role":"assistant","content":"# Findings\nSee [Deep Dive 14:03] for the walkthrough."}
`
	if err := os.WriteFile(transcriptPath, []byte(transcriptData), 0644); err != nil {
		t.Fatalf("writing transcript fixture: %v", err)
	}

	sourcesPath = filepath.Join(dir, "sources.yaml")
	sourcesData := `sources:
  - id: vd-deep
    title: Deep Dive Session
    url: https://example.com/deep-dive
    duration_seconds: 1800
`
	if err := os.WriteFile(sourcesPath, []byte(sourcesData), 0644); err != nil {
		t.Fatalf("writing sources fixture: %v", err)
	}

	return transcriptPath, sourcesPath
}

// stubRenderDeps builds deps that load a default config without touching
// the user's config file.
func stubRenderDeps() *RenderCommandDeps {
	return &RenderCommandDeps{
		LoadConfig: func() (*config.CLIConfig, error) {
			return config.DefaultConfig(), nil
		},
	}
}

// TestRunRenderWritesTextOutput renders a fixture transcript to a file and
// checks the resolved citation appears in the output.
func TestRunRenderWritesTextOutput(t *testing.T) {
	dir := t.TempDir()
	transcriptPath, sourcesPath := writeRenderFixture(t, dir)
	outPath := filepath.Join(dir, "session.out")

	cmd := NewRenderCommand(stubRenderDeps())
	cmd.SetArgs([]string{transcriptPath, "--sources", sourcesPath, "--out", outPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("render command failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading rendered output: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "Findings") {
		t.Error("rendered output should contain the heading text")
	}
	if !strings.Contains(text, "Deep Dive (14:03)") {
		t.Errorf("rendered output should contain the resolved citation marker, got:\n%s", text)
	}
	if strings.Contains(text, "\033[") {
		t.Error("file output should not contain ANSI escapes")
	}
}

// TestRunRenderJSONDocument renders the document form and checks its
// structure round-trips.
func TestRunRenderJSONDocument(t *testing.T) {
	dir := t.TempDir()
	transcriptPath, sourcesPath := writeRenderFixture(t, dir)
	outPath := filepath.Join(dir, "session.json")

	cmd := NewRenderCommand(stubRenderDeps())
	cmd.SetArgs([]string{transcriptPath, "--sources", sourcesPath, "--out", outPath, "-o", "json"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("render command failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading rendered output: %v", err)
	}

	var doc render.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not a valid document: %v", err)
	}

	if len(doc.Messages) != 2 {
		t.Errorf("document messages = %d, want 2", len(doc.Messages))
	}
	if doc.Stats.Citations != 1 {
		t.Errorf("document citations = %d, want 1", doc.Stats.Citations)
	}
	if doc.Stats.Resolved != 1 {
		t.Errorf("document resolved = %d, want 1", doc.Stats.Resolved)
	}

	cites := doc.Messages[1].Citations
	if len(cites) != 1 {
		t.Fatalf("assistant message citations = %d, want 1", len(cites))
	}
	if cites[0].SourceID != "vd-deep" {
		t.Errorf("citation source = %v, want 'vd-deep'", cites[0].SourceID)
	}
	if cites[0].AbsoluteSeconds != 14*60+3 {
		t.Errorf("citation offset = %d, want %d", cites[0].AbsoluteSeconds, 14*60+3)
	}
	if !strings.Contains(cites[0].Link, "vd-deep") || !strings.Contains(cites[0].Link, "t=843") {
		t.Errorf("citation link = %v, want sightline deep link with t=843", cites[0].Link)
	}
}

// TestRunRenderAppliesFilter checks that --filter narrows the rendered
// messages.
func TestRunRenderAppliesFilter(t *testing.T) {
	dir := t.TempDir()
	transcriptPath, sourcesPath := writeRenderFixture(t, dir)
	outPath := filepath.Join(dir, "filtered.json")

	cmd := NewRenderCommand(stubRenderDeps())
	cmd.SetArgs([]string{transcriptPath,
		"--sources", sourcesPath,
		"--out", outPath,
		"--filter", "role:assistant",
		"-o", "json",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("render command failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading rendered output: %v", err)
	}

	var doc render.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not a valid document: %v", err)
	}

	if len(doc.Messages) != 1 {
		t.Fatalf("filtered messages = %d, want 1", len(doc.Messages))
	}
	if doc.Messages[0].Role != "assistant" {
		t.Errorf("filtered role = %v, want 'assistant'", doc.Messages[0].Role)
	}
}

// TestRunRenderRejectsBadFilter checks that an invalid filter fails
// before any rendering happens.
func TestRunRenderRejectsBadFilter(t *testing.T) {
	dir := t.TempDir()
	transcriptPath, sourcesPath := writeRenderFixture(t, dir)

	cmd := NewRenderCommand(stubRenderDeps())
	cmd.SetArgs([]string{transcriptPath,
		"--sources", sourcesPath,
		"--filter", "role:",
	})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Error("render should reject an invalid filter expression")
	}
}

// TestRunRenderMissingTranscript checks the error path for a missing file.
func TestRunRenderMissingTranscript(t *testing.T) {
	cmd := NewRenderCommand(stubRenderDeps())
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.jsonl")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err == nil {
		t.Error("render should fail for a missing transcript")
	}
}
