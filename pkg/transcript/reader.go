// Package transcript loads chat transcripts from disk and filters their
// messages. Transcripts arrive either as JSONL exports (one message object
// per line) or as plain text from legacy tooling, possibly in a non-UTF-8
// charset.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

// Transcript formats.
const (
	FormatJSONL = "jsonl"
	FormatText  = "text"
)

// maxLineBytes caps one JSONL line. Messages embed whole rendered turns,
// so lines run large; 10MB covers every export seen so far.
const maxLineBytes = 10 * 1024 * 1024

// Transcript is one loaded transcript file ready for annotation.
type Transcript struct {
	ID          string                `json:"id"`
	Path        string                `json:"path"`
	Format      string                `json:"format"` // "jsonl", "text"
	Messages    []annotate.RawMessage `json:"messages"`
	Fingerprint string                `json:"fingerprint"`
}

// ReadMessages parses JSONL transcript content: one message object per
// line, blank lines skipped. Messages without an id get a positional one
// (m1, m2, ...) so downstream labels and the render ledger stay stable.
func ReadMessages(r io.Reader) ([]annotate.RawMessage, error) {
	scanner := bufio.NewScanner(r)
	// increase buffer for potentially large message lines
	scanner.Buffer(make([]byte, 0, 256*1024), maxLineBytes)

	var messages []annotate.RawMessage
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg annotate.RawMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", slerrors.ErrValidation, lineNo, err)
		}
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("m%d", len(messages)+1)
		}
		messages = append(messages, msg)
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line %d exceeds %d bytes", slerrors.ErrValidation, lineNo+1, maxLineBytes)
		}
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return messages, nil
}

// ReadPlainText wraps an entire plain-text body as a single assistant
// message, the shape legacy exports arrive in.
func ReadPlainText(r io.Reader) ([]annotate.RawMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return []annotate.RawMessage{
		{ID: "m1", Role: annotate.RoleAssistant, Content: string(data)},
	}, nil
}

// Load reads a transcript file, picking the format from the extension
// (.jsonl is message-per-line JSON, everything else plain text).
func Load(path string) (*Transcript, error) {
	return LoadWithCharset(path, "")
}

// LoadWithCharset is Load with an explicit source charset. Empty or
// "utf-8" means the bytes are used as-is.
func LoadWithCharset(path, charset string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}

	if charset != "" {
		data, err = DecodeBytes(data, charset)
		if err != nil {
			return nil, err
		}
	}

	t := &Transcript{
		ID:          contentid.New(contentid.TypeTranscript),
		Path:        path,
		Fingerprint: Fingerprint(data),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		t.Format = FormatJSONL
		t.Messages, err = ReadMessages(strings.NewReader(string(data)))
	default:
		t.Format = FormatText
		t.Messages, err = ReadPlainText(strings.NewReader(string(data)))
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Fingerprint returns the hex SHA-256 of the transcript bytes. Batch jobs
// carry it so a re-submitted file can be recognised across runs.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
