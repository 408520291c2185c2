// Package ledger records completed render runs in PostgreSQL. It backs
// `sightline batch history` and is entirely optional: without a configured
// DSN no client is created and callers skip recording.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

// maxErrorLen caps stored error messages.
const maxErrorLen = 500

// Config holds ledger connection settings.
type Config struct {
	// DSN is the PostgreSQL connection string. Empty disables the ledger.
	DSN string `yaml:"dsn"`

	// Labels are stamped on every entry that does not carry its own.
	Labels []string `yaml:"labels"`
}

// IsConfigured reports whether the ledger can be used.
func (c *Config) IsConfigured() bool {
	return c != nil && c.DSN != ""
}

// Entry is one completed render run.
type Entry struct {
	ID             int64     `json:"id"`
	JobID          string    `json:"job_id"`
	TranscriptPath string    `json:"transcript_path"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	Messages       int       `json:"messages"`
	Citations      int       `json:"citations"`
	Resolved       int       `json:"resolved"`
	Fallback       int       `json:"fallback"`
	DurationMs     int64     `json:"duration_ms"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Labels         []string  `json:"labels,omitempty"`
	Hostname       string    `json:"hostname,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Client provides render ledger operations.
type Client struct {
	db     *sql.DB
	labels []string
}

// NewClient creates a ledger client from configuration.
func NewClient(cfg *Config) (*Client, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("ledger not configured")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// The ledger sees one short write per job; keep the pool tiny.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db, labels: cfg.Labels}, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS render_ledger (
			id              BIGSERIAL PRIMARY KEY,
			job_id          TEXT NOT NULL,
			transcript_path TEXT NOT NULL,
			fingerprint     TEXT,
			messages        INTEGER NOT NULL DEFAULT 0,
			citations       INTEGER NOT NULL DEFAULT 0,
			resolved        INTEGER NOT NULL DEFAULT 0,
			fallback        INTEGER NOT NULL DEFAULT 0,
			duration_ms     BIGINT NOT NULL DEFAULT 0,
			success         BOOLEAN NOT NULL,
			error_message   TEXT,
			labels          TEXT[],
			hostname        TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_render_ledger_created_at
			ON render_ledger (created_at DESC);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Record writes one run to the ledger. Missing hostname and labels fall
// back to the client defaults; error messages are truncated to keep rows
// bounded.
func (c *Client) Record(ctx context.Context, entry *Entry) error {
	hostname := entry.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	labels := entry.Labels
	if len(labels) == 0 {
		labels = c.labels
	}

	query := `
		INSERT INTO render_ledger (
			job_id, transcript_path, fingerprint,
			messages, citations, resolved, fallback,
			duration_ms, success, error_message, labels, hostname
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := c.db.ExecContext(ctx, query,
		entry.JobID,
		entry.TranscriptPath,
		nullIfEmpty(entry.Fingerprint),
		entry.Messages,
		entry.Citations,
		entry.Resolved,
		entry.Fallback,
		entry.DurationMs,
		entry.Success,
		nullIfEmpty(truncate(entry.ErrorMessage, maxErrorLen)),
		nullIfEmptyArray(labels),
		nullIfEmpty(hostname),
	)
	if err != nil {
		return fmt.Errorf("recording render run: %w", err)
	}

	return nil
}

// ListRecent retrieves the most recent runs, newest first.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job_id, transcript_path, fingerprint,
		       messages, citations, resolved, fallback,
		       duration_ms, success, error_message,
		       COALESCE(labels, '{}'), hostname, created_at
		FROM render_ledger
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var fingerprint, errorMsg, hostname sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.JobID,
			&e.TranscriptPath,
			&fingerprint,
			&e.Messages,
			&e.Citations,
			&e.Resolved,
			&e.Fallback,
			&e.DurationMs,
			&e.Success,
			&errorMsg,
			pq.Array(&e.Labels),
			&hostname,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}

		e.Fingerprint = fingerprint.String
		e.ErrorMessage = errorMsg.String
		e.Hostname = hostname.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger rows: %w", err)
	}

	return entries, nil
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// nullIfEmpty returns nil if s is empty, otherwise returns s.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullIfEmptyArray returns nil if the slice is empty or nil.
func nullIfEmptyArray(s []string) interface{} {
	if len(s) == 0 {
		return nil
	}
	return pq.Array(s)
}
