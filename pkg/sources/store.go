// Package sources manages the registry of video sources that transcript
// citations resolve against. The registry lives either in PostgreSQL (Store)
// or in a YAML file (LoadFile/SaveFile) for installs without a database.
package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	"github.com/sightlinehq/sightline-cli/pkg/contentid"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
)

// Source is a registered video source. ID is opaque to the annotation
// engine; sources added through the CLI get a generated vd- content ID,
// imported registries may carry their own scheme.
type Source struct {
	ID              string    `json:"id" yaml:"id"`
	Title           string    `json:"title" yaml:"title"`
	URL             string    `json:"url,omitempty" yaml:"url,omitempty"`
	DurationSeconds int       `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	AddedAt         time.Time `json:"added_at,omitempty" yaml:"added_at,omitempty"`
}

// Store provides database operations for the source registry.
// Registry order is insertion order, which the resolver's index-0 fallback
// depends on, so rows carry a position column.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewStore creates a new source registry store.
func NewStore(pool *pgxpool.Pool, logger logging.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger.With(logging.F("component", "source_store")),
	}
}

// EnsureSchema creates the sources table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sources (
			position         BIGSERIAL PRIMARY KEY,
			id               TEXT NOT NULL UNIQUE,
			title            TEXT NOT NULL,
			url              TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			added_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure sources schema: %w", err)
	}
	return nil
}

// Add inserts a new source. An empty ID gets a generated vd- content ID.
// Returns the stored source, including the generated ID and added_at.
func (s *Store) Add(ctx context.Context, src Source) (*Source, error) {
	if src.Title == "" {
		return nil, fmt.Errorf("%w: source title is required", slerrors.ErrValidation)
	}
	if src.ID == "" {
		src.ID = contentid.New(contentid.TypeVideo)
	}

	exists, err := s.exists(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: source %q", slerrors.ErrAlreadyExists, src.ID)
	}

	query := `
		INSERT INTO sources (id, title, url, duration_seconds)
		VALUES ($1, $2, $3, $4)
		RETURNING added_at
	`

	err = s.pool.QueryRow(ctx, query,
		src.ID,
		src.Title,
		src.URL,
		src.DurationSeconds,
	).Scan(&src.AddedAt)

	if err != nil {
		s.logger.Error("Failed to add source",
			logging.Err(err),
			logging.F("source_id", src.ID))
		return nil, fmt.Errorf("failed to add source: %w", err)
	}

	s.logger.Debug("Source added",
		logging.F("source_id", src.ID),
		logging.F("title", src.Title))

	return &src, nil
}

// Get retrieves a source by ID.
func (s *Store) Get(ctx context.Context, id string) (*Source, error) {
	query := `
		SELECT id, title, url, duration_seconds, added_at
		FROM sources
		WHERE id = $1
	`

	src := &Source{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&src.ID,
		&src.Title,
		&src.URL,
		&src.DurationSeconds,
		&src.AddedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: source %q", slerrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %q: %w", id, err)
	}

	return src, nil
}

// List returns all sources in registry order.
func (s *Store) List(ctx context.Context) ([]Source, error) {
	query := `
		SELECT id, title, url, duration_seconds, added_at
		FROM sources
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var list []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Title, &src.URL, &src.DurationSeconds, &src.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		list = append(list, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}

	return list, nil
}

// Remove deletes a source by ID.
func (s *Store) Remove(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove source %q: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: source %q", slerrors.ErrNotFound, id)
	}

	s.logger.Debug("Source removed", logging.F("source_id", id))
	return nil
}

// Rename updates the title of a source. Citations resolve against titles,
// so a rename changes what matches from the next annotate run onward.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	if title == "" {
		return fmt.Errorf("%w: source title is required", slerrors.ErrValidation)
	}

	result, err := s.pool.Exec(ctx, `UPDATE sources SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("failed to rename source %q: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: source %q", slerrors.ErrNotFound, id)
	}

	s.logger.Debug("Source renamed",
		logging.F("source_id", id),
		logging.F("title", title))
	return nil
}

// Registry loads the registry view the resolver consumes: id and title
// per source, in insertion order.
func (s *Store) Registry(ctx context.Context) (annotate.Registry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title FROM sources ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	defer rows.Close()

	var registry annotate.Registry
	for rows.Next() {
		var rec annotate.SourceRecord
		if err := rows.Scan(&rec.ID, &rec.Title); err != nil {
			return nil, fmt.Errorf("failed to scan registry record: %w", err)
		}
		registry = append(registry, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registry: %w", err)
	}

	return registry, nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM sources WHERE id = $1 LIMIT 1`, id).Scan(&one)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source existence: %w", err)
	}

	return true, nil
}
