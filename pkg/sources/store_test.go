package sources

import (
	"context"
	"testing"
	"time"

	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
	"github.com/sightlinehq/sightline-cli/pkg/logging"
)

func TestSourceStructure(t *testing.T) {
	src := Source{
		ID:              "vd-0001aaaa",
		Title:           "Sprint Demo March",
		URL:             "https://videos.example.com/sprint-demo",
		DurationSeconds: 1830,
		AddedAt:         time.Now(),
	}

	if src.ID != "vd-0001aaaa" {
		t.Errorf("unexpected id: %s", src.ID)
	}
	if src.DurationSeconds != 1830 {
		t.Errorf("unexpected duration: %d", src.DurationSeconds)
	}
}

func TestSourceIDOptional(t *testing.T) {
	// Imported registries may carry their own ID scheme; the struct does
	// not force a generated content ID.
	src := Source{ID: "yt:abc123", Title: "External upload"}

	if src.ID != "yt:abc123" {
		t.Errorf("unexpected id: %s", src.ID)
	}
}

func TestStoreAdd_RequiresTitle(t *testing.T) {
	store := NewStore(nil, logging.NewNopLogger())

	_, err := store.Add(context.Background(), Source{ID: "vd-0001aaaa"})
	if err == nil {
		t.Fatal("expected error for source without title")
	}
	if !slerrors.IsValidation(err) {
		t.Errorf("expected validation error, got: %v", err)
	}
}

func TestStoreRename_RequiresTitle(t *testing.T) {
	store := NewStore(nil, logging.NewNopLogger())

	err := store.Rename(context.Background(), "vd-0001aaaa", "")
	if err == nil {
		t.Fatal("expected error for empty title")
	}
	if !slerrors.IsValidation(err) {
		t.Errorf("expected validation error, got: %v", err)
	}
}
