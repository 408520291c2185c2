package annotate

import (
	"fmt"

	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

// SourceRecord is one entry in the source registry: a stable identifier
// plus a human-readable title. Titles are free text and may be truncated
// or renamed at any time, so citation resolution never assumes an exact
// title match.
type SourceRecord struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// Registry is an ordered, read-only snapshot of known sources. Order is
// significant: resolution walks it front to back and falls back to the
// first record when nothing matches.
type Registry []SourceRecord

// NewRegistry builds a registry from records, validating that every
// identifier is non-empty and unique. The engine itself never validates at
// render time; this constructor is for callers assembling registries from
// files or user input rather than the source store.
func NewRegistry(records ...SourceRecord) (Registry, error) {
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: record %d has empty id", slerrors.ErrValidation, i)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: duplicate source id %q", slerrors.ErrValidation, rec.ID)
		}
		seen[rec.ID] = true
	}
	return Registry(records), nil
}

// IDs returns the registry's identifiers in order.
func (r Registry) IDs() []string {
	ids := make([]string, len(r))
	for i, rec := range r {
		ids[i] = rec.ID
	}
	return ids
}
