package sources

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sightlinehq/sightline-cli/pkg/annotate"
	slerrors "github.com/sightlinehq/sightline-cli/pkg/errors"
)

// registryFile is the on-disk shape of a sources file.
type registryFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadFile reads a YAML sources file. Order in the file is registry order.
func LoadFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: sources file %s", slerrors.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading sources file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing sources file %s: %v", slerrors.ErrValidation, path, err)
	}

	if err := validate(file.Sources); err != nil {
		return nil, fmt.Errorf("sources file %s: %w", path, err)
	}

	return file.Sources, nil
}

// SaveFile writes a YAML sources file, creating parent directories as needed.
func SaveFile(path string, list []Source) error {
	if err := validate(list); err != nil {
		return err
	}

	data, err := yaml.Marshal(&registryFile{Sources: list})
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating sources directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing sources file: %w", err)
	}

	return nil
}

// Registry converts a source list into the registry view the resolver
// consumes, preserving order.
func Registry(list []Source) annotate.Registry {
	registry := make(annotate.Registry, 0, len(list))
	for _, src := range list {
		registry = append(registry, annotate.SourceRecord{ID: src.ID, Title: src.Title})
	}
	return registry
}

func validate(list []Source) error {
	seen := make(map[string]bool, len(list))
	for i, src := range list {
		if src.ID == "" {
			return fmt.Errorf("%w: source %d has no id", slerrors.ErrValidation, i)
		}
		if src.Title == "" {
			return fmt.Errorf("%w: source %q has no title", slerrors.ErrValidation, src.ID)
		}
		if seen[src.ID] {
			return fmt.Errorf("%w: duplicate source id %q", slerrors.ErrValidation, src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}
