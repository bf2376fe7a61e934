package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/meridian-icu/registry/pkg/normalizer"
	"github.com/meridian-icu/registry/pkg/registry"
)

// Source describes one input file: where it is, which column carries the
// raw identifier, how its columns map onto the canonical schema, and how
// its rows merge into the master registry.
type Source struct {
	Path             string            `yaml:"path" json:"path"`
	IdentifierColumn string            `yaml:"identifier_column" json:"identifier_column"`
	ColumnMapping    map[string]string `yaml:"column_mapping" json:"column_mapping"`
	DateFields       map[string]string `yaml:"date_fields" json:"date_fields"`
	Strategy         string            `yaml:"strategy" json:"strategy"`
	// AllowErrors merges the file even when validation raises errors,
	// downgrading them to logged warnings. For extracts where a few bad
	// rows must not drop the rest of the file.
	AllowErrors bool `yaml:"allow_errors" json:"allow_errors"`
}

type Manifest struct {
	Sources []Source `yaml:"sources" json:"sources"`
}

// LoadManifest reads and validates the source manifest. Sources are
// processed in manifest order, so update files must be listed after the
// files that introduce the patients they update.
func LoadManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(content, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}

	if len(manifest.Sources) == 0 {
		return Manifest{}, errors.New("no sources configured")
	}
	for i := range manifest.Sources {
		if err := manifest.Sources[i].validate(); err != nil {
			return Manifest{}, fmt.Errorf("source %d: %w", i, err)
		}
	}
	return manifest, nil
}

func (s *Source) validate() error {
	if s.Path == "" {
		return errors.New("path is required")
	}
	if s.IdentifierColumn == "" {
		return errors.New("identifier_column is required")
	}
	if s.Strategy == "" {
		s.Strategy = string(registry.StrategyUpdate)
	}
	switch registry.Strategy(s.Strategy) {
	case registry.StrategyUpdate, registry.StrategyAppendNew, registry.StrategyAppendAll:
	default:
		return fmt.Errorf("unknown strategy %q", s.Strategy)
	}
	for field, kind := range s.DateFields {
		switch normalizer.DateKind(kind) {
		case normalizer.KindDate, normalizer.KindDateTime:
		default:
			return fmt.Errorf("date field %q: unknown kind %q", field, kind)
		}
	}
	return nil
}

// dateKinds converts the manifest's string kinds to normalizer kinds.
func (s *Source) dateKinds() map[string]normalizer.DateKind {
	kinds := make(map[string]normalizer.DateKind, len(s.DateFields))
	for field, kind := range s.DateFields {
		kinds[field] = normalizer.DateKind(kind)
	}
	return kinds
}
