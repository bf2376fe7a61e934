package validator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meridian-icu/registry/pkg/common/models"
)

// WriteReport persists a validation report as indented JSON alongside the
// registry for external review.
func WriteReport(path string, report models.ValidationReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding validation report: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("writing validation report: %w", err)
	}
	return nil
}
