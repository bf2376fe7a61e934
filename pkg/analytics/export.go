package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Export writes the statistics set into dir: one JSON file per component
// for downstream consumers that want a single aggregate, plus
// complete_statistics.json with everything. All inputs are already
// suppressed, so every file here is safe to publish.
func Export(dir string, stats Statistics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating aggregates directory: %w", err)
	}

	components := map[string]interface{}{
		"unit_distribution.json":      stats.UnitDistribution,
		"outcome_distribution.json":   stats.OutcomeDistribution,
		"top_diagnoses.json":          stats.TopDiagnoses,
		"top_specialties.json":        stats.TopSpecialties,
		"admission_sources.json":      stats.AdmissionSources,
		"discharge_destinations.json": stats.DischargeDestinations,
		"monthly_admissions.json":     stats.MonthlyAdmissions,
		"monthly_by_unit.json":        stats.MonthlyByUnit,
		"outcome_by_unit.json":        stats.OutcomeByUnit,
		"length_of_stay.json":         stats.LengthOfStay,
		"complete_statistics.json":    stats,
	}

	for name, payload := range components {
		if err := writeJSON(filepath.Join(dir, name), payload); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, payload interface{}) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
