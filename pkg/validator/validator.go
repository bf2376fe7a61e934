package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-icu/registry/pkg/common/models"
)

const (
	// Fields above this null percentage raise a completeness warning,
	// unless allow-listed as legitimately sparse.
	nullWarnThreshold = 50.0
	// At most this many offending surrogate IDs are attached to an issue
	// for diagnostics.
	sampleLimit = 5
)

// Validator runs data-quality checks over a record batch. It never
// mutates the batch and never blocks anything itself: it produces a
// report for the caller to act on.
type Validator struct {
	validUnits        map[string]struct{}
	validOutcomes     map[string]struct{}
	completenessAllow map[string]struct{}
	now               func() time.Time
}

func New() *Validator {
	return &Validator{
		validUnits:    toSet(models.ValidUnits),
		validOutcomes: toSet(models.ValidOutcomes),
		completenessAllow: toSet([]string{
			// Hospital-level outcome fields are legitimately absent while
			// the patient is still in-hospital.
			models.ColHospitalOutcome,
			models.ColHospitalDestination,
		}),
		now: time.Now,
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}

// Validate runs every check, every time; checks are independent and
// findings accumulate rather than aborting the batch.
func (v *Validator) Validate(batch models.RecordBatch) models.ValidationReport {
	report := models.ValidationReport{
		Timestamp:      v.now().UTC(),
		RecordCount:    len(batch.Records),
		UniquePatients: uniquePatients(batch.Records),
		Issues:         []models.Issue{},
		Warnings:       []models.Issue{},
	}

	v.checkRequiredColumns(batch, &report)
	v.checkDateLogic(batch, &report)
	v.checkNullPatientIDs(batch, &report)
	v.checkDuplicatePatients(batch, &report)
	v.checkCategoricalValues(batch, &report)
	report.Completeness = v.checkCompleteness(batch, &report)

	return report
}

func (v *Validator) checkRequiredColumns(batch models.RecordBatch, report *models.ValidationReport) {
	var missing []string
	for _, required := range []string{models.ColPatientID, models.ColAdmission} {
		if !batch.HasColumn(required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		report.Issues = append(report.Issues, models.Issue{
			Check:    "required_columns",
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		})
	}
}

func (v *Validator) checkDateLogic(batch models.RecordBatch, report *models.ValidationReport) {
	var invalid, future int
	var sample []string
	now := v.now()

	for _, record := range batch.Records {
		if record.Admission != nil && record.Discharge != nil && record.Discharge.Before(*record.Admission) {
			invalid++
			if len(sample) < sampleLimit {
				sample = append(sample, record.PatientID)
			}
		}
		if record.Admission != nil && record.Admission.After(now) {
			future++
		}
	}

	if invalid > 0 {
		report.Issues = append(report.Issues, models.Issue{
			Check:      "date_logic",
			Severity:   models.SeverityError,
			Message:    fmt.Sprintf("%d records with discharge before admission", invalid),
			PatientIDs: sample,
		})
	}
	if future > 0 {
		report.Warnings = append(report.Warnings, models.Issue{
			Check:    "future_dates",
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("%d records with future admission dates", future),
		})
	}
}

func (v *Validator) checkNullPatientIDs(batch models.RecordBatch, report *models.ValidationReport) {
	nulls := 0
	for _, record := range batch.Records {
		if strings.TrimSpace(record.PatientID) == "" {
			nulls++
		}
	}
	if nulls > 0 {
		report.Issues = append(report.Issues, models.Issue{
			Check:    "null_patient_ids",
			Severity: models.SeverityError,
			Message:  fmt.Sprintf("%d records with null patient IDs", nulls),
		})
	}
}

func (v *Validator) checkDuplicatePatients(batch models.RecordBatch, report *models.ValidationReport) {
	seen := make(map[string]struct{}, len(batch.Records))
	duplicates := 0
	for _, record := range batch.Records {
		if record.PatientID == "" {
			continue
		}
		if _, ok := seen[record.PatientID]; ok {
			duplicates++
			continue
		}
		seen[record.PatientID] = struct{}{}
	}
	if duplicates > 0 {
		report.Warnings = append(report.Warnings, models.Issue{
			Check:    "duplicate_patients",
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("found %d duplicate patient records", duplicates),
			Detail:   "multiple admissions per patient are expected",
		})
	}
}

// checkCategoricalValues flags controlled-vocabulary violations. Unit
// violations are errors because unit drives routing and capacity logic;
// outcome violations only inform statistics and are warnings.
func (v *Validator) checkCategoricalValues(batch models.RecordBatch, report *models.ValidationReport) {
	invalidUnits := collectInvalid(batch.Records, func(r models.PatientRecord) *string { return r.Unit }, v.validUnits)
	if len(invalidUnits.values) > 0 {
		report.Issues = append(report.Issues, models.Issue{
			Check:         "icu_unit_values",
			Severity:      models.SeverityError,
			Message:       fmt.Sprintf("%d records with invalid ICU unit", invalidUnits.count),
			InvalidValues: invalidUnits.values,
		})
	}

	invalidOutcomes := collectInvalid(batch.Records, func(r models.PatientRecord) *string { return r.Outcome }, v.validOutcomes)
	if len(invalidOutcomes.values) > 0 {
		report.Warnings = append(report.Warnings, models.Issue{
			Check:         "icu_outcome_values",
			Severity:      models.SeverityWarning,
			Message:       fmt.Sprintf("%d records with non-standard outcome values", invalidOutcomes.count),
			InvalidValues: invalidOutcomes.values,
		})
	}
}

type invalidValues struct {
	count  int
	values []string
}

func collectInvalid(records []models.PatientRecord, field func(models.PatientRecord) *string, valid map[string]struct{}) invalidValues {
	result := invalidValues{}
	seen := make(map[string]struct{})
	for _, record := range records {
		value := field(record)
		if value == nil || strings.TrimSpace(*value) == "" {
			continue
		}
		if _, ok := valid[*value]; ok {
			continue
		}
		result.count++
		if _, dup := seen[*value]; !dup {
			seen[*value] = struct{}{}
			result.values = append(result.values, *value)
		}
	}
	return result
}

func (v *Validator) checkCompleteness(batch models.RecordBatch, report *models.ValidationReport) map[string]models.FieldCompleteness {
	completeness := make(map[string]models.FieldCompleteness, len(batch.Columns))
	total := len(batch.Records)

	for _, col := range batch.Columns {
		nulls := 0
		for _, record := range batch.Records {
			if _, ok := fieldValue(record, col); !ok {
				nulls++
			}
		}
		pct := 0.0
		if total > 0 {
			pct = float64(nulls) / float64(total) * 100
		}
		completeness[col] = models.FieldCompleteness{
			NullCount:      nulls,
			NullPercentage: pct,
		}

		if pct > nullWarnThreshold {
			if _, allowed := v.completenessAllow[col]; !allowed {
				report.Warnings = append(report.Warnings, models.Issue{
					Check:    "completeness",
					Severity: models.SeverityWarning,
					Message:  fmt.Sprintf("column %q is %.1f%% null", col, pct),
				})
			}
		}
	}
	return completeness
}

// fieldValue resolves a canonical or extra column against a record,
// reporting whether a non-missing value is present.
func fieldValue(record models.PatientRecord, col string) (string, bool) {
	switch col {
	case models.ColPatientID:
		return present(record.PatientID)
	case models.ColPatientHash:
		return present(record.PatientHash)
	case models.ColAdmission:
		if record.Admission == nil {
			return "", false
		}
		return record.Admission.Format(models.DateTimeLayout), true
	case models.ColDischarge:
		if record.Discharge == nil {
			return "", false
		}
		return record.Discharge.Format(models.DateTimeLayout), true
	case models.ColUnit:
		return presentPtr(record.Unit)
	case models.ColDiagnosis:
		return presentPtr(record.PrimaryDiagnosis)
	case models.ColSpecialty:
		return presentPtr(record.Specialty)
	case models.ColAdmissionSource:
		return presentPtr(record.AdmissionSource)
	case models.ColOutcome:
		return presentPtr(record.Outcome)
	case models.ColDischargeDestination:
		return presentPtr(record.DischargeDestination)
	case models.ColHospitalOutcome:
		return presentPtr(record.HospitalOutcome)
	case models.ColHospitalDestination:
		return presentPtr(record.HospitalDestination)
	default:
		return present(record.Extra[col])
	}
}

func present(value string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func presentPtr(value *string) (string, bool) {
	if value == nil {
		return "", false
	}
	return present(*value)
}

func uniquePatients(records []models.PatientRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if record.PatientID != "" {
			seen[record.PatientID] = struct{}{}
		}
	}
	return len(seen)
}
