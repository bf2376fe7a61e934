package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/normalizer"
	"github.com/meridian-icu/registry/pkg/tabular"
)

// canonicalOrder fixes the column layout of the persisted registry.
var canonicalOrder = []string{
	models.ColPatientID,
	models.ColPatientHash,
	models.ColAdmission,
	models.ColDischarge,
	models.ColLOSHours,
	models.ColLOSDays,
	models.ColUnit,
	models.ColDiagnosis,
	models.ColSpecialty,
	models.ColAdmissionSource,
	models.ColOutcome,
	models.ColDischargeDestination,
	models.ColHospitalOutcome,
	models.ColHospitalDestination,
}

var derivedColumns = map[string]struct{}{
	models.ColLOSHours: {},
	models.ColLOSDays:  {},
}

func isCanonical(name string) bool {
	for _, c := range canonicalOrder {
		if c == name {
			return true
		}
	}
	return false
}

// BatchFromTable converts a normalized, anonymized table into structured
// records. Empty cells become nil fields; unknown columns land in Extra.
// Derived length-of-stay columns are ignored on the way in, they are
// recomputed from the timestamps on the way out.
func BatchFromTable(table *tabular.Table) models.RecordBatch {
	batch := models.RecordBatch{Columns: make([]string, 0, len(table.Columns))}
	for _, col := range table.Columns {
		if _, derived := derivedColumns[col]; derived {
			continue
		}
		batch.Columns = append(batch.Columns, col)
	}
	batch.Records = make([]models.PatientRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		batch.Records = append(batch.Records, recordFromRow(row, table.Columns))
	}
	return batch
}

func recordFromRow(row tabular.Row, columns []string) models.PatientRecord {
	record := models.PatientRecord{
		PatientID:   strings.TrimSpace(row[models.ColPatientID]),
		PatientHash: strings.TrimSpace(row[models.ColPatientHash]),
	}

	// Unparsable timestamp cells degrade to missing, matching the
	// normalizer's parse-anomaly policy.
	if ts, err := normalizer.ParseCell(row[models.ColAdmission]); err == nil {
		record.Admission = ts
	}
	if ts, err := normalizer.ParseCell(row[models.ColDischarge]); err == nil {
		record.Discharge = ts
	}

	record.Unit = cellPtr(row[models.ColUnit])
	record.PrimaryDiagnosis = cellPtr(row[models.ColDiagnosis])
	record.Specialty = cellPtr(row[models.ColSpecialty])
	record.AdmissionSource = cellPtr(row[models.ColAdmissionSource])
	record.Outcome = cellPtr(row[models.ColOutcome])
	record.DischargeDestination = cellPtr(row[models.ColDischargeDestination])
	record.HospitalOutcome = cellPtr(row[models.ColHospitalOutcome])
	record.HospitalDestination = cellPtr(row[models.ColHospitalDestination])

	for _, col := range columns {
		if isCanonical(col) {
			continue
		}
		if _, derived := derivedColumns[col]; derived {
			continue
		}
		if value := strings.TrimSpace(row[col]); value != "" {
			if record.Extra == nil {
				record.Extra = make(map[string]string)
			}
			record.Extra[col] = value
		}
	}
	return record
}

func cellPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// ToTable flattens the registry for persistence: canonical columns first,
// derived length of stay, then source-specific extras in sorted order.
func (r *Registry) ToTable() *tabular.Table {
	extraSet := make(map[string]struct{})
	for _, record := range r.records {
		for k := range record.Extra {
			extraSet[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	table := tabular.New(append(append([]string(nil), canonicalOrder...), extras...)...)
	for _, record := range r.records {
		row := tabular.Row{
			models.ColPatientID:   record.PatientID,
			models.ColPatientHash: record.PatientHash,
		}
		if record.Admission != nil {
			row[models.ColAdmission] = record.Admission.Format(models.DateTimeLayout)
		}
		if record.Discharge != nil {
			row[models.ColDischarge] = record.Discharge.Format(models.DateTimeLayout)
		}
		if hours, ok := record.LengthOfStayHours(); ok {
			row[models.ColLOSHours] = fmt.Sprintf("%.2f", hours)
		}
		if days, ok := record.LengthOfStayDays(); ok {
			row[models.ColLOSDays] = fmt.Sprintf("%.2f", days)
		}
		putCell(row, models.ColUnit, record.Unit)
		putCell(row, models.ColDiagnosis, record.PrimaryDiagnosis)
		putCell(row, models.ColSpecialty, record.Specialty)
		putCell(row, models.ColAdmissionSource, record.AdmissionSource)
		putCell(row, models.ColOutcome, record.Outcome)
		putCell(row, models.ColDischargeDestination, record.DischargeDestination)
		putCell(row, models.ColHospitalOutcome, record.HospitalOutcome)
		putCell(row, models.ColHospitalDestination, record.HospitalDestination)
		for k, v := range record.Extra {
			row[k] = v
		}
		table.Append(row)
	}
	return table
}

func putCell(row tabular.Row, col string, value *string) {
	if value != nil {
		row[col] = *value
	}
}
