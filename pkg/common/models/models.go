package models

import (
	"time"
)

// Canonical registry schema. Source files arrive with arbitrary column
// names; the normalizer maps them onto these before anything downstream
// runs.
const (
	ColPatientID            = "anonymous_patient_id"
	ColPatientHash          = "patient_id_hash"
	ColAdmission            = "admission_datetime"
	ColDischarge            = "discharge_datetime"
	ColLOSHours             = "los_hours"
	ColLOSDays              = "los_days"
	ColUnit                 = "icu_unit"
	ColDiagnosis            = "primary_diagnosis"
	ColSpecialty            = "specialty"
	ColAdmissionSource      = "admission_source"
	ColOutcome              = "icu_outcome"
	ColDischargeDestination = "icu_discharge_destination"
	ColHospitalOutcome      = "hospital_outcome"
	ColHospitalDestination  = "hospital_discharge_destination"
)

// Cell layouts written by the normalizer and parsed back by the registry.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Controlled vocabularies.
var (
	ValidUnits    = []string{"A600", "C604", "WICU"}
	ValidOutcomes = []string{"Survived", "Died"}
)

// PatientRecord is one admission episode in the master registry. Optional
// fields are pointers: nil means the value is legitimately absent. Extra
// carries source-specific columns that are not part of the canonical
// schema; empty-string values there also mean absent.
type PatientRecord struct {
	PatientID            string            `json:"anonymous_patient_id"`
	PatientHash          string            `json:"patient_id_hash"`
	Admission            *time.Time        `json:"admission_datetime,omitempty"`
	Discharge            *time.Time        `json:"discharge_datetime,omitempty"`
	Unit                 *string           `json:"icu_unit,omitempty"`
	PrimaryDiagnosis     *string           `json:"primary_diagnosis,omitempty"`
	Specialty            *string           `json:"specialty,omitempty"`
	AdmissionSource      *string           `json:"admission_source,omitempty"`
	Outcome              *string           `json:"icu_outcome,omitempty"`
	DischargeDestination *string           `json:"icu_discharge_destination,omitempty"`
	HospitalOutcome      *string           `json:"hospital_outcome,omitempty"`
	HospitalDestination  *string           `json:"hospital_discharge_destination,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
}

// LengthOfStayHours derives length of stay from the admission and
// discharge timestamps. Derived on demand so merge updates can never leave
// a stale stored value behind.
func (r PatientRecord) LengthOfStayHours() (float64, bool) {
	if r.Admission == nil || r.Discharge == nil {
		return 0, false
	}
	return r.Discharge.Sub(*r.Admission).Hours(), true
}

func (r PatientRecord) LengthOfStayDays() (float64, bool) {
	hours, ok := r.LengthOfStayHours()
	if !ok {
		return 0, false
	}
	return hours / 24, true
}

func (r PatientRecord) Clone() PatientRecord {
	clone := r
	clone.Admission = cloneTime(r.Admission)
	clone.Discharge = cloneTime(r.Discharge)
	clone.Unit = cloneString(r.Unit)
	clone.PrimaryDiagnosis = cloneString(r.PrimaryDiagnosis)
	clone.Specialty = cloneString(r.Specialty)
	clone.AdmissionSource = cloneString(r.AdmissionSource)
	clone.Outcome = cloneString(r.Outcome)
	clone.DischargeDestination = cloneString(r.DischargeDestination)
	clone.HospitalOutcome = cloneString(r.HospitalOutcome)
	clone.HospitalDestination = cloneString(r.HospitalDestination)
	if r.Extra != nil {
		clone.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			clone.Extra[k] = v
		}
	}
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

// RecordBatch is a validated unit of ingestion: the structured records plus
// the canonical column names actually present in the source after mapping.
// An absent column and an all-null column are different validation
// findings, so presence is tracked explicitly.
type RecordBatch struct {
	Columns []string        `json:"columns"`
	Records []PatientRecord `json:"records"`
}

func (b RecordBatch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Validation report severities.
const (
	SeverityError   = "ERROR"
	SeverityWarning = "WARNING"
)

type Issue struct {
	Check         string   `json:"check"`
	Severity      string   `json:"severity"`
	Message       string   `json:"message"`
	Detail        string   `json:"detail,omitempty"`
	PatientIDs    []string `json:"patient_ids,omitempty"`
	InvalidValues []string `json:"invalid_values,omitempty"`
}

type FieldCompleteness struct {
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
}

type ValidationReport struct {
	Timestamp      time.Time                    `json:"timestamp"`
	RecordCount    int                          `json:"record_count"`
	UniquePatients int                          `json:"unique_patients"`
	Issues         []Issue                      `json:"issues"`
	Warnings       []Issue                      `json:"warnings"`
	Completeness   map[string]FieldCompleteness `json:"completeness"`
}

// Passed reports whether no ERROR-severity findings were raised. Warnings
// never fail a run.
func (r ValidationReport) Passed() bool {
	return len(r.Issues) == 0
}

// ProcessingLogEntry is one line of the append-only ingestion audit log.
type ProcessingLogEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	File             string    `json:"file"`
	Rows             int       `json:"rows"`
	IdentifierColumn string    `json:"identifier_column"`
}

// AnonymizationStats is the shareable summary of the identity mapping.
// The mapping itself never leaves resolver memory.
type AnonymizationStats struct {
	TotalUniquePatients int       `json:"total_unique_patients"`
	LastSurrogateID     string    `json:"last_anonymous_id"`
	Timestamp           time.Time `json:"timestamp"`
}

// Event is the audit-event envelope published to the event bus after each
// ingested file and at pipeline completion.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
