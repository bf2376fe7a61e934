package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-icu/registry/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository archives pipeline outputs to Postgres for audit: registry
// snapshots, processing-log entries and validation reports. The archive is
// optional; the CSV registry on disk remains the system of record. The
// raw-identifier mapping is never written here, only surrogate IDs and
// digests.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type RecordModel struct {
	ID                   string            `gorm:"primaryKey;column:id"`
	RunID                string            `gorm:"column:run_id;index"`
	PatientID            string            `gorm:"column:anonymous_patient_id;index"`
	PatientHash          string            `gorm:"column:patient_id_hash"`
	Admission            *time.Time        `gorm:"column:admission_datetime"`
	Discharge            *time.Time        `gorm:"column:discharge_datetime"`
	Unit                 *string           `gorm:"column:icu_unit"`
	PrimaryDiagnosis     *string           `gorm:"column:primary_diagnosis"`
	Specialty            *string           `gorm:"column:specialty"`
	AdmissionSource      *string           `gorm:"column:admission_source"`
	Outcome              *string           `gorm:"column:icu_outcome"`
	DischargeDestination *string           `gorm:"column:icu_discharge_destination"`
	HospitalOutcome      *string           `gorm:"column:hospital_outcome"`
	HospitalDestination  *string           `gorm:"column:hospital_discharge_destination"`
	Extra                datatypes.JSONMap `gorm:"column:extra;type:jsonb"`
	CreatedAt            time.Time         `gorm:"column:created_at"`
}

func (RecordModel) TableName() string {
	return "registry_snapshots"
}

type ProcessingLogModel struct {
	ID               string    `gorm:"primaryKey;column:id"`
	RunID            string    `gorm:"column:run_id;index"`
	Timestamp        time.Time `gorm:"column:timestamp"`
	File             string    `gorm:"column:file"`
	Rows             int       `gorm:"column:rows"`
	IdentifierColumn string    `gorm:"column:identifier_column"`
}

func (ProcessingLogModel) TableName() string {
	return "processing_log"
}

type ValidationReportModel struct {
	ID             string            `gorm:"primaryKey;column:id"`
	RunID          string            `gorm:"column:run_id;index"`
	RecordCount    int               `gorm:"column:record_count"`
	UniquePatients int               `gorm:"column:unique_patients"`
	IssueCount     int               `gorm:"column:issue_count"`
	WarningCount   int               `gorm:"column:warning_count"`
	Report         datatypes.JSONMap `gorm:"column:report;type:jsonb"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
}

func (ValidationReportModel) TableName() string {
	return "validation_reports"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{}, &ProcessingLogModel{}, &ValidationReportModel{})
}

// ArchiveSnapshot writes the full registry state under a run ID.
func (r *Repository) ArchiveSnapshot(ctx context.Context, runID string, reg *Registry) error {
	snap := reg.Snapshot()
	rows := make([]RecordModel, 0, len(snap.Records))
	now := time.Now().UTC()
	for _, record := range snap.Records {
		extra := make(datatypes.JSONMap, len(record.Extra))
		for k, v := range record.Extra {
			extra[k] = v
		}
		rows = append(rows, RecordModel{
			ID:                   uuid.New().String(),
			RunID:                runID,
			PatientID:            record.PatientID,
			PatientHash:          record.PatientHash,
			Admission:            record.Admission,
			Discharge:            record.Discharge,
			Unit:                 record.Unit,
			PrimaryDiagnosis:     record.PrimaryDiagnosis,
			Specialty:            record.Specialty,
			AdmissionSource:      record.AdmissionSource,
			Outcome:              record.Outcome,
			DischargeDestination: record.DischargeDestination,
			HospitalOutcome:      record.HospitalOutcome,
			HospitalDestination:  record.HospitalDestination,
			Extra:                extra,
			CreatedAt:            now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

func (r *Repository) SaveProcessingLog(ctx context.Context, runID string, entries []models.ProcessingLogEntry) error {
	rows := make([]ProcessingLogModel, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, ProcessingLogModel{
			ID:               uuid.New().String(),
			RunID:            runID,
			Timestamp:        entry.Timestamp,
			File:             entry.File,
			Rows:             entry.Rows,
			IdentifierColumn: entry.IdentifierColumn,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *Repository) SaveValidationReport(ctx context.Context, runID string, report models.ValidationReport) error {
	payload := datatypes.JSONMap{
		"timestamp":       report.Timestamp,
		"record_count":    report.RecordCount,
		"unique_patients": report.UniquePatients,
		"issues":          report.Issues,
		"warnings":        report.Warnings,
		"completeness":    report.Completeness,
	}
	row := ValidationReportModel{
		ID:             uuid.New().String(),
		RunID:          runID,
		RecordCount:    report.RecordCount,
		UniquePatients: report.UniquePatients,
		IssueCount:     len(report.Issues),
		WarningCount:   len(report.Warnings),
		Report:         payload,
		CreatedAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}
