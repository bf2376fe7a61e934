package registry

import (
	"errors"
	"fmt"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/tabular"
)

// Strategy governs how surrogate IDs that already exist in the master are
// reconciled when a new batch arrives.
type Strategy string

const (
	// StrategyUpdate overwrites fields of the first matching existing row
	// with non-missing incoming values; missing incoming values never
	// overwrite present data.
	StrategyUpdate Strategy = "update"
	// StrategyAppendNew skips rows whose surrogate ID is already in the
	// master. Use when recurring IDs mean stale duplicates.
	StrategyAppendNew Strategy = "append"
	// StrategyAppendAll always adds incoming rows. The caller asserts the
	// batch holds genuinely independent admission episodes.
	StrategyAppendAll Strategy = "append-all"
)

var (
	// ErrPatientIDColumnMissing is a precondition violation: a batch
	// without the surrogate-ID column cannot be merged.
	ErrPatientIDColumnMissing = errors.New("anonymous_patient_id column missing from batch")
	ErrUnknownStrategy        = errors.New("unknown merge strategy")
)

// Registry is the master admission registry: one row per episode, keyed
// logically (not uniquely) by surrogate patient ID, exclusively owned by
// a single pipeline instance. Records are only ever added; individual
// field values may be overwritten by an update merge. Merges are
// all-or-nothing: the incoming batch is applied to a copy which replaces
// the master only on success.
type Registry struct {
	records []models.PatientRecord
	columns []string
}

func New() *Registry {
	return &Registry{}
}

// Load rebuilds a registry from a previously persisted table.
func Load(table *tabular.Table) *Registry {
	batch := BatchFromTable(table)
	reg := New()
	reg.adopt(batch)
	return reg
}

func (r *Registry) Len() int {
	return len(r.records)
}

func (r *Registry) UniquePatients() int {
	seen := make(map[string]struct{}, len(r.records))
	for _, record := range r.records {
		if record.PatientID != "" {
			seen[record.PatientID] = struct{}{}
		}
	}
	return len(seen)
}

// Snapshot exposes the current registry state for validation and
// analytics. Callers must treat the returned records as read-only.
func (r *Registry) Snapshot() models.RecordBatch {
	return models.RecordBatch{
		Columns: append([]string(nil), r.columns...),
		Records: r.records,
	}
}

// MergeResult summarizes one merge for logging and audit events.
type MergeResult struct {
	NewPatients      int `json:"new_patients"`
	ExistingPatients int `json:"existing_patients"`
	RowsAdded        int `json:"rows_added"`
	TotalRecords     int `json:"total_records"`
}

// Merge combines a validated, anonymized batch into the master registry.
// The first merge into an empty registry adopts the batch wholesale.
// Untouched rows keep their order and content; row order is insertion
// order across batches. Applying the same batch twice with StrategyUpdate
// leaves the registry unchanged.
func (r *Registry) Merge(batch models.RecordBatch, strategy Strategy) (MergeResult, error) {
	if !batch.HasColumn(models.ColPatientID) {
		return MergeResult{}, ErrPatientIDColumnMissing
	}
	switch strategy {
	case StrategyUpdate, StrategyAppendNew, StrategyAppendAll:
	default:
		return MergeResult{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	if len(r.records) == 0 {
		r.adopt(batch)
		return MergeResult{
			NewPatients:  r.UniquePatients(),
			RowsAdded:    len(batch.Records),
			TotalRecords: len(r.records),
		}, nil
	}

	updated := make([]models.PatientRecord, len(r.records))
	firstIndex := make(map[string]int, len(r.records))
	for i, record := range r.records {
		updated[i] = record.Clone()
		if record.PatientID != "" {
			if _, seen := firstIndex[record.PatientID]; !seen {
				firstIndex[record.PatientID] = i
			}
		}
	}

	result := MergeResult{}
	newIDs := make(map[string]struct{})
	updatedIDs := make(map[string]struct{})

	for _, incoming := range batch.Records {
		id := incoming.PatientID
		idx, exists := firstIndex[id]

		switch {
		case id == "" || !exists:
			// First appearance of this surrogate ID in any batch: always
			// appended, regardless of strategy.
			updated = append(updated, incoming.Clone())
			if id != "" {
				newIDs[id] = struct{}{}
			}
			result.RowsAdded++
		case strategy == StrategyAppendAll:
			updated = append(updated, incoming.Clone())
			result.RowsAdded++
		case strategy == StrategyAppendNew:
			// Recurring ID: stale duplicate, dropped.
		case strategy == StrategyUpdate:
			// Only the first incoming row per surrogate ID drives the
			// update; later duplicates in the same batch are ignored.
			if _, done := updatedIDs[id]; done {
				continue
			}
			overlay(&updated[idx], incoming)
			updatedIDs[id] = struct{}{}
		}
	}

	// firstIndex deliberately does not learn IDs first seen in this
	// batch: every row of a truly-new surrogate ID is appended, matching
	// the all-rows-kept semantics of the initial adoption.
	result.NewPatients = len(newIDs)
	result.ExistingPatients = len(updatedIDs)

	r.records = updated
	r.mergeColumns(batch.Columns)
	result.TotalRecords = len(r.records)
	return result, nil
}

// overlay writes every non-missing incoming field over the destination
// row. Missing (nil or empty) incoming values never clobber present data:
// last non-missing value wins, per field, independently.
func overlay(dst *models.PatientRecord, src models.PatientRecord) {
	if src.PatientHash != "" {
		dst.PatientHash = src.PatientHash
	}
	if src.Admission != nil {
		admission := *src.Admission
		dst.Admission = &admission
	}
	if src.Discharge != nil {
		discharge := *src.Discharge
		dst.Discharge = &discharge
	}
	overlayString(&dst.Unit, src.Unit)
	overlayString(&dst.PrimaryDiagnosis, src.PrimaryDiagnosis)
	overlayString(&dst.Specialty, src.Specialty)
	overlayString(&dst.AdmissionSource, src.AdmissionSource)
	overlayString(&dst.Outcome, src.Outcome)
	overlayString(&dst.DischargeDestination, src.DischargeDestination)
	overlayString(&dst.HospitalOutcome, src.HospitalOutcome)
	overlayString(&dst.HospitalDestination, src.HospitalDestination)
	for k, v := range src.Extra {
		if v == "" {
			continue
		}
		if dst.Extra == nil {
			dst.Extra = make(map[string]string)
		}
		dst.Extra[k] = v
	}
}

func overlayString(dst **string, src *string) {
	if src != nil && *src != "" {
		value := *src
		*dst = &value
	}
}

func (r *Registry) adopt(batch models.RecordBatch) {
	r.records = make([]models.PatientRecord, 0, len(batch.Records))
	for _, record := range batch.Records {
		r.records = append(r.records, record.Clone())
	}
	r.mergeColumns(batch.Columns)
}

func (r *Registry) mergeColumns(columns []string) {
	known := make(map[string]struct{}, len(r.columns))
	for _, c := range r.columns {
		known[c] = struct{}{}
	}
	for _, c := range columns {
		if _, ok := known[c]; !ok {
			r.columns = append(r.columns, c)
			known[c] = struct{}{}
		}
	}
}
