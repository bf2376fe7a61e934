package registry

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/meridian-icu/registry/pkg/common/models"
)

func ts(value string) *time.Time {
	parsed, err := time.Parse(models.DateTimeLayout, value)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func str(value string) *string {
	return &value
}

func admissionBatch() models.RecordBatch {
	return models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColPatientHash, models.ColAdmission, models.ColUnit},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000001", PatientHash: "h1", Admission: ts("2023-01-05 10:00:00"), Unit: str("A600")},
			{PatientID: "ICU-000002", PatientHash: "h2", Admission: ts("2023-01-06 11:00:00"), Unit: str("C604")},
			{PatientID: "ICU-000001", PatientHash: "h1", Admission: ts("2023-02-01 09:00:00"), Unit: str("WICU")},
		},
	}
}

func TestMergeAdoptsFirstBatch(t *testing.T) {
	reg := New()
	result, err := reg.Merge(admissionBatch(), StrategyUpdate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", reg.Len())
	}
	if reg.UniquePatients() != 2 {
		t.Fatalf("expected 2 unique patients, got %d", reg.UniquePatients())
	}
	if result.RowsAdded != 3 {
		t.Fatalf("expected 3 rows added, got %d", result.RowsAdded)
	}
}

func TestMergeUpdateOverwritesFirstMatchingRow(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	incoming := models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColOutcome},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000002", Outcome: str("Survived")},
		},
	}
	result, err := reg.Merge(incoming, StrategyUpdate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RowsAdded != 0 || result.ExistingPatients != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if reg.Len() != 3 {
		t.Fatalf("row count changed: %d", reg.Len())
	}

	snap := reg.Snapshot()
	if snap.Records[1].Outcome == nil || *snap.Records[1].Outcome != "Survived" {
		t.Fatal("expected outcome to be written to the existing row")
	}
	if snap.Records[1].Unit == nil || *snap.Records[1].Unit != "C604" {
		t.Fatal("expected untouched field to survive the update")
	}
}

func TestMergeUpdateNullSafety(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	incoming := models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColUnit, models.ColOutcome},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000001", Outcome: str("Died")}, // Unit missing
		},
	}
	if _, err := reg.Merge(incoming, StrategyUpdate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := reg.Snapshot()
	if snap.Records[0].Unit == nil || *snap.Records[0].Unit != "A600" {
		t.Fatal("missing incoming value must not overwrite present data")
	}
	if snap.Records[0].Outcome == nil || *snap.Records[0].Outcome != "Died" {
		t.Fatal("non-missing incoming value must overwrite")
	}
	// Second row for ICU-000001 is untouched by update merges.
	if snap.Records[2].Outcome != nil {
		t.Fatal("update must only touch the first matching row")
	}
}

func TestMergeUpdateIsIdempotent(t *testing.T) {
	reg := New()
	batch := admissionBatch()
	if _, err := reg.Merge(batch, StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}
	once := reg.Snapshot()
	onceRecords := make([]models.PatientRecord, len(once.Records))
	for i, r := range once.Records {
		onceRecords[i] = r.Clone()
	}

	if _, err := reg.Merge(batch, StrategyUpdate); err != nil {
		t.Fatalf("second merge failed: %v", err)
	}
	twice := reg.Snapshot()

	if len(twice.Records) != len(onceRecords) {
		t.Fatalf("row count changed on reapply: %d vs %d", len(twice.Records), len(onceRecords))
	}
	if !reflect.DeepEqual(onceRecords, twice.Records) {
		t.Fatal("reapplying the same batch with update must be a no-op")
	}
}

func TestMergeAppendSkipsExistingIDs(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	incoming := models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColUnit},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000001", Unit: str("C604")},
			{PatientID: "ICU-000003", Unit: str("WICU")},
		},
	}
	result, err := reg.Merge(incoming, StrategyAppendNew)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RowsAdded != 1 || result.NewPatients != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if reg.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", reg.Len())
	}
	// The recurring ID's existing row is untouched.
	snap := reg.Snapshot()
	if *snap.Records[0].Unit != "A600" {
		t.Fatal("append must not modify existing rows")
	}
}

func TestMergeAppendAllAddsIndependentEpisodes(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	incoming := models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColAdmission},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000002", Admission: ts("2023-03-01 08:00:00")},
		},
	}
	if _, err := reg.Merge(incoming, StrategyAppendAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 4 {
		t.Fatalf("expected new episode appended, got %d records", reg.Len())
	}
}

func TestMergeNonDestructive(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}
	before := reg.Len()

	incoming := models.RecordBatch{
		Columns: []string{models.ColPatientID, models.ColOutcome},
		Records: []models.PatientRecord{
			{PatientID: "ICU-000099", Outcome: str("Survived")},
		},
	}
	if _, err := reg.Merge(incoming, StrategyUpdate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() < before {
		t.Fatal("merge must never lose accepted records")
	}

	// Rows whose surrogate ID is absent from the batch are unchanged.
	snap := reg.Snapshot()
	want := admissionBatch().Records[0]
	if !reflect.DeepEqual(snap.Records[0], want) {
		t.Fatal("untouched row was modified by merge")
	}
}

func TestMergeRequiresPatientIDColumn(t *testing.T) {
	reg := New()
	batch := models.RecordBatch{
		Columns: []string{models.ColAdmission},
		Records: []models.PatientRecord{{}},
	}
	_, err := reg.Merge(batch, StrategyUpdate)
	if !errors.Is(err, ErrPatientIDColumnMissing) {
		t.Fatalf("expected ErrPatientIDColumnMissing, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatal("failed merge must leave the registry untouched")
	}
}

func TestMergeRejectsUnknownStrategy(t *testing.T) {
	reg := New()
	_, err := reg.Merge(admissionBatch(), Strategy("merge-harder"))
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}
