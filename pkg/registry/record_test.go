package registry

import (
	"testing"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/tabular"
)

func TestBatchFromTable(t *testing.T) {
	table := tabular.New(
		models.ColPatientID, models.ColPatientHash, models.ColAdmission,
		models.ColDischarge, models.ColUnit, "apache_score",
	)
	table.Append(tabular.Row{
		models.ColPatientID:   "ICU-000001",
		models.ColPatientHash: "abc",
		models.ColAdmission:   "2023-01-05 10:00:00",
		models.ColDischarge:   "2023-01-08 10:00:00",
		models.ColUnit:        "A600",
		"apache_score":        "17",
	})
	table.Append(tabular.Row{
		models.ColPatientID:   "ICU-000002",
		models.ColPatientHash: "def",
		models.ColAdmission:   "garbage",
	})

	batch := BatchFromTable(table)
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch.Records))
	}

	first := batch.Records[0]
	if first.Admission == nil || first.Discharge == nil {
		t.Fatal("expected parsed timestamps")
	}
	if hours, ok := first.LengthOfStayHours(); !ok || hours != 72 {
		t.Fatalf("expected 72h length of stay, got %v (%v)", hours, ok)
	}
	if first.Extra["apache_score"] != "17" {
		t.Fatalf("expected extra column preserved, got %v", first.Extra)
	}

	second := batch.Records[1]
	if second.Admission != nil {
		t.Fatal("unparsable timestamp cell must degrade to missing")
	}
}

func TestBatchFromTableSkipsDerivedColumns(t *testing.T) {
	table := tabular.New(
		models.ColPatientID, models.ColAdmission, models.ColDischarge,
		models.ColLOSHours, models.ColLOSDays,
	)
	table.Append(tabular.Row{
		models.ColPatientID: "ICU-000001",
		models.ColAdmission: "2023-01-05 10:00:00",
		models.ColDischarge: "2023-01-07 10:00:00",
		models.ColLOSHours:  "48.00",
		models.ColLOSDays:   "2.00",
	})

	batch := BatchFromTable(table)
	for _, col := range batch.Columns {
		if col == models.ColLOSHours || col == models.ColLOSDays {
			t.Fatalf("derived column %q must not survive into the batch", col)
		}
	}
	if hours, ok := batch.Records[0].LengthOfStayHours(); !ok || hours != 48 {
		t.Fatalf("expected recomputed 48h length of stay, got %v (%v)", hours, ok)
	}
}

func TestRegistryTableRoundTrip(t *testing.T) {
	reg := New()
	if _, err := reg.Merge(admissionBatch(), StrategyUpdate); err != nil {
		t.Fatalf("seed merge failed: %v", err)
	}

	table := reg.ToTable()
	if !table.HasColumn(models.ColLOSHours) || !table.HasColumn(models.ColLOSDays) {
		t.Fatal("expected derived length-of-stay columns in output")
	}

	reloaded := Load(table)
	if reloaded.Len() != reg.Len() {
		t.Fatalf("round trip changed record count: %d vs %d", reloaded.Len(), reg.Len())
	}
	if reloaded.UniquePatients() != reg.UniquePatients() {
		t.Fatal("round trip changed patient count")
	}

	snap := reloaded.Snapshot()
	if snap.Records[0].PatientID != "ICU-000001" || *snap.Records[0].Unit != "A600" {
		t.Fatal("round trip lost field values")
	}
}
