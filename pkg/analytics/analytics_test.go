package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-icu/registry/pkg/common/models"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(models.DateTimeLayout, value)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", value, err)
	}
	return &parsed
}

func str(value string) *string {
	return &value
}

func admissions(t *testing.T, unit string, outcome string, n int) []models.PatientRecord {
	t.Helper()
	records := make([]models.PatientRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.PatientRecord{
			PatientID: "ICU-000001",
			Admission: ts(t, "2023-03-01 08:00:00"),
			Discharge: ts(t, "2023-03-04 08:00:00"),
			Unit:      str(unit),
			Outcome:   str(outcome),
		})
	}
	return records
}

func TestComputeMasksSmallGroups(t *testing.T) {
	records := append(admissions(t, "A600", "Survived", 8), admissions(t, "C604", "Died", 3)...)

	stats := New(5).Compute(records)

	if v := stats.UnitDistribution["A600"]; v.Masked() {
		t.Fatal("expected A600 count of 8 to pass")
	}
	if v := stats.UnitDistribution["C604"]; !v.Masked() {
		t.Fatal("expected C604 count of 3 to be masked")
	}
	if v := stats.OutcomeDistribution["Died"]; !v.Masked() {
		t.Fatal("expected Died count of 3 to be masked")
	}
	if stats.Metadata.SuppressionMarker != "<5" {
		t.Fatalf("unexpected marker %q", stats.Metadata.SuppressionMarker)
	}
}

func TestComputeSkipsMissingCategoricals(t *testing.T) {
	records := []models.PatientRecord{
		{PatientID: "ICU-000001", Admission: ts(t, "2023-03-01 08:00:00")},
	}
	stats := New(5).Compute(records)
	if len(stats.UnitDistribution) != 0 {
		t.Fatalf("expected no unit categories, got %+v", stats.UnitDistribution)
	}
	if stats.Metadata.TotalRecords != 1 {
		t.Fatalf("unexpected record count %d", stats.Metadata.TotalRecords)
	}
}

func TestTopCountsOrderAndBound(t *testing.T) {
	var records []models.PatientRecord
	diagnoses := []string{"Pneumonia", "Sepsis", "Trauma"}
	for i, d := range diagnoses {
		for j := 0; j < 10-i; j++ {
			records = append(records, models.PatientRecord{
				PatientID:        "ICU-000001",
				PrimaryDiagnosis: str(d),
			})
		}
	}

	a := New(5)
	a.topN = 2
	stats := a.Compute(records)

	if len(stats.TopDiagnoses) != 2 {
		t.Fatalf("expected top 2, got %d", len(stats.TopDiagnoses))
	}
	if stats.TopDiagnoses[0].Category != "Pneumonia" || stats.TopDiagnoses[1].Category != "Sepsis" {
		t.Fatalf("unexpected ranking: %+v", stats.TopDiagnoses)
	}
}

func TestOutcomeByUnitPercentagesOmittedWhenMasked(t *testing.T) {
	records := append(admissions(t, "A600", "Survived", 12), admissions(t, "A600", "Died", 2)...)

	stats := New(5).Compute(records)
	unit := stats.OutcomeByUnit["A600"]

	if unit.Counts["Died"].Masked() != true {
		t.Fatal("expected Died count masked")
	}
	if _, ok := unit.Percentages["Died"]; ok {
		t.Fatal("masked count must not carry a percentage")
	}
	if pct, ok := unit.Percentages["Survived"]; !ok || pct < 85.0 || pct > 86.0 {
		t.Fatalf("unexpected Survived percentage: %v %v", pct, ok)
	}
}

func TestMonthlyAdmissionsKeyedByMonth(t *testing.T) {
	records := append(admissions(t, "A600", "Survived", 6), models.PatientRecord{
		PatientID: "ICU-000002",
		Admission: ts(t, "2023-04-15 09:00:00"),
		Unit:      str("A600"),
	})

	stats := New(5).Compute(records)
	if v := stats.MonthlyAdmissions["2023-03"]; v.Masked() {
		t.Fatal("expected March count of 6 to pass")
	}
	if v, ok := stats.MonthlyAdmissions["2023-04"]; !ok || !v.Masked() {
		t.Fatal("expected April count of 1 to be present and masked")
	}
	if !stats.MonthlyByUnit["2023-04"]["A600"].Masked() {
		t.Fatal("expected crosstab cell masked")
	}
}

func TestLengthOfStayTrimsImplausibleStays(t *testing.T) {
	records := []models.PatientRecord{
		{PatientID: "a", Admission: ts(t, "2023-03-01 00:00:00"), Discharge: ts(t, "2023-03-03 00:00:00")},
		{PatientID: "b", Admission: ts(t, "2023-03-01 00:00:00"), Discharge: ts(t, "2023-03-05 00:00:00")},
		{PatientID: "c", Admission: ts(t, "2023-03-01 00:00:00"), Discharge: ts(t, "2023-03-07 00:00:00")},
		// 60-day stay, outside the plausible band.
		{PatientID: "d", Admission: ts(t, "2023-03-01 00:00:00"), Discharge: ts(t, "2023-04-30 00:00:00")},
		// No discharge: not counted either way.
		{PatientID: "e", Admission: ts(t, "2023-03-01 00:00:00")},
	}

	summary := lengthOfStay(records)
	if summary.RecordsUsed != 3 || summary.RecordsExcluded != 1 {
		t.Fatalf("unexpected trim accounting: %+v", summary)
	}
	if summary.MedianDays != 4.0 {
		t.Fatalf("expected median 4.0, got %v", summary.MedianDays)
	}
	if summary.MeanDays != 4.0 {
		t.Fatalf("expected mean 4.0, got %v", summary.MeanDays)
	}
	if summary.Q25Days != 3.0 || summary.Q75Days != 5.0 {
		t.Fatalf("unexpected quartiles: %+v", summary)
	}
}

func TestQuantileInterpolates(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := quantile(sorted, 0.5); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := quantile(sorted, 0); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := quantile(sorted, 1); got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
}

func TestExportWritesSuppressedFiles(t *testing.T) {
	dir := t.TempDir()
	records := append(admissions(t, "A600", "Survived", 8), admissions(t, "C604", "Died", 3)...)
	stats := New(5).Compute(records)

	if err := Export(dir, stats); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	payload, err := os.ReadFile(filepath.Join(dir, "unit_distribution.json"))
	if err != nil {
		t.Fatalf("missing component file: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["C604"] != "<5" {
		t.Fatalf("expected masked marker in export, got %v", decoded["C604"])
	}

	if _, err := os.Stat(filepath.Join(dir, "complete_statistics.json")); err != nil {
		t.Fatalf("missing complete statistics file: %v", err)
	}
}
