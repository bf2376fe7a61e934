package suppression

import (
	"encoding/json"
	"testing"
)

func TestMaskBelowThreshold(t *testing.T) {
	for _, count := range []int{0, 1, 4} {
		v := Mask(count, 5)
		if !v.Masked() {
			t.Fatalf("expected count %d to be masked", count)
		}
		if got, ok := v.Count(); ok || got != 0 {
			t.Fatalf("masked value leaked count: %d, %v", got, ok)
		}
		if v.String() != "<5" {
			t.Fatalf("expected marker <5, got %q", v.String())
		}
	}
}

func TestMaskedValuesAreIndistinguishable(t *testing.T) {
	zero := Mask(0, 5)
	four := Mask(4, 5)
	if zero != four {
		t.Fatal("a masked 0 and a masked 4 must be indistinguishable")
	}
}

func TestMaskAtThresholdPasses(t *testing.T) {
	v := Mask(5, 5)
	if v.Masked() {
		t.Fatal("count equal to threshold must pass")
	}
	if got, ok := v.Count(); !ok || got != 5 {
		t.Fatalf("unexpected count: %d, %v", got, ok)
	}
}

func TestCountsJSON(t *testing.T) {
	masked := Counts(map[string]int{"Survived": 12, "Died": 3}, 5)
	payload, err := json.Marshal(masked)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["Survived"] != float64(12) {
		t.Fatalf("expected numeric 12, got %v", decoded["Survived"])
	}
	if decoded["Died"] != "<5" {
		t.Fatalf("expected masked marker, got %v", decoded["Died"])
	}
}

func TestTableMasksPerCell(t *testing.T) {
	cells := map[string]map[string]int{
		"2023-01": {"A600": 12, "C604": 2},
		"2023-02": {"A600": 4, "C604": 9},
	}
	masked := Table(cells, 5)

	if masked["2023-01"]["A600"].Masked() {
		t.Fatal("expected 12 to pass")
	}
	if !masked["2023-01"]["C604"].Masked() || !masked["2023-02"]["A600"].Masked() {
		t.Fatal("expected small cells masked independently")
	}
	if masked["2023-02"]["C604"].Masked() {
		t.Fatal("expected 9 to pass")
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	original := Counts(map[string]int{"Survived": 12, "Died": 3}, 5)
	payload, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var restored map[string]Value
	if err := json.Unmarshal(payload, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got, ok := restored["Survived"].Count(); !ok || got != 12 {
		t.Fatalf("unexpected restored count: %d, %v", got, ok)
	}
	if !restored["Died"].Masked() || restored["Died"].String() != "<5" {
		t.Fatalf("expected masked marker to survive, got %q", restored["Died"].String())
	}
}

func TestMaskFallsBackToDefaultThreshold(t *testing.T) {
	v := Mask(3, 0)
	if !v.Masked() || v.String() != "<5" {
		t.Fatalf("expected default threshold, got %q", v.String())
	}
}
