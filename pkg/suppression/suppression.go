package suppression

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultThreshold is the standard small-cell disclosure threshold.
const DefaultThreshold = 5

// Value is a count that has passed through the suppression filter. A
// masked Value carries no residual count: zero and threshold-1 are
// indistinguishable in every representation this type can produce.
type Value struct {
	count     int
	masked    bool
	threshold int
}

// Mask applies the disclosure rule to a single count. Thresholds below 1
// fall back to the default rather than disabling suppression.
func Mask(count, threshold int) Value {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if count < threshold {
		return Value{masked: true, threshold: threshold}
	}
	return Value{count: count, threshold: threshold}
}

// Count returns the value when it is publishable. Masked values report
// ok=false and a zero count.
func (v Value) Count() (int, bool) {
	if v.masked {
		return 0, false
	}
	return v.count, true
}

func (v Value) Masked() bool {
	return v.masked
}

func (v Value) String() string {
	if v.masked {
		return fmt.Sprintf("<%d", v.threshold)
	}
	return strconv.Itoa(v.count)
}

// MarshalJSON emits the count as a JSON number, or the masked marker as a
// JSON string (e.g. "<5").
func (v Value) MarshalJSON() ([]byte, error) {
	if v.masked {
		return []byte(strconv.Quote(v.String())), nil
	}
	return []byte(strconv.Itoa(v.count)), nil
}

// UnmarshalJSON accepts both representations so cached aggregates can be
// decoded back. A masked marker restores its threshold from the marker
// text.
func (v *Value) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		threshold, err := strconv.Atoi(strings.TrimPrefix(marker, "<"))
		if err != nil || !strings.HasPrefix(marker, "<") {
			return fmt.Errorf("invalid suppression marker %q", marker)
		}
		*v = Value{masked: true, threshold: threshold}
		return nil
	}

	count, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid suppressed count %q: %w", string(data), err)
	}
	*v = Value{count: count, threshold: DefaultThreshold}
	return nil
}

// Counts masks a flat category→count aggregate.
func Counts(counts map[string]int, threshold int) map[string]Value {
	masked := make(map[string]Value, len(counts))
	for category, count := range counts {
		masked[category] = Mask(count, threshold)
	}
	return masked
}

// Table masks a two-dimensional row×column tabulation, per cell,
// independently of row and column totals. Complementary suppression
// across marginals is deliberately not attempted; consumers must not
// publish unsuppressed marginal totals next to a masked cell.
func Table(cells map[string]map[string]int, threshold int) map[string]map[string]Value {
	masked := make(map[string]map[string]Value, len(cells))
	for row, cols := range cells {
		masked[row] = Counts(cols, threshold)
	}
	return masked
}
