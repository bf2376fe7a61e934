package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/suppression"
)

const (
	defaultTopN = 10
	monthLayout = "2006-01"

	// Stays outside this band are treated as data errors and excluded
	// from length-of-stay statistics.
	maxPlausibleLOSDays = 30.0
)

// Analyzer computes publishable aggregate statistics over the registry.
// Every count it emits has passed through the small-cell suppression
// filter; raw counts never appear in its output.
type Analyzer struct {
	threshold int
	topN      int
	now       func() time.Time
}

func New(threshold int) *Analyzer {
	if threshold < 1 {
		threshold = suppression.DefaultThreshold
	}
	return &Analyzer{threshold: threshold, topN: defaultTopN, now: time.Now}
}

// Statistics is the complete aggregate output for one registry state.
type Statistics struct {
	Metadata              Metadata                               `json:"metadata"`
	UnitDistribution      map[string]suppression.Value           `json:"unit_distribution"`
	OutcomeDistribution   map[string]suppression.Value           `json:"outcome_distribution"`
	TopDiagnoses          []RankedCount                          `json:"top_diagnoses"`
	TopSpecialties        []RankedCount                          `json:"top_specialties"`
	AdmissionSources      map[string]suppression.Value           `json:"admission_sources"`
	DischargeDestinations map[string]suppression.Value           `json:"discharge_destinations"`
	MonthlyAdmissions     map[string]suppression.Value           `json:"monthly_admissions"`
	MonthlyByUnit         map[string]map[string]suppression.Value `json:"monthly_admissions_by_unit"`
	OutcomeByUnit         map[string]UnitOutcomes                `json:"outcome_by_unit"`
	LengthOfStay          LOSSummary                             `json:"length_of_stay"`
}

type Metadata struct {
	GeneratedAt          time.Time `json:"generated_at"`
	TotalRecords         int       `json:"total_records"`
	UniquePatients       int       `json:"unique_patients"`
	SuppressionThreshold int       `json:"suppression_threshold"`
	SuppressionMarker    string    `json:"suppression_marker"`
	EarliestAdmission    string    `json:"earliest_admission,omitempty"`
	LatestAdmission      string    `json:"latest_admission,omitempty"`
}

// RankedCount is one entry of a top-N list, ordered by descending count.
type RankedCount struct {
	Category string            `json:"category"`
	Count    suppression.Value `json:"count"`
}

// UnitOutcomes pairs per-outcome counts with percentages of the unit's
// total. A percentage is omitted whenever its count is masked, so the
// marker cannot be reversed through the ratio.
type UnitOutcomes struct {
	Counts      map[string]suppression.Value `json:"counts"`
	Percentages map[string]float64           `json:"percentages,omitempty"`
}

// LOSSummary describes length of stay in days over records with both
// timestamps present and a stay inside the plausible band.
type LOSSummary struct {
	RecordsUsed     int     `json:"records_used"`
	RecordsExcluded int     `json:"records_excluded"`
	MeanDays        float64 `json:"mean_days"`
	MedianDays      float64 `json:"median_days"`
	Q25Days         float64 `json:"q25_days"`
	Q75Days         float64 `json:"q75_days"`
}

// Compute builds the full statistics set in one pass over the records.
func (a *Analyzer) Compute(records []models.PatientRecord) Statistics {
	stats := Statistics{
		Metadata: Metadata{
			GeneratedAt:          a.now().UTC(),
			TotalRecords:         len(records),
			UniquePatients:       uniquePatients(records),
			SuppressionThreshold: a.threshold,
			SuppressionMarker:    fmt.Sprintf("<%d", a.threshold),
		},
	}

	earliest, latest := admissionRange(records)
	if earliest != nil {
		stats.Metadata.EarliestAdmission = earliest.Format(models.DateLayout)
		stats.Metadata.LatestAdmission = latest.Format(models.DateLayout)
	}

	stats.UnitDistribution = a.mask(countBy(records, func(r models.PatientRecord) *string { return r.Unit }))
	stats.OutcomeDistribution = a.mask(countBy(records, func(r models.PatientRecord) *string { return r.Outcome }))
	stats.AdmissionSources = a.mask(countBy(records, func(r models.PatientRecord) *string { return r.AdmissionSource }))
	stats.DischargeDestinations = a.mask(countBy(records, func(r models.PatientRecord) *string { return r.DischargeDestination }))
	stats.TopDiagnoses = a.topCounts(countBy(records, func(r models.PatientRecord) *string { return r.PrimaryDiagnosis }))
	stats.TopSpecialties = a.topCounts(countBy(records, func(r models.PatientRecord) *string { return r.Specialty }))
	stats.MonthlyAdmissions = a.mask(monthlyCounts(records))
	stats.MonthlyByUnit = suppression.Table(monthlyByUnit(records), a.threshold)
	stats.OutcomeByUnit = a.outcomeByUnit(records)
	stats.LengthOfStay = lengthOfStay(records)

	return stats
}

func (a *Analyzer) mask(counts map[string]int) map[string]suppression.Value {
	return suppression.Counts(counts, a.threshold)
}

// topCounts ranks categories by raw count and keeps the first topN,
// masking each surviving count. Ties break alphabetically so output is
// stable across runs.
func (a *Analyzer) topCounts(counts map[string]int) []RankedCount {
	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > a.topN {
		categories = categories[:a.topN]
	}

	ranked := make([]RankedCount, 0, len(categories))
	for _, category := range categories {
		ranked = append(ranked, RankedCount{
			Category: category,
			Count:    suppression.Mask(counts[category], a.threshold),
		})
	}
	return ranked
}

func (a *Analyzer) outcomeByUnit(records []models.PatientRecord) map[string]UnitOutcomes {
	cells := make(map[string]map[string]int)
	totals := make(map[string]int)
	for _, record := range records {
		if record.Unit == nil || record.Outcome == nil {
			continue
		}
		unit, outcome := *record.Unit, *record.Outcome
		if unit == "" || outcome == "" {
			continue
		}
		if cells[unit] == nil {
			cells[unit] = make(map[string]int)
		}
		cells[unit][outcome]++
		totals[unit]++
	}

	result := make(map[string]UnitOutcomes, len(cells))
	for unit, outcomes := range cells {
		entry := UnitOutcomes{Counts: suppression.Counts(outcomes, a.threshold)}
		for outcome, count := range outcomes {
			if entry.Counts[outcome].Masked() || totals[unit] == 0 {
				continue
			}
			if entry.Percentages == nil {
				entry.Percentages = make(map[string]float64)
			}
			entry.Percentages[outcome] = round1(float64(count) / float64(totals[unit]) * 100)
		}
		result[unit] = entry
	}
	return result
}

func countBy(records []models.PatientRecord, field func(models.PatientRecord) *string) map[string]int {
	counts := make(map[string]int)
	for _, record := range records {
		value := field(record)
		if value == nil || *value == "" {
			continue
		}
		counts[*value]++
	}
	return counts
}

func monthlyCounts(records []models.PatientRecord) map[string]int {
	counts := make(map[string]int)
	for _, record := range records {
		if record.Admission == nil {
			continue
		}
		counts[record.Admission.Format(monthLayout)]++
	}
	return counts
}

func monthlyByUnit(records []models.PatientRecord) map[string]map[string]int {
	cells := make(map[string]map[string]int)
	for _, record := range records {
		if record.Admission == nil || record.Unit == nil || *record.Unit == "" {
			continue
		}
		month := record.Admission.Format(monthLayout)
		if cells[month] == nil {
			cells[month] = make(map[string]int)
		}
		cells[month][*record.Unit]++
	}
	return cells
}

func lengthOfStay(records []models.PatientRecord) LOSSummary {
	var days []float64
	excluded := 0
	for _, record := range records {
		d, ok := record.LengthOfStayDays()
		if !ok {
			continue
		}
		if d <= 0 || d > maxPlausibleLOSDays {
			excluded++
			continue
		}
		days = append(days, d)
	}

	summary := LOSSummary{RecordsUsed: len(days), RecordsExcluded: excluded}
	if len(days) == 0 {
		return summary
	}
	sort.Float64s(days)

	sum := 0.0
	for _, d := range days {
		sum += d
	}
	summary.MeanDays = round2(sum / float64(len(days)))
	summary.MedianDays = round2(quantile(days, 0.5))
	summary.Q25Days = round2(quantile(days, 0.25))
	summary.Q75Days = round2(quantile(days, 0.75))
	return summary
}

// quantile interpolates linearly between adjacent order statistics. The
// input must be sorted and non-empty.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
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

func admissionRange(records []models.PatientRecord) (earliest, latest *time.Time) {
	for _, record := range records {
		if record.Admission == nil {
			continue
		}
		t := *record.Admission
		if earliest == nil || t.Before(*earliest) {
			earliest = &t
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return earliest, latest
}
