package dlp

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/tabular"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Detector scans anonymized tables for raw identifiers that survived
// anonymization, typically in free-text or pass-through columns. It is a
// safety net behind the anonymizer, not a replacement for it.
type Detector struct {
	rules []compiledRule
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

// Finding reports one rule matching in one column, with how many cells
// matched. The matched text itself is never carried in a finding.
type Finding struct {
	Column   string `json:"column"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// Columns the scanner skips: the salted digest is high-entropy hex that
// can collide with numeric patterns, and canonical timestamps are known
// safe.
var skipColumns = map[string]struct{}{
	models.ColPatientHash: {},
	models.ColAdmission:   {},
	models.ColDischarge:   {},
}

// ScanTable checks every remaining cell against every enabled rule.
// Findings come back sorted by column then type so output is stable.
func (d *Detector) ScanTable(table *tabular.Table) []Finding {
	if d == nil || len(d.rules) == 0 {
		return nil
	}

	counts := make(map[Finding]int)
	for _, col := range table.Columns {
		if _, skip := skipColumns[col]; skip {
			continue
		}
		for _, row := range table.Rows {
			cell := row[col]
			if cell == "" {
				continue
			}
			for _, rule := range d.rules {
				if rule.re.MatchString(cell) {
					counts[Finding{Column: col, Type: rule.rule.Type, Severity: rule.rule.Severity}]++
				}
			}
		}
	}

	findings := make([]Finding, 0, len(counts))
	for finding, count := range counts {
		finding.Count = count
		findings = append(findings, finding)
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Column != findings[j].Column {
			return findings[i].Column < findings[j].Column
		}
		return findings[i].Type < findings[j].Type
	})
	return findings
}

// HasHighSeverity reports whether any finding is severe enough to block
// publication of the batch.
func HasHighSeverity(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == "high" {
			return true
		}
	}
	return false
}
