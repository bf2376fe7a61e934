package normalizer

import (
	"errors"
	"strings"
	"time"

	"github.com/meridian-icu/registry/pkg/common/logger"
	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/tabular"
	"github.com/sirupsen/logrus"
)

// DateKind declares how a declared date field should be parsed.
type DateKind string

const (
	KindDate     DateKind = "date"
	KindDateTime DateKind = "datetime"
)

// Input layouts accepted for declared date fields, tried in order. Source
// systems export a mix of ISO and UK day-first formats.
var parseLayouts = []string{
	models.DateTimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	models.DateLayout,
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// Normalizer renames source-specific columns onto the canonical registry
// schema and parses declared date fields into canonical cell layouts. It
// must run before identity resolution: the identifier column name is only
// known after mapping.
type Normalizer struct {
	mapping    map[string]string
	dateFields map[string]DateKind
}

func New(mapping map[string]string, dateFields map[string]DateKind) *Normalizer {
	return &Normalizer{mapping: mapping, dateFields: dateFields}
}

// Normalize applies the column mapping and date parsing in place and
// returns the same table. Columns not named in the mapping pass through
// unchanged; a canonical column still absent afterwards is not an error
// here — the validator reports it. Unparsable date cells degrade to the
// missing marker, never to a failure.
func (n *Normalizer) Normalize(table *tabular.Table) *tabular.Table {
	table.RenameColumns(n.mapping)

	for field, kind := range n.dateFields {
		if !table.HasColumn(field) {
			continue
		}
		unparsable := 0
		for _, row := range table.Rows {
			raw := strings.TrimSpace(row[field])
			if raw == "" {
				continue
			}
			parsed, ok := parseAny(raw)
			if !ok {
				row[field] = ""
				unparsable++
				continue
			}
			switch kind {
			case KindDate:
				row[field] = parsed.Format(models.DateLayout)
			default:
				row[field] = parsed.Format(models.DateTimeLayout)
			}
		}
		if unparsable > 0 {
			logger.WithFields(logrus.Fields{
				"field": field,
				"count": unparsable,
			}).Warn("Unparsable date values set to missing")
		}
	}
	return table
}

func parseAny(raw string) (time.Time, bool) {
	for _, layout := range parseLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ParseCell parses a canonical date or datetime cell back into a
// timestamp. Used by the registry when building structured records.
func ParseCell(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if parsed, ok := parseAny(raw); ok {
		return &parsed, nil
	}
	return nil, errors.New("unparsable timestamp cell: " + raw)
}
