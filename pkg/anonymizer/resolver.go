package anonymizer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/meridian-icu/registry/pkg/common/models"
	"github.com/meridian-icu/registry/pkg/tabular"
)

// ErrIdentifierColumnMissing is a precondition violation: the batch cannot
// be anonymized without knowing which column carries the raw identifier.
var ErrIdentifierColumnMissing = errors.New("identifier column not found in batch")

// Resolver turns raw patient identifiers into stable surrogate IDs. The
// digest→surrogate mapping lives only in resolver memory for the lifetime
// of the pipeline run; it is never persisted alongside clinical data.
type Resolver struct {
	salt    string
	prefix  string
	mapping map[string]string
	nextID  int
}

// NewResolver builds a resolver around explicitly provided secret salt.
// The salt's lifecycle is owned by the caller, not by this package.
func NewResolver(saltValue, prefix string) *Resolver {
	if prefix == "" {
		prefix = "ICU"
	}
	return &Resolver{
		salt:    saltValue,
		prefix:  prefix,
		mapping: make(map[string]string),
		nextID:  1,
	}
}

// Resolve maps a raw identifier to its surrogate ID and salted digest.
// Cosmetic variants of the same identifier (case, internal whitespace)
// normalize to one digest and therefore one surrogate ID. The mapping only
// grows; an assigned surrogate ID is never reused or changed.
func (r *Resolver) Resolve(raw string) (surrogateID, digest string) {
	digest = r.Digest(raw)
	if id, ok := r.mapping[digest]; ok {
		return id, digest
	}

	surrogateID = fmt.Sprintf("%s-%06d", r.prefix, r.nextID)
	r.mapping[digest] = surrogateID
	r.nextID++
	return surrogateID, digest
}

// Digest computes the salted SHA-256 of the normalized identifier.
func (r *Resolver) Digest(raw string) string {
	normalized := NormalizeIdentifier(raw)
	sum := sha256.Sum256([]byte(normalized + r.salt))
	return hex.EncodeToString(sum[:])
}

// NormalizeIdentifier trims the identifier, upper-cases it and strips all
// internal whitespace, so "h 123", "H123" and " h123 " are one identity.
func NormalizeIdentifier(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, upper)
}

// AnonymizeTable replaces the identifier column of a normalized batch with
// anonymous_patient_id and patient_id_hash columns. Rows with an empty
// identifier get empty surrogate columns; the validator flags those as
// records without identity. The raw identifier column is dropped.
func (r *Resolver) AnonymizeTable(table *tabular.Table, identifierColumn string) error {
	if !table.HasColumn(identifierColumn) {
		return fmt.Errorf("%w: %q", ErrIdentifierColumnMissing, identifierColumn)
	}

	table.AddColumn(models.ColPatientID)
	table.AddColumn(models.ColPatientHash)
	for _, row := range table.Rows {
		raw := row[identifierColumn]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, digest := r.Resolve(raw)
		row[models.ColPatientID] = id
		row[models.ColPatientHash] = digest
	}
	table.DropColumn(identifierColumn)
	return nil
}

// Restore seeds the mapping from digest→surrogate pairs recovered from a
// previously written registry, so identities stay stable across runs.
// Sequence numbering continues after the highest restored surrogate.
func (r *Resolver) Restore(pairs map[string]string) {
	suffix := r.prefix + "-"
	for digest, id := range pairs {
		if digest == "" || id == "" {
			continue
		}
		r.mapping[digest] = id
		if n, err := strconv.Atoi(strings.TrimPrefix(id, suffix)); err == nil && n >= r.nextID {
			r.nextID = n + 1
		}
	}
}

// UniquePatients reports how many distinct identities have been assigned.
func (r *Resolver) UniquePatients() int {
	return len(r.mapping)
}

// Stats summarizes the mapping for audit output. The mapping itself is
// deliberately unreachable from here.
func (r *Resolver) Stats() models.AnonymizationStats {
	last := ""
	if r.nextID > 1 {
		last = fmt.Sprintf("%s-%06d", r.prefix, r.nextID-1)
	}
	return models.AnonymizationStats{
		TotalUniquePatients: len(r.mapping),
		LastSurrogateID:     last,
		Timestamp:           time.Now().UTC(),
	}
}
