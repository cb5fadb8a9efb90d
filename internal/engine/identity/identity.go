// Package identity computes the canonical identity key of a data element or
// library component: normalized value-set OID, normalized timing expression,
// and negation flag. Two criteria with equal keys are treated as semantically
// identical regardless of display name, which is what makes library
// deduplication safe.
package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// Compute returns the identity key for the given OID, timing expression, and
// negation flag. It is pure: equal post-normalization inputs always yield
// equal keys, and differing negation always yields different keys. A missing
// OID normalizes to the empty string, so elements without a value set still
// hash on timing and negation alone.
func Compute(oid, timing string, negation bool) string {
	return NormalizeOID(oid) + "|" + NormalizeText(timing) + "|" + strconv.FormatBool(negation)
}

// ForElement computes the identity key of a data element.
func ForElement(e *criteria.DataElement) string {
	return Compute(e.OID(), TimingExpression(e.Timing), e.Negation)
}

// Digest returns a fixed 64-bit digest of an identity key, used as a cheap
// map key when indexing large libraries.
func Digest(key string) uint64 {
	return xxhash.Sum64String(key)
}

// TimingExpression renders the timing constraint as the text the identity
// key is built from: the source document's display expression when present,
// otherwise a canonical composition of the structured fields.
func TimingExpression(t *criteria.Timing) string {
	if t == nil {
		return ""
	}
	if t.Display != "" {
		return t.Display
	}
	parts := make([]string, 0, 5)
	if t.Operator != "" {
		parts = append(parts, t.Operator)
	}
	if t.Quantity != 0 {
		parts = append(parts, fmt.Sprintf("%g", t.Quantity))
	}
	if t.Unit != "" {
		parts = append(parts, t.Unit)
	}
	if t.Position != "" {
		parts = append(parts, t.Position)
	}
	if t.Reference != "" {
		parts = append(parts, t.Reference)
	}
	return strings.Join(parts, " ")
}

// NormalizeText trims, lowercases, and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// NormalizeOID applies NormalizeText and additionally strips leading and
// trailing punctuation, so "urn:oid:2.16..." style decoration and stray
// trailing dots do not split identical value sets.
func NormalizeOID(oid string) string {
	s := NormalizeText(oid)
	s = strings.TrimPrefix(s, "urn:oid:")
	return strings.Trim(s, ".,;:!?()[]{}\"'")
}
