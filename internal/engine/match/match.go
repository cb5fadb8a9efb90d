// Package match classifies a candidate data element against the component
// library: an exact identity-hash match, a fuzzy name-based match surfaced
// for human review, or no match at all.
package match

import (
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/engine/identity"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// Type classifies a match result.
type Type string

const (
	TypeExact   Type = "exact"
	TypeSimilar Type = "similar"
	TypeNone    Type = "none"
)

// Result is the outcome of matching one candidate element.
type Result struct {
	Type       Type                 `json:"type"`
	Component  *component.Component `json:"component,omitempty"`
	Similarity float64              `json:"similarity,omitempty"`
	// NameAffinity is a Jaro-Winkler score over the normalized names, used
	// to rank similar candidates for review; it is not a threshold gate.
	NameAffinity float64  `json:"nameAffinity,omitempty"`
	Differences  []string `json:"differences,omitempty"`
	// Suspicious marks fuzzy matches whose word overlap consists entirely
	// of generic clinical vocabulary; reviewers should not trust them.
	Suspicious bool `json:"suspicious,omitempty"`
}

// Find matches the candidate against the library. Exact matching scans
// atomic components by identity key with insertion-order tie-break; only
// when no exact match exists does the fuzzy fallback run. Composite
// components are never identity-matched.
func Find(candidate *criteria.DataElement, lib *component.Library) Result {
	return find(candidate, lib, false)
}

// FindPrioritizeApproved behaves like Find but, when several components
// share the candidate's identity hash (e.g. a draft and an approved
// duplicate), prefers the approved one. Without an approved duplicate it
// falls back to first-found.
func FindPrioritizeApproved(candidate *criteria.DataElement, lib *component.Library) Result {
	return find(candidate, lib, true)
}

func find(candidate *criteria.DataElement, lib *component.Library, preferApproved bool) Result {
	if candidate == nil || lib == nil {
		return Result{Type: TypeNone}
	}

	key := identity.ForElement(candidate)
	if hits := lib.ByIdentity(key); len(hits) > 0 {
		chosen := hits[0]
		if preferApproved {
			for _, c := range hits {
				if c.Version.Status == component.StatusApproved {
					chosen = c
					break
				}
			}
		}
		return Result{Type: TypeExact, Component: chosen, Similarity: 1}
	}

	return findSimilar(candidate, lib)
}

// findSimilar applies the fuzzy fallback: normalized-name substring
// containment, or timing+negation agreement with at least two significant
// words in common. Any qualifying component is "similar"; the scores only
// rank candidates, they never rank one out.
func findSimilar(candidate *criteria.DataElement, lib *component.Library) Result {
	name := candidateName(candidate)
	if name == "" {
		return Result{Type: TypeNone}
	}
	normName := normalizeName(name)
	candWords := significantWords(normName)
	candTiming := identity.NormalizeText(identity.TimingExpression(candidate.Timing))

	best := Result{Type: TypeNone}
	for _, c := range lib.Components() {
		if c.Kind != component.KindAtomic {
			continue
		}
		compName := c.ValueSetName
		if compName == "" {
			compName = c.Name
		}
		normComp := normalizeName(compName)
		if normComp == "" {
			continue
		}

		overlap, union := wordOverlap(candWords, significantWords(normComp))
		substring := strings.Contains(normComp, normName) || strings.Contains(normName, normComp)
		agrees := candTiming == identity.NormalizeText(c.TimingExpression) &&
			candidate.Negation == c.Negation

		if !substring && !(agrees && len(overlap) >= minWordOverlap) {
			continue
		}

		similarity := 0.0
		if union > 0 {
			similarity = float64(len(overlap)) / float64(union)
		}
		affinity := nameAffinity(normName, normComp)
		r := Result{
			Type:         TypeSimilar,
			Component:    c,
			Similarity:   similarity,
			NameAffinity: affinity,
			Differences:  diffFields(candidate, c),
			Suspicious:   allGeneric(overlap),
		}
		if better(r, best) {
			best = r
		}
	}
	return best
}

// minWordOverlap is the fuzzy-match word threshold. It is a tunable
// heuristic, not a contract; suspicious matches are flagged rather than
// silently trusted.
const minWordOverlap = 2

func better(a, b Result) bool {
	if b.Type == TypeNone {
		return true
	}
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.NameAffinity > b.NameAffinity
}

func candidateName(e *criteria.DataElement) string {
	if e.ValueSet != nil && e.ValueSet.Name != "" {
		return e.ValueSet.Name
	}
	return e.Description
}

// normalizeName lowercases, strips punctuation, and collapses whitespace.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// significantWords keeps tokens longer than three characters.
func significantWords(normalized string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(normalized) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	return words
}

func wordOverlap(a, b map[string]bool) (overlap []string, union int) {
	seen := map[string]bool{}
	for w := range a {
		seen[w] = true
		if b[w] {
			overlap = append(overlap, w)
		}
	}
	for w := range b {
		seen[w] = true
	}
	return overlap, len(seen)
}

// genericWords are clinical filler terms; an overlap made only of these says
// nothing about whether two criteria mean the same thing.
var genericWords = map[string]bool{
	"active":      true,
	"assessment":  true,
	"diagnosis":   true,
	"disorder":    true,
	"encounter":   true,
	"history":     true,
	"measurement": true,
	"other":       true,
	"patient":     true,
	"period":      true,
	"procedure":   true,
	"status":      true,
	"unspecified": true,
}

func allGeneric(overlap []string) bool {
	if len(overlap) == 0 {
		return false
	}
	for _, w := range overlap {
		if !genericWords[w] {
			return false
		}
	}
	return true
}

func nameAffinity(a, b string) float64 {
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}

func diffFields(e *criteria.DataElement, c *component.Component) []string {
	var diffs []string
	if identity.NormalizeOID(e.OID()) != identity.NormalizeOID(c.OID) {
		diffs = append(diffs, fmt.Sprintf("oid: %q vs %q", e.OID(), c.OID))
	}
	et := identity.NormalizeText(identity.TimingExpression(e.Timing))
	ct := identity.NormalizeText(c.TimingExpression)
	if et != ct {
		diffs = append(diffs, fmt.Sprintf("timing: %q vs %q", et, ct))
	}
	if e.Negation != c.Negation {
		diffs = append(diffs, fmt.Sprintf("negation: %t vs %t", e.Negation, c.Negation))
	}
	return diffs
}
