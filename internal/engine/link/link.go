// Package link attaches a measure's data elements to library components. It
// creates new atomic components for unmatched elements, keeps the usage
// index (component → set of referencing measure ids) in lockstep, and can
// rebuild that index from scratch as a consistency repair.
package link

import (
	"time"

	"github.com/google/uuid"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/engine/identity"
	"github.com/measurekit/measurekit/internal/engine/match"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// Result reports one linking run. The link map covers every linkable element,
// including those already linked by a previous run, so reruns over unchanged
// input are observable no-ops: same map, empty New/Updated.
type Result struct {
	LinkMap           map[string]string      `json:"linkMap"` // dataElementId -> componentId
	NewComponents     []*component.Component `json:"newComponents"`
	UpdatedComponents []*component.Component `json:"updatedComponents"`
	SkippedElements   int                    `json:"skippedElements"`
}

// MeasureComponents walks the measure's population trees and links each data
// element to a library component, mutating both the elements (back-reference)
// and the library (usage, new components) in place.
//
// Only exact identity matches are auto-linked; fuzzy matches are left for a
// human reviewer so a near-miss is never silently misclassified. Malformed
// elements (no id, or no value set and no direct codes) are skipped and
// counted, never fatal: the batch always finishes and returns a (possibly
// partial) result.
func MeasureComponents(measureID string, populations []criteria.PopulationDefinition, lib *component.Library) Result {
	res := Result{LinkMap: map[string]string{}}
	if measureID == "" || lib == nil {
		return res
	}

	updated := map[string]bool{}
	created := map[string]bool{}
	now := time.Now().UTC()

	for _, pop := range populations {
		if pop.Criteria == nil {
			continue
		}
		root := pop.Root()
		if criteria.HasCycle(root) {
			res.SkippedElements += criteria.CountLeaves(root)
			continue
		}
		for _, elem := range criteria.CollectLeaves(root) {
			if elem.ID == "" || !elem.HasUsableIdentity() {
				res.SkippedElements++
				continue
			}

			// Element already linked and the target still exists: just make
			// sure the usage index knows about this measure.
			if elem.LibraryComponentID != "" {
				if c, ok := lib.Get(elem.LibraryComponentID); ok {
					res.LinkMap[elem.ID] = c.ID
					if c.Usage.AddMeasure(measureID) && !created[c.ID] {
						recordUpdated(&res, updated, c)
					}
					continue
				}
				// Stale back-reference; fall through and re-match.
			}

			m := match.FindPrioritizeApproved(elem, lib)
			if m.Type == match.TypeExact {
				elem.LibraryComponentID = m.Component.ID
				res.LinkMap[elem.ID] = m.Component.ID
				if m.Component.Usage.AddMeasure(measureID) && !created[m.Component.ID] {
					recordUpdated(&res, updated, m.Component)
				}
				continue
			}

			// No exact match: synthesize a new atomic component from the
			// element. It joins the library immediately so identical elements
			// later in the same run deduplicate against it.
			c := newAtomicComponent(elem, measureID, now)
			if err := lib.Add(c); err != nil {
				res.SkippedElements++
				continue
			}
			created[c.ID] = true
			res.NewComponents = append(res.NewComponents, c)
			elem.LibraryComponentID = c.ID
			res.LinkMap[elem.ID] = c.ID
		}
	}
	return res
}

func recordUpdated(res *Result, updated map[string]bool, c *component.Component) {
	if updated[c.ID] {
		return
	}
	updated[c.ID] = true
	res.UpdatedComponents = append(res.UpdatedComponents, c)
}

func newAtomicComponent(elem *criteria.DataElement, measureID string, now time.Time) *component.Component {
	name := elem.Description
	vsName := ""
	var codes []criteria.Code
	if elem.ValueSet != nil {
		vsName = elem.ValueSet.Name
		if name == "" {
			name = elem.ValueSet.Name
		}
		codes = append(codes, elem.ValueSet.Codes...)
	}
	codes = append(codes, elem.DirectCodes...)

	c := &component.Component{
		ID:               uuid.NewString(),
		Kind:             component.KindAtomic,
		Name:             name,
		Category:         string(elem.Type),
		OID:              identity.NormalizeOID(elem.OID()),
		ValueSetName:     vsName,
		TimingExpression: identity.TimingExpression(elem.Timing),
		Negation:         elem.Negation,
		Codes:            codes,
		Complexity:       1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	c.AppendVersion("1", component.StatusDraft, "created from measure "+measureID, now)
	c.Usage.AddMeasure(measureID)
	return c
}
