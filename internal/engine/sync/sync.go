// Package sync propagates library component edits into every measure that
// references the component, and supports forking a private copy when one
// measure must diverge from the shared definition.
package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// Changes is the partial field set to propagate. Nil fields are untouched;
// present fields overwrite (never append), which is what makes a repeated
// sync converge to the same tree state.
type Changes struct {
	Name     *string         `json:"name,omitempty"`
	Timing   *string         `json:"timing,omitempty"` // display expression
	Negation *bool           `json:"negation,omitempty"`
	Codes    []criteria.Code `json:"codes,omitempty"` // replaces element codes
}

func (ch Changes) empty() bool {
	return ch.Name == nil && ch.Timing == nil && ch.Negation == nil && ch.Codes == nil
}

// Result reports one propagation run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// UpdatedMeasures holds rewritten copies of the affected measures' trees,
	// in input order. Unaffected measures are not included. Inputs are never
	// mutated, so a failed run performs no writes at all.
	UpdatedMeasures []criteria.MeasurePopulations `json:"updatedMeasures"`
}

// ComponentToMeasures rewrites, in every measure referencing componentID,
// the linked data elements' fields according to changes ("update all"
// semantics). Affected measures come from the component's usage index — not
// a fresh search — so callers must rebuild the index first if it might be
// stale. Elements linked to other components pass through unchanged.
func ComponentToMeasures(componentID string, changes Changes, lib *component.Library, measures []criteria.MeasurePopulations) Result {
	if lib == nil {
		return Result{Error: "component not found"}
	}
	comp, ok := lib.Get(componentID)
	if !ok {
		return Result{Error: "component not found"}
	}

	affected := map[string]bool{}
	for _, id := range comp.Usage.MeasureIDs {
		affected[id] = true
	}

	res := Result{Success: true}
	if changes.empty() {
		return res
	}

	for _, m := range measures {
		if !affected[m.MeasureID] {
			continue
		}
		res.UpdatedMeasures = append(res.UpdatedMeasures, rewriteMeasure(m, componentID, changes))
	}
	return res
}

// rewriteMeasure returns a copy of the measure with every element linked to
// componentID rewritten. Tree shape, node ids, child order, and sibling
// connections are preserved.
func rewriteMeasure(m criteria.MeasurePopulations, componentID string, changes Changes) criteria.MeasurePopulations {
	out := criteria.MeasurePopulations{MeasureID: m.MeasureID, Populations: make([]criteria.PopulationDefinition, len(m.Populations))}
	for i, pop := range m.Populations {
		out.Populations[i] = pop
		if pop.Criteria == nil {
			continue
		}
		rewritten := criteria.Transform(pop.Root(), func(n criteria.Node) criteria.Node {
			if n.Kind != criteria.KindDataElement || n.Element == nil || n.Element.LibraryComponentID != componentID {
				return n
			}
			applyChanges(n.Element, changes)
			return n
		})
		out.Populations[i].Criteria = rewritten.Clause
	}
	return out
}

func applyChanges(e *criteria.DataElement, changes Changes) {
	if changes.Name != nil {
		e.Description = *changes.Name
	}
	if changes.Timing != nil {
		if e.Timing == nil {
			e.Timing = &criteria.Timing{}
		} else {
			t := *e.Timing
			e.Timing = &t
		}
		e.Timing.Display = *changes.Timing
	}
	if changes.Negation != nil {
		e.Negation = *changes.Negation
	}
	if changes.Codes != nil {
		codes := make([]criteria.Code, len(changes.Codes))
		copy(codes, changes.Codes)
		if e.ValueSet != nil {
			vs := *e.ValueSet
			vs.Codes = codes
			e.ValueSet = &vs
		} else {
			e.DirectCodes = codes
		}
	}
}

// ForkResult reports a fork operation.
type ForkResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Forked is the new private component (usage = the forked measure only).
	Forked *component.Component `json:"forked,omitempty"`
	// UpdatedMeasure is the rewritten copy of the forked measure's trees.
	UpdatedMeasure *criteria.MeasurePopulations `json:"updatedMeasure,omitempty"`
}

// Fork duplicates componentID under a new id with usage reset to just
// measureID, re-points that single measure's linked elements at the copy,
// and removes the measure from the original's usage. Other measures keep
// referencing the original untouched. Because fork changes linkage for a
// subset of measures, callers should run a usage rebuild afterwards as a
// belt-and-braces check.
func Fork(componentID, measureID string, lib *component.Library, measures []criteria.MeasurePopulations) ForkResult {
	if lib == nil {
		return ForkResult{Error: "component not found"}
	}
	orig, ok := lib.Get(componentID)
	if !ok {
		return ForkResult{Error: "component not found"}
	}
	var target *criteria.MeasurePopulations
	for i := range measures {
		if measures[i].MeasureID == measureID {
			target = &measures[i]
			break
		}
	}
	if target == nil {
		return ForkResult{Error: "measure not found"}
	}

	now := time.Now().UTC()
	forked := orig.Clone()
	forked.ID = uuid.NewString()
	forked.Version = component.VersionInfo{}
	forked.AppendVersion("1", component.StatusDraft, "forked from "+orig.ID, now)
	forked.Usage = component.Usage{}
	forked.Usage.AddMeasure(measureID)
	forked.CreatedAt = now
	forked.UpdatedAt = now
	if err := lib.Add(forked); err != nil {
		return ForkResult{Error: err.Error()}
	}

	updated := criteria.MeasurePopulations{MeasureID: measureID, Populations: make([]criteria.PopulationDefinition, len(target.Populations))}
	for i, pop := range target.Populations {
		updated.Populations[i] = pop
		if pop.Criteria == nil {
			continue
		}
		rewritten := criteria.Transform(pop.Root(), func(n criteria.Node) criteria.Node {
			if n.Kind == criteria.KindDataElement && n.Element != nil && n.Element.LibraryComponentID == componentID {
				n.Element.LibraryComponentID = forked.ID
			}
			return n
		})
		updated.Populations[i].Criteria = rewritten.Clause
	}

	orig.Usage.RemoveMeasure(measureID)
	orig.UpdatedAt = now

	return ForkResult{Success: true, Forked: forked, UpdatedMeasure: &updated}
}
