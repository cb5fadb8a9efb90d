package link

import (
	"github.com/measurekit/measurekit/internal/engine/match"
	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// RebuildReport summarizes a usage-index rebuild.
type RebuildReport struct {
	// ChangedComponents lists components whose usage set or count differed
	// from the recomputed truth.
	ChangedComponents []*component.Component `json:"changedComponents"`
	// DroppedMeasureIDs counts stale references removed from usage sets
	// (e.g. deleted measures that were never unlinked).
	DroppedMeasureIDs int `json:"droppedMeasureIds"`
}

// RebuildUsageIndex recomputes, from scratch, the exact set of measure ids
// referencing every component, then overwrites each component's usage set
// and count together. It walks every measure's trees following
// libraryComponentId back-references and, for unlinked but matchable
// elements, falls back to an exact identity match.
//
// This is the one operation allowed to silently fix a usageCount/measureIds
// mismatch. It is a pure function of the current library and measure state,
// so it is safe to call at any time and as often as needed.
func RebuildUsageIndex(lib *component.Library, measures []criteria.MeasurePopulations) RebuildReport {
	report := RebuildReport{}
	if lib == nil {
		return report
	}

	truth := make(map[string]map[string]bool, lib.Len())
	for _, c := range lib.Components() {
		truth[c.ID] = map[string]bool{}
	}

	for _, m := range measures {
		if m.MeasureID == "" {
			continue
		}
		for _, pop := range m.Populations {
			if pop.Criteria == nil {
				continue
			}
			root := pop.Root()
			if criteria.HasCycle(root) {
				continue
			}
			for _, elem := range criteria.CollectLeaves(root) {
				componentID := elem.LibraryComponentID
				if componentID == "" && elem.HasUsableIdentity() {
					if r := match.Find(elem, lib); r.Type == match.TypeExact {
						componentID = r.Component.ID
					}
				}
				if set, ok := truth[componentID]; ok {
					set[m.MeasureID] = true
				}
			}
		}
	}

	for _, c := range lib.Components() {
		set := truth[c.ID]
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		if usageEqual(c.Usage, ids) && c.Usage.Consistent() {
			continue
		}
		for _, old := range c.Usage.MeasureIDs {
			if !set[old] {
				report.DroppedMeasureIDs++
			}
		}
		c.Usage.Replace(ids)
		report.ChangedComponents = append(report.ChangedComponents, c)
	}
	return report
}

func usageEqual(u component.Usage, ids []string) bool {
	if len(u.MeasureIDs) != len(ids) {
		return false
	}
	have := map[string]bool{}
	for _, id := range u.MeasureIDs {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			return false
		}
	}
	return true
}
