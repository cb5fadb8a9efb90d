// Package measure stores ingested quality-measure specifications and
// orchestrates the engine operations that run against them: component
// linking and patient evaluation.
package measure

import (
	"time"

	"github.com/google/uuid"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// MeasureSpec maps to the measure_spec table. Populations is the ordered
// population list produced by the ingestion pipeline (document parsing and
// LLM extraction happen upstream); it is stored as JSONB and round-trips
// losslessly. ValueSets is the measure's value-set catalog as extracted.
type MeasureSpec struct {
	ID          uuid.UUID                       `db:"id" json:"id"`
	Title       string                          `db:"title" json:"title"`
	Steward     *string                         `db:"steward" json:"steward,omitempty"`
	Description *string                         `db:"description" json:"description,omitempty"`
	Status      string                          `db:"status" json:"status"`
	PeriodStart *time.Time                      `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time                      `db:"period_end" json:"period_end,omitempty"`
	Populations []criteria.PopulationDefinition `db:"populations" json:"populations"`
	ValueSets   []criteria.ValueSetRef          `db:"value_sets" json:"valueSets,omitempty"`
	VersionID   int                             `db:"version_id" json:"version_id"`
	CreatedAt   time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time                       `db:"updated_at" json:"updated_at"`
}

// Trees returns the measure id plus population trees in the form the
// engines consume.
func (m *MeasureSpec) Trees() criteria.MeasurePopulations {
	return criteria.MeasurePopulations{
		MeasureID:   m.ID.String(),
		Populations: m.Populations,
	}
}

// Stats summarizes tree shape for the review UI.
type Stats struct {
	Populations int `json:"populations"`
	Leaves      int `json:"leaves"`
	MaxDepth    int `json:"maxDepth"`
	Complexity  int `json:"complexity"`
	Linked      int `json:"linkedElements"`
	Unlinked    int `json:"unlinkedElements"`
}

// ComputeStats derives tree statistics for the measure.
func (m *MeasureSpec) ComputeStats() Stats {
	s := Stats{Populations: len(m.Populations)}
	for _, pop := range m.Populations {
		if pop.Criteria == nil {
			continue
		}
		root := pop.Root()
		s.Leaves += criteria.CountLeaves(root)
		if d := criteria.Depth(root); d > s.MaxDepth {
			s.MaxDepth = d
		}
		s.Complexity += criteria.ComplexityScore(root)
		for _, elem := range criteria.CollectLeaves(root) {
			if elem.LibraryComponentID != "" {
				s.Linked++
			} else {
				s.Unlinked++
			}
		}
	}
	return s
}
