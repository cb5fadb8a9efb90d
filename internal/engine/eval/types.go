// Package eval walks a measure's population criteria against a patient's
// clinical facts and produces a deterministic pass/fail trace per population
// plus a final classification.
package eval

import (
	"time"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// Fact is one clinical fact from a patient record: a coded event with its
// relevant dates and, for observations, a numeric value.
type Fact struct {
	Category criteria.ElementType `json:"category"`
	Code     string               `json:"code"`
	System   string               `json:"system,omitempty"`
	Display  string               `json:"display,omitempty"`
	Date     *time.Time           `json:"date,omitempty"`
	EndDate  *time.Time           `json:"endDate,omitempty"`
	Value    *float64             `json:"value,omitempty"`
	Unit     string               `json:"unit,omitempty"`
}

// PatientRecord is the unordered fact bag the evaluator consumes, plus the
// optional dates some criteria reference.
type PatientRecord struct {
	PatientID  string     `json:"patientId"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	IndexEvent *time.Time `json:"indexEvent,omitempty"`
	Facts      []Fact     `json:"facts"`
}

// Period is the measurement period the evaluation runs against.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Outcome is the terminal classification for one patient and measure.
type Outcome string

const (
	InNumerator     Outcome = "in_numerator"
	NotInNumerator  Outcome = "not_in_numerator"
	Excluded        Outcome = "excluded"
	NotInPopulation Outcome = "not_in_population"
)

// NodeResult mirrors one criteria-tree node: the boolean it evaluated to and
// the evidence behind it. The result tree has the full shape of the criteria
// tree, internal nodes included, so a UI can highlight exactly which
// sub-clause failed.
type NodeResult struct {
	NodeID   string            `json:"nodeId"`
	Kind     criteria.NodeKind `json:"kind"`
	Met      bool              `json:"met"`
	Evidence string            `json:"evidence,omitempty"`
	Children []NodeResult      `json:"children,omitempty"`
}

// PopulationResult is the outcome of one population's criteria tree.
type PopulationResult struct {
	Type criteria.PopulationType `json:"type"`
	Met  bool                    `json:"met"`
	Root *NodeResult             `json:"nodeResults,omitempty"`
	// Informational reports that the population was evaluated and recorded
	// but did not influence the final classification (denominator-exception).
	Informational bool `json:"informational,omitempty"`
}

// Trace is the full evaluation record for one patient against one measure.
// It is output-only: never persisted as an input, always re-derivable.
type Trace struct {
	PatientID    string             `json:"patientId"`
	MeasureID    string             `json:"measureId"`
	Populations  []PopulationResult `json:"perPopulationResult"`
	FinalOutcome Outcome            `json:"finalOutcome"`
	// HowClose lists unmet-leaf descriptions when the patient did not land
	// in the numerator, so reviewers can see what was missing.
	HowClose []string `json:"howClose,omitempty"`
}

func (t *Trace) population(pt criteria.PopulationType) *PopulationResult {
	for i := range t.Populations {
		if t.Populations[i].Type == pt {
			return &t.Populations[i]
		}
	}
	return nil
}
