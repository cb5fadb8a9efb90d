package criteria

// PopulationType is one of the FHIR-style measure population roles. The
// well-known six types each appear at most once in a conformant measure,
// though uniqueness is not enforced structurally.
type PopulationType string

const (
	PopInitial            PopulationType = "initial-population"
	PopDenominator        PopulationType = "denominator"
	PopDenomExclusion     PopulationType = "denominator-exclusion"
	PopDenomException     PopulationType = "denominator-exception"
	PopNumerator          PopulationType = "numerator"
	PopNumeratorExclusion PopulationType = "numerator-exclusion"
)

// PopulationDefinition binds one population role to its criteria root.
type PopulationDefinition struct {
	Type     PopulationType `json:"type"`
	Criteria *Clause        `json:"criteria"`
}

// Root returns the population's criteria as a tree node, or a zero Node when
// the criteria root is missing.
func (p PopulationDefinition) Root() Node {
	if p.Criteria == nil {
		return Node{}
	}
	return ClauseNode(p.Criteria)
}

// MeasurePopulations pairs a measure id with its ordered population trees.
// It is the unit of work the linker, sync propagator, and evaluator operate
// on, keeping the engines independent of how measures are stored.
type MeasurePopulations struct {
	MeasureID   string                 `json:"measureId"`
	Populations []PopulationDefinition `json:"populations"`
}

// FindPopulation returns the first population of the given type.
func (m MeasurePopulations) FindPopulation(t PopulationType) (PopulationDefinition, bool) {
	for _, p := range m.Populations {
		if p.Type == t {
			return p, true
		}
	}
	return PopulationDefinition{}, false
}
