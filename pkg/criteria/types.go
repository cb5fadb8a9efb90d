// Package criteria defines the recursive boolean logic tree that expresses a
// quality measure's population criteria, plus the generic tree-walking
// utilities used by the matching, linking, sync, and evaluation engines.
//
// The tree is a tagged union: an internal node is a LogicalClause, a leaf is
// a DataElement. Nodes serialize losslessly to JSON so the tree can be stored
// as-is (JSONB) and consumed read-only by downstream code generators.
package criteria

// NodeKind discriminates the two node variants of the criteria tree.
type NodeKind string

const (
	KindDataElement   NodeKind = "dataElement"
	KindLogicalClause NodeKind = "logicalClause"
)

// Operator is a boolean combinator for a LogicalClause.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
)

// ElementType categorizes what kind of clinical fact a DataElement is about.
type ElementType string

const (
	ElementDiagnosis    ElementType = "diagnosis"
	ElementEncounter    ElementType = "encounter"
	ElementProcedure    ElementType = "procedure"
	ElementMedication   ElementType = "medication"
	ElementObservation  ElementType = "observation"
	ElementDemographic  ElementType = "demographic"
	ElementImmunization ElementType = "immunization"
	ElementAssessment   ElementType = "assessment"
)

// ReviewStatus tracks human review of an extracted DataElement.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewFlagged  ReviewStatus = "flagged"
)

// Code is one clinical code with its display text and code system.
type Code struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
	System  string `json:"system,omitempty"`
}

// ValueSetRef embeds a value set (OID, name, expanded codes) in a DataElement.
type ValueSetRef struct {
	OID   string `json:"oid"`
	Name  string `json:"name,omitempty"`
	Codes []Code `json:"codes,omitempty"`
}

// Timing constrains when a matching clinical fact must have occurred,
// relative to a reference point such as the measurement period or an index
// event supplied with the patient record. Display carries the free-text
// expression from the source document and is what the identity hash uses.
type Timing struct {
	Operator  string  `json:"operator,omitempty"` // within, before, after, during
	Quantity  float64 `json:"quantity,omitempty"`
	Unit      string  `json:"unit,omitempty"`     // day, week, month, year
	Position  string  `json:"position,omitempty"` // start, end
	Reference string  `json:"reference,omitempty"`
	Display   string  `json:"display,omitempty"`
}

// Timing reference points.
const (
	RefMeasurementPeriod = "measurement_period"
	RefIndexEvent        = "index_event"
)

// Threshold is a numeric comparison a matching fact's value must satisfy,
// e.g. an age bound or a lab-value cutoff.
type Threshold struct {
	Operator string  `json:"operator"` // >=, >, <=, <, =
	Value    float64 `json:"value"`
	Unit     string  `json:"unit,omitempty"`
}

// DataElement is a leaf criterion. LibraryComponentID is a non-owning
// back-reference into the shared component library; empty means unlinked.
type DataElement struct {
	ID                 string       `json:"id"`
	Type               ElementType  `json:"type"`
	Description        string       `json:"description,omitempty"`
	ValueSet           *ValueSetRef `json:"valueSet,omitempty"`
	DirectCodes        []Code       `json:"directCodes,omitempty"`
	Timing             *Timing      `json:"timing,omitempty"`
	Negation           bool         `json:"negation,omitempty"`
	Thresholds         *Threshold   `json:"thresholds,omitempty"`
	LibraryComponentID string       `json:"libraryComponentId,omitempty"`
	ReviewStatus       ReviewStatus `json:"reviewStatus,omitempty"`
}

// OID returns the element's value-set OID, or "" when no value set applies.
func (e *DataElement) OID() string {
	if e.ValueSet == nil {
		return ""
	}
	return e.ValueSet.OID
}

// AllCodes returns the element's value-set codes followed by its direct
// codes, in document order.
func (e *DataElement) AllCodes() []Code {
	var codes []Code
	if e.ValueSet != nil {
		codes = append(codes, e.ValueSet.Codes...)
	}
	codes = append(codes, e.DirectCodes...)
	return codes
}

// HasUsableIdentity reports whether the element carries enough coded content
// (a value set or direct codes) to be matched against the library.
func (e *DataElement) HasUsableIdentity() bool {
	return (e.ValueSet != nil && e.ValueSet.OID != "") || len(e.DirectCodes) > 0
}

// SiblingConnection overrides the clause's default operator between two
// specific adjacent children, enabling mixed expressions like A AND B OR C.
type SiblingConnection struct {
	FromIndex int      `json:"fromIndex"`
	ToIndex   int      `json:"toIndex"`
	Operator  Operator `json:"operator"`
}

// Clause is an internal node combining its children with Operator. Children
// is non-empty for any clause that participates in evaluation, and the tree
// is acyclic by construction; HasCycle guards against malformed input.
type Clause struct {
	ID                 string              `json:"id"`
	Operator           Operator            `json:"operator"`
	Children           []Node              `json:"children"`
	SiblingConnections []SiblingConnection `json:"siblingConnections,omitempty"`
}

// ConnectionAt returns the operator override between children i-1 and i, if
// one is present.
func (c *Clause) ConnectionAt(from, to int) (Operator, bool) {
	for _, sc := range c.SiblingConnections {
		if sc.FromIndex == from && sc.ToIndex == to {
			return sc.Operator, true
		}
	}
	return "", false
}
