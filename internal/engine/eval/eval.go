package eval

import (
	"fmt"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// Evaluate classifies one patient against one measure. Populations run in the
// fixed order initial-population → denominator → denominator-exclusion /
// denominator-exception → numerator → numerator-exclusion, short-circuiting
// as soon as the classification is settled:
//
//   - initial-population false → not_in_population, nothing else evaluated
//   - denominator false → not_in_population
//   - any denominator-exclusion true → excluded
//   - numerator true → in_numerator (unless a numerator-exclusion fires),
//     otherwise not_in_numerator
//
// denominator-exception is evaluated and recorded in the trace but never
// changes the binary in/out-of-numerator classification.
func Evaluate(m criteria.MeasurePopulations, rec PatientRecord, period Period) *Trace {
	trace := &Trace{PatientID: rec.PatientID, MeasureID: m.MeasureID}

	if ip, ok := m.FindPopulation(criteria.PopInitial); ok {
		res := evalPopulation(ip, rec, period)
		trace.Populations = append(trace.Populations, res)
		if !res.Met {
			trace.FinalOutcome = NotInPopulation
			trace.HowClose = unmetLeaves(res.Root)
			return trace
		}
	}

	if den, ok := m.FindPopulation(criteria.PopDenominator); ok {
		res := evalPopulation(den, rec, period)
		trace.Populations = append(trace.Populations, res)
		if !res.Met {
			trace.FinalOutcome = NotInPopulation
			trace.HowClose = unmetLeaves(res.Root)
			return trace
		}
	}

	for _, pop := range m.Populations {
		if pop.Type != criteria.PopDenomExclusion {
			continue
		}
		res := evalPopulation(pop, rec, period)
		trace.Populations = append(trace.Populations, res)
		if res.Met {
			trace.FinalOutcome = Excluded
			trace.HowClose = []string{"patient meets denominator-exclusion criteria"}
			return trace
		}
	}

	if exc, ok := m.FindPopulation(criteria.PopDenomException); ok {
		res := evalPopulation(exc, rec, period)
		res.Informational = true
		trace.Populations = append(trace.Populations, res)
	}

	num, ok := m.FindPopulation(criteria.PopNumerator)
	if !ok {
		trace.FinalOutcome = NotInNumerator
		trace.HowClose = []string{"measure defines no numerator criteria"}
		return trace
	}
	numRes := evalPopulation(num, rec, period)
	trace.Populations = append(trace.Populations, numRes)
	if !numRes.Met {
		trace.FinalOutcome = NotInNumerator
		trace.HowClose = unmetLeaves(numRes.Root)
		return trace
	}

	if nex, ok := m.FindPopulation(criteria.PopNumeratorExclusion); ok {
		res := evalPopulation(nex, rec, period)
		trace.Populations = append(trace.Populations, res)
		if res.Met {
			trace.FinalOutcome = NotInNumerator
			trace.HowClose = []string{"patient meets numerator-exclusion criteria"}
			return trace
		}
	}

	trace.FinalOutcome = InNumerator
	return trace
}

// evalPopulation evaluates one population's criteria tree. A population with
// no criteria root cannot be determined and evaluates false (conservative),
// flagged in the result rather than raised.
func evalPopulation(pop criteria.PopulationDefinition, rec PatientRecord, period Period) PopulationResult {
	res := PopulationResult{Type: pop.Type}
	if pop.Criteria == nil {
		res.Root = &NodeResult{Kind: criteria.KindLogicalClause, Evidence: "population has no criteria root"}
		return res
	}
	root := pop.Root()
	if criteria.HasCycle(root) {
		res.Root = &NodeResult{NodeID: pop.Criteria.ID, Kind: criteria.KindLogicalClause, Evidence: "criteria tree contains a cycle"}
		return res
	}
	nr := evalNode(root, rec, period)
	res.Root = &nr
	res.Met = nr.Met
	return res
}

func evalNode(n criteria.Node, rec PatientRecord, period Period) NodeResult {
	switch n.Kind {
	case criteria.KindDataElement:
		if n.Element == nil {
			return NodeResult{Kind: n.Kind, Evidence: "malformed node"}
		}
		return evalElement(n.Element, rec, period)
	case criteria.KindLogicalClause:
		if n.Clause == nil {
			return NodeResult{Kind: n.Kind, Evidence: "malformed node"}
		}
		return evalClause(n.Clause, rec, period)
	}
	return NodeResult{Kind: n.Kind, Evidence: "unknown node kind"}
}

// evalClause combines child results. Every child is evaluated — never
// short-circuited — so the result tree mirrors the full criteria shape.
//
// Without sibling overrides AND/OR reduce flat and NOT negates its single
// child. With overrides the children are folded left-to-right in index
// order, using the clause's default operator at each juncture except where a
// (fromIndex, toIndex) override substitutes its own, so OR(A,B,C) with an
// AND override between 0 and 1 evaluates as (A AND B) OR C.
func evalClause(c *criteria.Clause, rec PatientRecord, period Period) NodeResult {
	nr := NodeResult{NodeID: c.ID, Kind: criteria.KindLogicalClause}
	if len(c.Children) == 0 {
		nr.Evidence = "clause has no children"
		return nr
	}

	nr.Children = make([]NodeResult, len(c.Children))
	for i, child := range c.Children {
		nr.Children[i] = evalNode(child, rec, period)
	}

	if c.Operator == criteria.OpNot {
		nr.Met = !nr.Children[0].Met
		nr.Evidence = "NOT"
		if len(c.Children) != 1 {
			nr.Evidence = fmt.Sprintf("NOT with %d children; only the first is negated", len(c.Children))
		}
		return nr
	}

	acc := nr.Children[0].Met
	for i := 1; i < len(nr.Children); i++ {
		op := c.Operator
		if override, ok := c.ConnectionAt(i-1, i); ok {
			op = override
		}
		switch op {
		case criteria.OpAnd:
			acc = acc && nr.Children[i].Met
		case criteria.OpOr:
			acc = acc || nr.Children[i].Met
		default:
			acc = acc && nr.Children[i].Met
		}
	}
	nr.Met = acc
	if len(c.SiblingConnections) > 0 {
		nr.Evidence = fmt.Sprintf("%s fold over %d children with %d override(s)", c.Operator, len(c.Children), len(c.SiblingConnections))
	} else {
		nr.Evidence = fmt.Sprintf("%s over %d children", c.Operator, len(c.Children))
	}
	return nr
}

// unmetLeaves collects the evidence of failed leaves under a result tree,
// feeding the trace's howClose list.
func unmetLeaves(nr *NodeResult) []string {
	if nr == nil {
		return nil
	}
	var out []string
	collectUnmet(*nr, &out)
	return out
}

func collectUnmet(nr NodeResult, out *[]string) {
	if nr.Kind == criteria.KindDataElement {
		if !nr.Met {
			desc := nr.Evidence
			if desc == "" {
				desc = "criterion not met"
			}
			*out = append(*out, fmt.Sprintf("%s: %s", nr.NodeID, desc))
		}
		return
	}
	for _, child := range nr.Children {
		collectUnmet(child, out)
	}
}
