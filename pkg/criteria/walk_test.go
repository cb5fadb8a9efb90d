package criteria

import (
	"testing"
)

func TestCollectLeavesOrderAndAliasing(t *testing.T) {
	root := sampleTree()
	leaves := CollectLeaves(root)
	if len(leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(leaves))
	}
	wantOrder := []string{"e1", "e2", "e3"}
	for i, want := range wantOrder {
		if leaves[i].ID != want {
			t.Errorf("leaf %d: got %q, want %q", i, leaves[i].ID, want)
		}
	}

	// Pointers alias the tree, so in-place edits show through.
	leaves[0].LibraryComponentID = "comp-1"
	if root.Clause.Children[0].Element.LibraryComponentID != "comp-1" {
		t.Errorf("leaf edit did not reach the tree")
	}
}

func TestTransformCopiesTree(t *testing.T) {
	root := sampleTree()
	out := Transform(root, func(n Node) Node {
		if n.Kind == KindDataElement {
			n.Element.Description = "rewritten"
		}
		return n
	})

	for _, leaf := range CollectLeaves(out) {
		if leaf.Description != "rewritten" {
			t.Errorf("leaf %s not rewritten", leaf.ID)
		}
	}
	// Original untouched.
	for _, leaf := range CollectLeaves(root) {
		if leaf.Description == "rewritten" {
			t.Errorf("Transform mutated the input tree at leaf %s", leaf.ID)
		}
	}

	// Shape preserved.
	if out.Clause.ID != "root" || len(out.Clause.Children) != 2 {
		t.Errorf("transform changed tree shape")
	}
	inner := out.Clause.Children[1].Clause
	if len(inner.SiblingConnections) != 1 || inner.SiblingConnections[0].Operator != OpAnd {
		t.Errorf("transform dropped sibling connections")
	}
}

func TestDepthAndCounts(t *testing.T) {
	leaf := ElementNode(&DataElement{ID: "only"})
	if d := Depth(leaf); d != 0 {
		t.Errorf("leaf depth = %d, want 0", d)
	}
	if n := CountLeaves(leaf); n != 1 {
		t.Errorf("leaf count = %d, want 1", n)
	}

	root := sampleTree()
	if d := Depth(root); d != 2 {
		t.Errorf("depth = %d, want 2", d)
	}
	if n := CountLeaves(root); n != 3 {
		t.Errorf("leaf count = %d, want 3", n)
	}
	if s := ComplexityScore(root); s != 3+2*2 {
		t.Errorf("complexity = %d, want 7", s)
	}
}

func TestHasCycle(t *testing.T) {
	if HasCycle(sampleTree()) {
		t.Errorf("acyclic tree reported cyclic")
	}

	// Same id on an ancestor chain is a cycle.
	cyclic := ClauseNode(&Clause{
		ID:       "a",
		Operator: OpAnd,
		Children: []Node{
			ClauseNode(&Clause{
				ID:       "a",
				Operator: OpOr,
				Children: []Node{ElementNode(&DataElement{ID: "e"})},
			}),
		},
	})
	if !HasCycle(cyclic) {
		t.Errorf("repeated ancestor id not reported as cycle")
	}

	// Same id reused across disjoint branches is fine.
	siblings := ClauseNode(&Clause{
		ID:       "root",
		Operator: OpAnd,
		Children: []Node{
			ClauseNode(&Clause{ID: "dup", Operator: OpOr, Children: []Node{ElementNode(&DataElement{ID: "x"})}}),
			ClauseNode(&Clause{ID: "dup", Operator: OpOr, Children: []Node{ElementNode(&DataElement{ID: "y"})}}),
		},
	})
	if HasCycle(siblings) {
		t.Errorf("id reuse across branches misreported as cycle")
	}
}

func TestFindPopulation(t *testing.T) {
	m := MeasurePopulations{
		MeasureID: "m1",
		Populations: []PopulationDefinition{
			{Type: PopInitial, Criteria: &Clause{ID: "ip", Operator: OpAnd}},
			{Type: PopNumerator, Criteria: &Clause{ID: "num", Operator: OpAnd}},
		},
	}
	if p, ok := m.FindPopulation(PopNumerator); !ok || p.Criteria.ID != "num" {
		t.Errorf("FindPopulation(numerator) failed")
	}
	if _, ok := m.FindPopulation(PopDenomExclusion); ok {
		t.Errorf("FindPopulation should miss absent type")
	}
	if (PopulationDefinition{}).Root().Valid() {
		t.Errorf("missing criteria should yield an invalid root node")
	}
}
