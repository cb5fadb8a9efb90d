package criteria

// CollectLeaves returns every DataElement in the tree, depth-first and
// left-to-right. The returned pointers alias the tree's own elements so
// callers (e.g. the library linker) can update them in place.
func CollectLeaves(n Node) []*DataElement {
	var out []*DataElement
	collectLeaves(n, &out)
	return out
}

func collectLeaves(n Node, out *[]*DataElement) {
	switch n.Kind {
	case KindDataElement:
		if n.Element != nil {
			*out = append(*out, n.Element)
		}
	case KindLogicalClause:
		if n.Clause == nil {
			return
		}
		for _, child := range n.Clause.Children {
			collectLeaves(child, out)
		}
	}
}

// Transform applies fn to every node bottom-up and returns a new tree of the
// same shape. Clause ids, child order, and sibling connections are preserved
// unless fn rewrites them. The input tree is not modified.
func Transform(n Node, fn func(Node) Node) Node {
	switch n.Kind {
	case KindDataElement:
		if n.Element == nil {
			return n
		}
		elem := *n.Element
		return fn(ElementNode(&elem))
	case KindLogicalClause:
		if n.Clause == nil {
			return n
		}
		clause := *n.Clause
		clause.Children = make([]Node, len(n.Clause.Children))
		for i, child := range n.Clause.Children {
			clause.Children[i] = Transform(child, fn)
		}
		if n.Clause.SiblingConnections != nil {
			clause.SiblingConnections = make([]SiblingConnection, len(n.Clause.SiblingConnections))
			copy(clause.SiblingConnections, n.Clause.SiblingConnections)
		}
		return fn(ClauseNode(&clause))
	}
	return n
}

// Depth returns the longest root-to-leaf edge count. A leaf has depth 0.
func Depth(n Node) int {
	if n.Kind != KindLogicalClause || n.Clause == nil {
		return 0
	}
	max := 0
	for _, child := range n.Clause.Children {
		if d := Depth(child); d > max {
			max = d
		}
	}
	return max + 1
}

// CountLeaves returns the number of DataElement leaves in the tree.
func CountLeaves(n Node) int {
	switch n.Kind {
	case KindDataElement:
		if n.Element == nil {
			return 0
		}
		return 1
	case KindLogicalClause:
		if n.Clause == nil {
			return 0
		}
		total := 0
		for _, child := range n.Clause.Children {
			total += CountLeaves(child)
		}
		return total
	}
	return 0
}

// ComplexityScore is the derived complexity used for library component
// scoring: leaf count weighted by nesting depth.
func ComplexityScore(n Node) int {
	return CountLeaves(n) + 2*Depth(n)
}

// HasCycle reports whether any node id repeats on its own ancestor chain.
// The visited set is scoped per root-to-leaf path, not global, so legitimate
// id reuse across disjoint branches is not misreported. Trees built through
// the construction API never cycle; this guards against malformed input such
// as bad migrations.
func HasCycle(n Node) bool {
	return hasCycle(n, map[string]bool{})
}

func hasCycle(n Node, path map[string]bool) bool {
	id := n.ID()
	if id != "" {
		if path[id] {
			return true
		}
		path[id] = true
		defer delete(path, id)
	}
	if n.Kind == KindLogicalClause && n.Clause != nil {
		for _, child := range n.Clause.Children {
			if hasCycle(child, path) {
				return true
			}
		}
	}
	return false
}
