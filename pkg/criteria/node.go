package criteria

import (
	"encoding/json"
	"fmt"
)

// Node is the tagged union of the two tree variants. Exactly one of Element
// and Clause is set, according to Kind.
type Node struct {
	Kind    NodeKind
	Element *DataElement
	Clause  *Clause
}

// ElementNode wraps a DataElement as a tree node.
func ElementNode(e *DataElement) Node {
	return Node{Kind: KindDataElement, Element: e}
}

// ClauseNode wraps a Clause as a tree node.
func ClauseNode(c *Clause) Node {
	return Node{Kind: KindLogicalClause, Clause: c}
}

// ID returns the id of whichever variant is set.
func (n Node) ID() string {
	switch n.Kind {
	case KindDataElement:
		if n.Element != nil {
			return n.Element.ID
		}
	case KindLogicalClause:
		if n.Clause != nil {
			return n.Clause.ID
		}
	}
	return ""
}

// Valid reports whether the node carries the variant its Kind promises.
func (n Node) Valid() bool {
	switch n.Kind {
	case KindDataElement:
		return n.Element != nil
	case KindLogicalClause:
		return n.Clause != nil
	}
	return false
}

// Aliases strip method sets so the inner variants marshal with the default
// struct encoding inside the union wrapper.
type elementJSON DataElement
type clauseJSON Clause

// MarshalJSON flattens the union into a single object discriminated by a
// "kind" field, so stored trees read naturally and round-trip losslessly.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case KindDataElement:
		if n.Element == nil {
			return nil, fmt.Errorf("criteria: dataElement node has no element")
		}
		return json.Marshal(struct {
			Kind NodeKind `json:"kind"`
			*elementJSON
		}{n.Kind, (*elementJSON)(n.Element)})
	case KindLogicalClause:
		if n.Clause == nil {
			return nil, fmt.Errorf("criteria: logicalClause node has no clause")
		}
		return json.Marshal(struct {
			Kind NodeKind `json:"kind"`
			*clauseJSON
		}{n.Kind, (*clauseJSON)(n.Clause)})
	}
	return nil, fmt.Errorf("criteria: unknown node kind %q", n.Kind)
}

// UnmarshalJSON reads the discriminated form written by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var probe struct {
		Kind NodeKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("criteria: decode node: %w", err)
	}
	switch probe.Kind {
	case KindDataElement:
		var e elementJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("criteria: decode data element: %w", err)
		}
		n.Kind = KindDataElement
		n.Element = (*DataElement)(&e)
		n.Clause = nil
	case KindLogicalClause:
		var c clauseJSON
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("criteria: decode logical clause: %w", err)
		}
		n.Kind = KindLogicalClause
		n.Clause = (*Clause)(&c)
		n.Element = nil
	default:
		return fmt.Errorf("criteria: unknown node kind %q", probe.Kind)
	}
	return nil
}
