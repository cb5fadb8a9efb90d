package criteria

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleTree() Node {
	return ClauseNode(&Clause{
		ID:       "root",
		Operator: OpAnd,
		Children: []Node{
			ElementNode(&DataElement{
				ID:   "e1",
				Type: ElementDiagnosis,
				ValueSet: &ValueSetRef{
					OID:  "2.16.840.1.113883.3.464.1003.103.12.1001",
					Name: "Diabetes",
					Codes: []Code{
						{Code: "E11.9", System: "ICD10CM", Display: "Type 2 diabetes"},
					},
				},
				Timing: &Timing{Display: "during measurement period"},
			}),
			ClauseNode(&Clause{
				ID:       "c1",
				Operator: OpOr,
				Children: []Node{
					ElementNode(&DataElement{ID: "e2", Type: ElementEncounter, DirectCodes: []Code{{Code: "99213"}}}),
					ElementNode(&DataElement{ID: "e3", Type: ElementProcedure, Negation: true, DirectCodes: []Code{{Code: "3046F"}}}),
				},
				SiblingConnections: []SiblingConnection{{FromIndex: 0, ToIndex: 1, Operator: OpAnd}},
			}),
		},
	})
}

func TestNodeJSONRoundTrip(t *testing.T) {
	original := sampleTree()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Node
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	redata, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(data) != string(redata) {
		t.Errorf("round trip not lossless:\n first: %s\nsecond: %s", data, redata)
	}

	if decoded.Kind != KindLogicalClause || decoded.Clause == nil {
		t.Fatalf("decoded root: kind=%q clause=%v", decoded.Kind, decoded.Clause)
	}
	if len(decoded.Clause.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(decoded.Clause.Children))
	}
	leaf := decoded.Clause.Children[0]
	if leaf.Kind != KindDataElement || leaf.Element == nil {
		t.Fatalf("first child should be a data element")
	}
	if leaf.Element.ValueSet == nil || leaf.Element.ValueSet.OID != "2.16.840.1.113883.3.464.1003.103.12.1001" {
		t.Errorf("value set OID lost in round trip")
	}
	inner := decoded.Clause.Children[1]
	if inner.Clause == nil || len(inner.Clause.SiblingConnections) != 1 {
		t.Errorf("sibling connections lost in round trip")
	}
	if !inner.Clause.Children[1].Element.Negation {
		t.Errorf("negation flag lost in round trip")
	}
}

func TestNodeMarshalKindDiscriminator(t *testing.T) {
	data, err := json.Marshal(ElementNode(&DataElement{ID: "e1", Type: ElementDiagnosis}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"dataElement"`) {
		t.Errorf("element JSON missing kind discriminator: %s", data)
	}

	data, err = json.Marshal(ClauseNode(&Clause{ID: "c1", Operator: OpAnd}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"logicalClause"`) {
		t.Errorf("clause JSON missing kind discriminator: %s", data)
	}
}

func TestNodeUnmarshalUnknownKind(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"kind":"mystery","id":"x"}`), &n)
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestNodeMarshalInvalid(t *testing.T) {
	if _, err := json.Marshal(Node{Kind: KindDataElement}); err == nil {
		t.Errorf("expected error marshaling dataElement node without element")
	}
	if _, err := json.Marshal(Node{Kind: KindLogicalClause}); err == nil {
		t.Errorf("expected error marshaling logicalClause node without clause")
	}
}

func TestNodeValid(t *testing.T) {
	if !ElementNode(&DataElement{ID: "e"}).Valid() {
		t.Errorf("element node should be valid")
	}
	if !ClauseNode(&Clause{ID: "c"}).Valid() {
		t.Errorf("clause node should be valid")
	}
	if (Node{Kind: KindDataElement}).Valid() {
		t.Errorf("element node without element should be invalid")
	}
	if (Node{}).Valid() {
		t.Errorf("zero node should be invalid")
	}
}

func TestConnectionAt(t *testing.T) {
	c := &Clause{
		Operator: OpOr,
		SiblingConnections: []SiblingConnection{
			{FromIndex: 1, ToIndex: 2, Operator: OpAnd},
		},
	}
	if op, ok := c.ConnectionAt(1, 2); !ok || op != OpAnd {
		t.Errorf("ConnectionAt(1,2) = %q,%t; want AND,true", op, ok)
	}
	if _, ok := c.ConnectionAt(0, 1); ok {
		t.Errorf("ConnectionAt(0,1) should not exist")
	}
}
