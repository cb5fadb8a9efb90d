package identity

import (
	"testing"

	"github.com/measurekit/measurekit/pkg/criteria"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute("2.16.840.1.113883.3.464.1003.103.12.1001", "during measurement period", false)
	b := Compute("2.16.840.1.113883.3.464.1003.103.12.1001", "during measurement period", false)
	if a != b {
		t.Errorf("equal inputs produced different keys: %q vs %q", a, b)
	}
}

func TestComputeNormalization(t *testing.T) {
	base := Compute("2.16.840.1.113883", "during measurement period", false)

	cases := []struct {
		name   string
		oid    string
		timing string
	}{
		{"upper case timing", "2.16.840.1.113883", "During Measurement Period"},
		{"padded timing", "2.16.840.1.113883", "  during   measurement  period "},
		{"urn prefix", "urn:oid:2.16.840.1.113883", "during measurement period"},
		{"trailing dot", "2.16.840.1.113883.", "during measurement period"},
		{"padded oid", "  2.16.840.1.113883  ", "during measurement period"},
	}
	for _, tc := range cases {
		if got := Compute(tc.oid, tc.timing, false); got != base {
			t.Errorf("%s: key %q, want %q", tc.name, got, base)
		}
	}
}

func TestComputeNegationDistinguishes(t *testing.T) {
	pos := Compute("1.2.3", "during measurement period", false)
	neg := Compute("1.2.3", "during measurement period", true)
	if pos == neg {
		t.Errorf("negation did not change the key")
	}
}

func TestComputeEmptyOID(t *testing.T) {
	got := Compute("", "within 1 year", true)
	want := "|within 1 year|true"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestForElement(t *testing.T) {
	e := &criteria.DataElement{
		ID:       "e1",
		Type:     criteria.ElementDiagnosis,
		ValueSet: &criteria.ValueSetRef{OID: "urn:oid:1.2.3", Name: "Diabetes"},
		Timing:   &criteria.Timing{Display: "During Measurement Period"},
	}
	if got, want := ForElement(e), "1.2.3|during measurement period|false"; got != want {
		t.Errorf("ForElement = %q, want %q", got, want)
	}

	// No value set, no timing: key still well-formed.
	bare := &criteria.DataElement{ID: "e2", Type: criteria.ElementEncounter}
	if got, want := ForElement(bare), "||false"; got != want {
		t.Errorf("ForElement bare = %q, want %q", got, want)
	}
}

func TestTimingExpressionComposition(t *testing.T) {
	cases := []struct {
		name   string
		timing *criteria.Timing
		want   string
	}{
		{"nil", nil, ""},
		{"display wins", &criteria.Timing{Display: "within 2 years", Operator: "within", Quantity: 99}, "within 2 years"},
		{"composed", &criteria.Timing{Operator: "within", Quantity: 2, Unit: "year", Reference: criteria.RefMeasurementPeriod}, "within 2 year measurement_period"},
		{"position", &criteria.Timing{Operator: "before", Position: "start", Reference: criteria.RefMeasurementPeriod}, "before start measurement_period"},
	}
	for _, tc := range cases {
		if got := TimingExpression(tc.timing); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDigest(t *testing.T) {
	k1 := Compute("1.2.3", "during", false)
	k2 := Compute("1.2.3", "during", true)
	if Digest(k1) != Digest(k1) {
		t.Errorf("digest not deterministic")
	}
	if Digest(k1) == Digest(k2) {
		t.Errorf("distinct keys share a digest (not impossible, but these should differ)")
	}
}
