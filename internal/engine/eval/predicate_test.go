package eval

import (
	"strings"
	"testing"
	"time"

	"github.com/measurekit/measurekit/pkg/criteria"
)

func TestEvalElementCodeAndSystem(t *testing.T) {
	e := &criteria.DataElement{
		ID:          "dx",
		Type:        criteria.ElementDiagnosis,
		DirectCodes: []criteria.Code{{Code: "E11.9", System: "ICD-10"}},
	}
	rec := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementDiagnosis, Code: "E11.9", System: "ICD-10"},
	}}

	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("matching code+system not met: %s", nr.Evidence)
	}

	// Wrong system blocks the match when both sides carry one.
	rec.Facts[0].System = "SNOMED"
	if nr := evalElement(e, rec, testPeriod); nr.Met {
		t.Errorf("system mismatch should not match")
	}

	// A fact with no system matches a coded criterion leniently.
	rec.Facts[0].System = ""
	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("system-less fact should match: %s", nr.Evidence)
	}
}

func TestEvalElementCategoryMustAgree(t *testing.T) {
	e := diagCriterion("dx", "E11.9")
	rec := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementProcedure, Code: "E11.9"},
	}}
	nr := evalElement(e, rec, testPeriod)
	if nr.Met {
		t.Errorf("fact of wrong category matched")
	}
	if nr.Evidence != "no matching facts" {
		t.Errorf("evidence = %q", nr.Evidence)
	}
}

func TestEvalElementValueSetCodes(t *testing.T) {
	e := &criteria.DataElement{
		ID:   "dx",
		Type: criteria.ElementDiagnosis,
		ValueSet: &criteria.ValueSetRef{
			OID:   "1.2.3",
			Codes: []criteria.Code{{Code: "E11.65"}, {Code: "E11.9"}},
		},
	}
	rec := PatientRecord{Facts: []Fact{{Category: criteria.ElementDiagnosis, Code: "E11.65"}}}
	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("value-set member code not met: %s", nr.Evidence)
	}
}

func TestEvalElementNegation(t *testing.T) {
	e := diagCriterion("no-dx", "Z51.5")
	e.Negation = true
	// Timing is ignored for absence criteria even when present.
	e.Timing = &criteria.Timing{Reference: criteria.RefIndexEvent, Operator: "within", Quantity: 1, Unit: "year"}

	empty := PatientRecord{}
	if nr := evalElement(e, empty, testPeriod); !nr.Met {
		t.Errorf("absence criterion with no facts should be met: %s", nr.Evidence)
	}

	// Present fact defeats the absence criterion; no index event needed
	// because the window is never resolved.
	has := PatientRecord{Facts: []Fact{{Category: criteria.ElementDiagnosis, Code: "Z51.5"}}}
	nr := evalElement(e, has, testPeriod)
	if nr.Met {
		t.Errorf("absence criterion met despite matching fact")
	}
	if !strings.Contains(nr.Evidence, "absence required") {
		t.Errorf("evidence = %q", nr.Evidence)
	}
}

func TestEvalElementThreshold(t *testing.T) {
	e := &criteria.DataElement{
		ID:          "a1c",
		Type:        criteria.ElementObservation,
		DirectCodes: []criteria.Code{{Code: "4548-4"}},
		Thresholds:  &criteria.Threshold{Operator: ">", Value: 9},
	}
	rec := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementObservation, Code: "4548-4", Value: floatptr(8.5)},
	}}
	if nr := evalElement(e, rec, testPeriod); nr.Met {
		t.Errorf("8.5 should not satisfy > 9")
	}

	rec.Facts[0].Value = floatptr(9.4)
	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("9.4 should satisfy > 9: %s", nr.Evidence)
	}

	// A valueless fact never satisfies a threshold.
	rec.Facts[0].Value = nil
	if nr := evalElement(e, rec, testPeriod); nr.Met {
		t.Errorf("valueless fact satisfied a threshold")
	}
}

func TestEvalElementTimingWindow(t *testing.T) {
	e := diagCriterion("dx", "E11.9")
	e.Timing = &criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "during"}

	in := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementDiagnosis, Code: "E11.9", Date: dateptr(2025, 6, 1)},
	}}
	if nr := evalElement(e, in, testPeriod); !nr.Met {
		t.Errorf("in-period fact not met: %s", nr.Evidence)
	}

	out := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementDiagnosis, Code: "E11.9", Date: dateptr(2024, 6, 1)},
	}}
	if nr := evalElement(e, out, testPeriod); nr.Met {
		t.Errorf("out-of-period fact matched")
	}

	// An undated fact cannot prove membership in a dated window.
	undated := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementDiagnosis, Code: "E11.9"},
	}}
	if nr := evalElement(e, undated, testPeriod); nr.Met {
		t.Errorf("undated fact satisfied a timing window")
	}
}

func TestEvalElementIndexEventIndeterminate(t *testing.T) {
	e := diagCriterion("dx", "E11.9")
	e.Timing = &criteria.Timing{Reference: criteria.RefIndexEvent, Operator: "within", Quantity: 30, Unit: "days"}

	rec := PatientRecord{Facts: []Fact{
		{Category: criteria.ElementDiagnosis, Code: "E11.9", Date: dateptr(2025, 6, 1)},
	}}
	nr := evalElement(e, rec, testPeriod)
	if nr.Met {
		t.Errorf("unresolvable window evaluated true")
	}
	if !strings.Contains(nr.Evidence, "timing indeterminate") {
		t.Errorf("evidence = %q, want indeterminate reason", nr.Evidence)
	}

	idx := date(2025, 6, 10)
	rec.IndexEvent = &idx
	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("fact within 30 days of index event not met: %s", nr.Evidence)
	}
}

func TestEvalAge(t *testing.T) {
	e := &criteria.DataElement{
		ID:         "age",
		Type:       criteria.ElementDemographic,
		Thresholds: &criteria.Threshold{Operator: ">=", Value: 18},
	}

	// Turns 18 the day the period starts.
	rec := PatientRecord{BirthDate: dateptr(2007, 1, 1)}
	if nr := evalElement(e, rec, testPeriod); !nr.Met {
		t.Errorf("18 at period start should satisfy >= 18: %s", nr.Evidence)
	}

	// One day short of 18 at period start.
	rec.BirthDate = dateptr(2007, 1, 2)
	if nr := evalElement(e, rec, testPeriod); nr.Met {
		t.Errorf("17 at period start satisfied >= 18")
	}

	rec.BirthDate = nil
	nr := evalElement(e, rec, testPeriod)
	if nr.Met {
		t.Errorf("missing birth date evaluated true")
	}
	if !strings.Contains(nr.Evidence, "birth date missing") {
		t.Errorf("evidence = %q", nr.Evidence)
	}
}

func TestYearsBetween(t *testing.T) {
	cases := []struct {
		birth, at time.Time
		want      int
	}{
		{date(1960, 6, 15), date(2025, 6, 15), 65},
		{date(1960, 6, 15), date(2025, 6, 14), 64},
		{date(1960, 6, 15), date(2025, 7, 1), 65},
		{date(2000, 2, 29), date(2025, 2, 28), 24},
		{date(2000, 2, 29), date(2025, 3, 1), 25},
	}
	for _, tc := range cases {
		if got := yearsBetween(tc.birth, tc.at); got != tc.want {
			t.Errorf("yearsBetween(%s, %s) = %d, want %d",
				tc.birth.Format("2006-01-02"), tc.at.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestResolveWindow(t *testing.T) {
	idx := date(2025, 6, 10)

	cases := []struct {
		name       string
		timing     criteria.Timing
		index      *time.Time
		wantStart  time.Time
		wantEnd    time.Time
		wantReason string
	}{
		{
			name:      "during measurement period",
			timing:    criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "during"},
			wantStart: testPeriod.Start, wantEnd: testPeriod.End,
		},
		{
			name:      "defaults to during the period",
			timing:    criteria.Timing{},
			wantStart: testPeriod.Start, wantEnd: testPeriod.End,
		},
		{
			name:      "within years straddles the period",
			timing:    criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "within", Quantity: 1, Unit: "year"},
			wantStart: date(2024, 1, 1), wantEnd: date(2026, 12, 31),
		},
		{
			name:      "before period start with lookback",
			timing:    criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "before", Quantity: 6, Unit: "months"},
			wantStart: date(2024, 7, 1), wantEnd: testPeriod.Start,
		},
		{
			name:    "before period start unbounded",
			timing:  criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "before"},
			wantEnd: testPeriod.Start,
		},
		{
			name:      "after period end",
			timing:    criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "after", Quantity: 30, Unit: "days"},
			wantStart: testPeriod.End, wantEnd: date(2026, 1, 30),
		},
		{
			name:      "anchored at period start",
			timing:    criteria.Timing{Reference: criteria.RefMeasurementPeriod, Position: "start", Operator: "within", Quantity: 2, Unit: "weeks"},
			wantStart: date(2024, 12, 18), wantEnd: date(2025, 1, 15),
		},
		{
			name:      "within days of index event",
			timing:    criteria.Timing{Reference: criteria.RefIndexEvent, Operator: "within", Quantity: 30, Unit: "days"},
			index:     &idx,
			wantStart: date(2025, 5, 11), wantEnd: date(2025, 7, 10),
		},
		{
			name:       "index event missing",
			timing:     criteria.Timing{Reference: criteria.RefIndexEvent, Operator: "within", Quantity: 30, Unit: "days"},
			wantReason: "index event date not supplied with patient record",
		},
		{
			name:       "unknown reference",
			timing:     criteria.Timing{Reference: "episode"},
			wantReason: `unknown timing reference "episode"`,
		},
		{
			name:       "unknown operator",
			timing:     criteria.Timing{Reference: criteria.RefMeasurementPeriod, Operator: "overlaps"},
			wantReason: `unknown timing operator "overlaps"`,
		},
	}

	for _, tc := range cases {
		w, reason := resolveWindow(&tc.timing, testPeriod, tc.index)
		if reason != tc.wantReason {
			t.Errorf("%s: reason = %q, want %q", tc.name, reason, tc.wantReason)
			continue
		}
		if tc.wantReason != "" {
			continue
		}
		if !w.start.Equal(tc.wantStart) || !w.end.Equal(tc.wantEnd) {
			t.Errorf("%s: window = %s..%s, want %s..%s", tc.name,
				w.start.Format("2006-01-02"), w.end.Format("2006-01-02"),
				tc.wantStart.Format("2006-01-02"), tc.wantEnd.Format("2006-01-02"))
		}
	}
}

func TestWindowString(t *testing.T) {
	full := window{start: date(2025, 1, 1), end: date(2025, 12, 31)}
	if s := full.String(); s != "2025-01-01..2025-12-31" {
		t.Errorf("String() = %q", s)
	}
	open := window{end: date(2025, 1, 1)}
	if s := open.String(); s != "until 2025-01-01" {
		t.Errorf("String() = %q", s)
	}
}
