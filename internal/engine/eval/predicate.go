package eval

import (
	"fmt"
	"time"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// evalElement evaluates one leaf criterion against the fact bag.
//
// Facts qualify by category and code membership (value-set codes or direct
// codes). With negation the predicate is true iff no such fact exists; the
// timing window is not consulted, mirroring how absence criteria are stated
// in source measures. Without negation at least one qualifying fact must
// additionally satisfy the threshold (if any) and fall inside the timing
// window (if any). A window that cannot be resolved — e.g. it references an
// index event the record does not carry — makes the predicate false with the
// reason in evidence: cannot prove membership means not a member.
func evalElement(e *criteria.DataElement, rec PatientRecord, period Period) NodeResult {
	nr := NodeResult{NodeID: e.ID, Kind: criteria.KindDataElement}

	if e.Type == criteria.ElementDemographic && e.Thresholds != nil && !e.HasUsableIdentity() {
		return evalAge(e, rec, period)
	}

	matched := codeMatches(e, rec.Facts)

	if e.Negation {
		nr.Met = len(matched) == 0
		if nr.Met {
			nr.Evidence = "no matching facts (absence criterion)"
		} else {
			nr.Evidence = fmt.Sprintf("%d matching fact(s) present but absence required", len(matched))
		}
		return nr
	}

	if len(matched) == 0 {
		nr.Evidence = "no matching facts"
		return nr
	}

	if e.Thresholds != nil {
		matched = filterThreshold(matched, e.Thresholds)
		if len(matched) == 0 {
			nr.Evidence = fmt.Sprintf("no matching fact satisfies %s %g", e.Thresholds.Operator, e.Thresholds.Value)
			return nr
		}
	}

	if e.Timing != nil {
		window, reason := resolveWindow(e.Timing, period, rec.IndexEvent)
		if reason != "" {
			nr.Evidence = "timing indeterminate: " + reason
			return nr
		}
		inWindow := 0
		for _, f := range matched {
			if f.Date != nil && window.contains(*f.Date) {
				inWindow++
			}
		}
		if inWindow == 0 {
			nr.Evidence = fmt.Sprintf("%d matching fact(s), none dated %s", len(matched), window)
			return nr
		}
		nr.Met = true
		nr.Evidence = fmt.Sprintf("%d matching fact(s) dated %s", inWindow, window)
		return nr
	}

	nr.Met = true
	nr.Evidence = fmt.Sprintf("%d matching fact(s)", len(matched))
	return nr
}

// evalAge handles demographic age criteria: the threshold compares the
// patient's age in years at the start of the measurement period.
func evalAge(e *criteria.DataElement, rec PatientRecord, period Period) NodeResult {
	nr := NodeResult{NodeID: e.ID, Kind: criteria.KindDataElement}
	if rec.BirthDate == nil {
		nr.Evidence = "age indeterminate: birth date missing"
		return nr
	}
	age := yearsBetween(*rec.BirthDate, period.Start)
	nr.Met = compare(float64(age), e.Thresholds.Operator, e.Thresholds.Value)
	nr.Evidence = fmt.Sprintf("age %d vs %s %g", age, e.Thresholds.Operator, e.Thresholds.Value)
	return nr
}

func yearsBetween(birth, at time.Time) int {
	years := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		years--
	}
	return years
}

// codeMatches returns the facts whose category matches the element's type
// and whose code is a member of the element's code set. Code systems are
// compared only when both sides carry one.
func codeMatches(e *criteria.DataElement, facts []Fact) []Fact {
	codes := e.AllCodes()
	var out []Fact
	for _, f := range facts {
		if f.Category != e.Type {
			continue
		}
		for _, c := range codes {
			if c.Code != f.Code {
				continue
			}
			if c.System != "" && f.System != "" && c.System != f.System {
				continue
			}
			out = append(out, f)
			break
		}
	}
	return out
}

func filterThreshold(facts []Fact, th *criteria.Threshold) []Fact {
	var out []Fact
	for _, f := range facts {
		if f.Value != nil && compare(*f.Value, th.Operator, th.Value) {
			out = append(out, f)
		}
	}
	return out
}

func compare(have float64, op string, want float64) bool {
	switch op {
	case ">=":
		return have >= want
	case ">":
		return have > want
	case "<=":
		return have <= want
	case "<":
		return have < want
	case "=", "==":
		return have == want
	}
	return false
}

// window is a closed date interval; a zero bound means unbounded.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) contains(t time.Time) bool {
	if !w.start.IsZero() && t.Before(w.start) {
		return false
	}
	if !w.end.IsZero() && t.After(w.end) {
		return false
	}
	return true
}

func (w window) String() string {
	const layout = "2006-01-02"
	switch {
	case w.start.IsZero():
		return "until " + w.end.Format(layout)
	case w.end.IsZero():
		return "from " + w.start.Format(layout)
	default:
		return w.start.Format(layout) + ".." + w.end.Format(layout)
	}
}

// resolveWindow turns a timing constraint into a concrete date interval. An
// empty reason means success; a non-empty reason marks the criterion
// indeterminate (EvaluationAmbiguity, recovered as false by the caller).
func resolveWindow(t *criteria.Timing, period Period, indexEvent *time.Time) (window, string) {
	anchorStart, anchorEnd := period.Start, period.End
	switch t.Reference {
	case "", criteria.RefMeasurementPeriod:
		switch t.Position {
		case "start":
			anchorEnd = anchorStart
		case "end":
			anchorStart = anchorEnd
		}
	case criteria.RefIndexEvent:
		if indexEvent == nil {
			return window{}, "index event date not supplied with patient record"
		}
		anchorStart, anchorEnd = *indexEvent, *indexEvent
	default:
		return window{}, fmt.Sprintf("unknown timing reference %q", t.Reference)
	}

	switch t.Operator {
	case "", "during":
		return window{start: anchorStart, end: anchorEnd}, ""
	case "within":
		return window{
			start: addQuantity(anchorStart, -t.Quantity, t.Unit),
			end:   addQuantity(anchorEnd, t.Quantity, t.Unit),
		}, ""
	case "before":
		w := window{end: anchorStart}
		if t.Quantity > 0 {
			w.start = addQuantity(anchorStart, -t.Quantity, t.Unit)
		}
		return w, ""
	case "after":
		w := window{start: anchorEnd}
		if t.Quantity > 0 {
			w.end = addQuantity(anchorEnd, t.Quantity, t.Unit)
		}
		return w, ""
	}
	return window{}, fmt.Sprintf("unknown timing operator %q", t.Operator)
}

func addQuantity(t time.Time, qty float64, unit string) time.Time {
	n := int(qty)
	switch unit {
	case "year", "years":
		return t.AddDate(n, 0, 0)
	case "month", "months":
		return t.AddDate(0, n, 0)
	case "week", "weeks":
		return t.AddDate(0, 0, 7*n)
	case "day", "days", "":
		return t.AddDate(0, 0, n)
	}
	return t
}
