package link

import (
	"testing"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/pkg/criteria"
)

func measureWith(measureID string, elems ...*criteria.DataElement) criteria.MeasurePopulations {
	return criteria.MeasurePopulations{
		MeasureID:   measureID,
		Populations: singlePopulation(elems...),
	}
}

func TestRebuildUsageIndexRepairsStaleEntries(t *testing.T) {
	c := &component.Component{ID: "c1", Kind: component.KindAtomic, Name: "Diabetes", OID: "1.2.3"}
	// Usage claims two measures; only one still references the component.
	c.Usage.Replace([]string{"measure-1", "deleted-measure"})
	lib := component.NewLibrary(c)

	e := diagElement("e1", "1.2.3", "Diabetes")
	e.LibraryComponentID = "c1"
	report := RebuildUsageIndex(lib, []criteria.MeasurePopulations{measureWith("measure-1", e)})

	if len(report.ChangedComponents) != 1 {
		t.Fatalf("changed = %d, want 1", len(report.ChangedComponents))
	}
	if report.DroppedMeasureIDs != 1 {
		t.Errorf("dropped = %d, want 1", report.DroppedMeasureIDs)
	}
	if got := c.Usage.MeasureIDs; len(got) != 1 || got[0] != "measure-1" {
		t.Errorf("usage after rebuild = %v, want [measure-1]", got)
	}
	if !c.Usage.Consistent() {
		t.Errorf("rebuild left usage inconsistent")
	}
}

func TestRebuildUsageIndexRepairsCountMismatch(t *testing.T) {
	c := &component.Component{ID: "c1", Kind: component.KindAtomic, OID: "1.2.3"}
	c.Usage.MeasureIDs = []string{"measure-1"}
	c.Usage.UsageCount = 7 // corrupted by a bypassing write

	lib := component.NewLibrary(c)
	e := diagElement("e1", "1.2.3", "Diabetes")
	e.LibraryComponentID = "c1"

	report := RebuildUsageIndex(lib, []criteria.MeasurePopulations{measureWith("measure-1", e)})
	if len(report.ChangedComponents) != 1 {
		t.Fatalf("count-only corruption not repaired")
	}
	if c.Usage.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", c.Usage.UsageCount)
	}
}

func TestRebuildUsageIndexFollowsIdentityForUnlinked(t *testing.T) {
	c := &component.Component{ID: "c1", Kind: component.KindAtomic, OID: "1.2.3",
		TimingExpression: "during measurement period"}
	lib := component.NewLibrary(c)

	// Element matches by identity but was never linked.
	e := diagElement("e1", "1.2.3", "Diabetes")
	report := RebuildUsageIndex(lib, []criteria.MeasurePopulations{measureWith("measure-9", e)})

	if len(report.ChangedComponents) != 1 {
		t.Fatalf("identity-matched unlinked element not counted")
	}
	if !c.Usage.Has("measure-9") {
		t.Errorf("usage missing measure-9")
	}
}

func TestRebuildUsageIndexNoOpWhenConsistent(t *testing.T) {
	c := &component.Component{ID: "c1", Kind: component.KindAtomic, OID: "1.2.3",
		TimingExpression: "during measurement period"}
	c.Usage.Replace([]string{"measure-1"})
	lib := component.NewLibrary(c)

	e := diagElement("e1", "1.2.3", "Diabetes")
	e.LibraryComponentID = "c1"
	report := RebuildUsageIndex(lib, []criteria.MeasurePopulations{measureWith("measure-1", e)})

	if len(report.ChangedComponents) != 0 || report.DroppedMeasureIDs != 0 {
		t.Errorf("consistent index reported changes: %+v", report)
	}
}
