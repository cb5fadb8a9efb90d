// Package component holds the shared library of reusable criteria
// components: the authoritative ("master") copy of fields that measures
// reference through DataElement.LibraryComponentID back-references.
package component

import (
	"sort"
	"time"

	"github.com/measurekit/measurekit/internal/engine/identity"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// Kind discriminates the two component variants.
type Kind string

const (
	KindAtomic    Kind = "atomic"
	KindComposite Kind = "composite"
)

// Status is a component's review lifecycle state.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusArchived      Status = "archived"
)

// ChildRef points a composite component at one of its children.
type ChildRef struct {
	ComponentID string `json:"componentId"`
	VersionID   string `json:"versionId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// VersionEntry is one append-only history record.
type VersionEntry struct {
	VersionID string    `json:"versionId"`
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
	Note      string    `json:"note,omitempty"`
}

// VersionInfo carries the current version plus its append-only history.
type VersionInfo struct {
	VersionID string         `json:"versionId"`
	Status    Status         `json:"status"`
	History   []VersionEntry `json:"history,omitempty"`
}

// Usage is the usage index entry for one component. MeasureIDs has set
// semantics (sorted, no duplicates) so that "add if absent" is idempotent,
// and UsageCount must equal len(MeasureIDs) at all times. Every write path
// goes through AddMeasure/RemoveMeasure to keep the two in lockstep; only
// the rebuild routine overwrites them wholesale.
type Usage struct {
	MeasureIDs []string `json:"measureIds"`
	UsageCount int      `json:"usageCount"`
}

// Has reports whether the measure already references the component.
func (u *Usage) Has(measureID string) bool {
	for _, id := range u.MeasureIDs {
		if id == measureID {
			return true
		}
	}
	return false
}

// AddMeasure adds a measure id if absent and recounts. It reports whether
// the set changed.
func (u *Usage) AddMeasure(measureID string) bool {
	if measureID == "" || u.Has(measureID) {
		return false
	}
	u.MeasureIDs = append(u.MeasureIDs, measureID)
	sort.Strings(u.MeasureIDs)
	u.UsageCount = len(u.MeasureIDs)
	return true
}

// RemoveMeasure removes a measure id if present and recounts. It reports
// whether the set changed.
func (u *Usage) RemoveMeasure(measureID string) bool {
	for i, id := range u.MeasureIDs {
		if id == measureID {
			u.MeasureIDs = append(u.MeasureIDs[:i], u.MeasureIDs[i+1:]...)
			u.UsageCount = len(u.MeasureIDs)
			return true
		}
	}
	return false
}

// Replace overwrites the set and count together from a rebuilt index.
func (u *Usage) Replace(measureIDs []string) {
	ids := make([]string, len(measureIDs))
	copy(ids, measureIDs)
	sort.Strings(ids)
	u.MeasureIDs = ids
	u.UsageCount = len(ids)
}

// Consistent reports whether the cached count matches the set.
func (u *Usage) Consistent() bool {
	return u.UsageCount == len(u.MeasureIDs)
}

// Component is the tagged union of an atomic component (single value set +
// timing + negation) and a composite component (operator over child
// references). The union is a kind field rather than subtypes; the few
// functions that care switch on Kind explicitly.
type Component struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`

	// Atomic fields.
	OID              string          `json:"oid,omitempty"`
	ValueSetName     string          `json:"valueSetName,omitempty"`
	TimingExpression string          `json:"timingExpression,omitempty"`
	Negation         bool            `json:"negation,omitempty"`
	Codes            []criteria.Code `json:"codes,omitempty"`

	// Composite fields.
	Operator criteria.Operator `json:"operator,omitempty"`
	Children []ChildRef        `json:"children,omitempty"`

	Complexity int         `json:"complexity"`
	Version    VersionInfo `json:"versionInfo"`
	Usage      Usage       `json:"usage"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IdentityKey returns the component's dedup key. Only atomic components are
// identity-matched; composites return "" and are never matched by hash.
func (c *Component) IdentityKey() string {
	if c.Kind != KindAtomic {
		return ""
	}
	return identity.Compute(c.OID, c.TimingExpression, c.Negation)
}

// AppendVersion records a new version entry and moves the current pointer.
func (c *Component) AppendVersion(versionID string, status Status, note string, at time.Time) {
	c.Version.History = append(c.Version.History, VersionEntry{
		VersionID: versionID,
		Status:    status,
		ChangedAt: at,
		Note:      note,
	})
	c.Version.VersionID = versionID
	c.Version.Status = status
}

// Clone returns a deep copy of the component.
func (c *Component) Clone() *Component {
	dup := *c
	dup.Codes = append([]criteria.Code(nil), c.Codes...)
	dup.Children = append([]ChildRef(nil), c.Children...)
	dup.Version.History = append([]VersionEntry(nil), c.Version.History...)
	dup.Usage.MeasureIDs = append([]string(nil), c.Usage.MeasureIDs...)
	return &dup
}
