// Package valueset keeps the shared catalog of value sets (OID, name,
// expanded codes) extracted from ingested measures. The embedded refs inside
// criteria trees stay authoritative for evaluation; this catalog backs the
// review UI and cross-measure browsing.
package valueset

import (
	"time"

	"github.com/google/uuid"

	"github.com/measurekit/measurekit/pkg/criteria"
)

// ValueSet maps to the value_set table. OID is unique.
type ValueSet struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	OID       string          `db:"oid" json:"oid"`
	Name      string          `db:"name" json:"name"`
	Codes     []criteria.Code `db:"codes" json:"codes"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Ref converts the stored value set back to the embedded form.
func (vs *ValueSet) Ref() criteria.ValueSetRef {
	return criteria.ValueSetRef{OID: vs.OID, Name: vs.Name, Codes: vs.Codes}
}
