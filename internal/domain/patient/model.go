// Package patient stores synthetic patient records: named fact bags used to
// exercise a measure's criteria trees through the evaluator.
package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/measurekit/measurekit/internal/engine/eval"
)

// Patient maps to the synthetic_patient table. Facts is stored as JSONB.
type Patient struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description *string     `db:"description" json:"description,omitempty"`
	BirthDate   *time.Time  `db:"birth_date" json:"birth_date,omitempty"`
	IndexEvent  *time.Time  `db:"index_event" json:"index_event,omitempty"`
	Facts       []eval.Fact `db:"facts" json:"facts"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Record converts the stored patient into the evaluator's input shape.
func (p *Patient) Record() eval.PatientRecord {
	return eval.PatientRecord{
		PatientID:  p.ID.String(),
		BirthDate:  p.BirthDate,
		IndexEvent: p.IndexEvent,
		Facts:      p.Facts,
	}
}
