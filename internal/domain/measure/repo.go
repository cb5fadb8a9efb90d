package measure

import (
	"context"

	"github.com/google/uuid"
)

type MeasureRepository interface {
	Create(ctx context.Context, m *MeasureSpec) error
	GetByID(ctx context.Context, id uuid.UUID) (*MeasureSpec, error)
	Update(ctx context.Context, m *MeasureSpec) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*MeasureSpec, int, error)
	// ListAll returns every measure ordered by id, for engine operations
	// that must see the whole collection deterministically.
	ListAll(ctx context.Context) ([]*MeasureSpec, error)
}
