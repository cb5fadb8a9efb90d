package component

import "context"

type ComponentRepository interface {
	Create(ctx context.Context, c *Component) error
	GetByID(ctx context.Context, id string) (*Component, error)
	Update(ctx context.Context, c *Component) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Component, int, error)
	// ListAll returns every component ordered by creation time then id —
	// the insertion order the matcher's tie-break relies on.
	ListAll(ctx context.Context) ([]*Component, error)
}
