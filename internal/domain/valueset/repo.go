package valueset

import "context"

type ValueSetRepository interface {
	Upsert(ctx context.Context, vs *ValueSet) error
	GetByOID(ctx context.Context, oid string) (*ValueSet, error)
	List(ctx context.Context, limit, offset int) ([]*ValueSet, int, error)
}
