package valueset

import (
	"context"
	"fmt"

	"github.com/measurekit/measurekit/pkg/criteria"
)

type Service struct {
	repo ValueSetRepository
}

func NewService(repo ValueSetRepository) *Service {
	return &Service{repo: repo}
}

// UpsertRef stores or refreshes a value set from an embedded reference.
// Implements measure.ValueSetStore.
func (s *Service) UpsertRef(ctx context.Context, ref criteria.ValueSetRef) error {
	if ref.OID == "" {
		return fmt.Errorf("value set has no oid")
	}
	name := ref.Name
	if name == "" {
		name = ref.OID
	}
	return s.repo.Upsert(ctx, &ValueSet{OID: ref.OID, Name: name, Codes: ref.Codes})
}

func (s *Service) GetByOID(ctx context.Context, oid string) (*ValueSet, error) {
	return s.repo.GetByOID(ctx, oid)
}

func (s *Service) ListValueSets(ctx context.Context, limit, offset int) ([]*ValueSet, int, error) {
	return s.repo.List(ctx, limit, offset)
}
