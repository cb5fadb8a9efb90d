package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/engine/eval"
	"github.com/measurekit/measurekit/internal/engine/link"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// ComponentStore is the slice of the component repository the measure
// service needs for linking. Declared here to keep the dependency one-way.
type ComponentStore interface {
	ListAll(ctx context.Context) ([]*component.Component, error)
	Create(ctx context.Context, c *component.Component) error
	Update(ctx context.Context, c *component.Component) error
}

// PatientStore resolves synthetic patient records for evaluation runs.
type PatientStore interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*eval.PatientRecord, error)
}

// ValueSetStore receives the value-set catalog extracted with a measure.
type ValueSetStore interface {
	UpsertRef(ctx context.Context, ref criteria.ValueSetRef) error
}

type Service struct {
	repo       MeasureRepository
	components ComponentStore
	patients   PatientStore
	valueSets  ValueSetStore
	log        zerolog.Logger
}

func NewService(repo MeasureRepository, components ComponentStore, patients PatientStore, log zerolog.Logger) *Service {
	return &Service{repo: repo, components: components, patients: patients, log: log}
}

// SetValueSetStore wires the optional value-set catalog sink.
func (s *Service) SetValueSetStore(vs ValueSetStore) { s.valueSets = vs }

var validStatuses = map[string]bool{
	"draft": true, "active": true, "retired": true,
}

func (s *Service) CreateMeasure(ctx context.Context, m *MeasureSpec) error {
	if m.Status == "" {
		m.Status = "draft"
	}
	if !validStatuses[m.Status] {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	for _, pop := range m.Populations {
		if pop.Criteria != nil && criteria.HasCycle(pop.Root()) {
			return fmt.Errorf("population %s: criteria tree contains a cycle", pop.Type)
		}
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}
	m.VersionID = 1
	s.upsertValueSets(ctx, m)
	return nil
}

// upsertValueSets feeds the measure's value-set catalog into the shared
// value-set store. Failures are logged, not fatal: the catalog is a
// convenience copy, the embedded refs stay authoritative for evaluation.
func (s *Service) upsertValueSets(ctx context.Context, m *MeasureSpec) {
	if s.valueSets == nil {
		return
	}
	seen := map[string]bool{}
	refs := append([]criteria.ValueSetRef{}, m.ValueSets...)
	for _, pop := range m.Populations {
		if pop.Criteria == nil {
			continue
		}
		for _, elem := range criteria.CollectLeaves(pop.Root()) {
			if elem.ValueSet != nil && elem.ValueSet.OID != "" {
				refs = append(refs, *elem.ValueSet)
			}
		}
	}
	for _, ref := range refs {
		if ref.OID == "" || seen[ref.OID] {
			continue
		}
		seen[ref.OID] = true
		if err := s.valueSets.UpsertRef(ctx, ref); err != nil {
			s.log.Warn().Err(err).Str("oid", ref.OID).Msg("value set upsert failed")
		}
	}
}

func (s *Service) GetMeasure(ctx context.Context, id uuid.UUID) (*MeasureSpec, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateMeasure(ctx context.Context, m *MeasureSpec) error {
	if m.Status != "" && !validStatuses[m.Status] {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	for _, pop := range m.Populations {
		if pop.Criteria != nil && criteria.HasCycle(pop.Root()) {
			return fmt.Errorf("population %s: criteria tree contains a cycle", pop.Type)
		}
	}
	return s.repo.Update(ctx, m)
}

func (s *Service) DeleteMeasure(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListMeasures(ctx context.Context, limit, offset int) ([]*MeasureSpec, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// LinkComponents runs the library linker for one measure: loads the whole
// component library, links every linkable element, and persists new and
// updated components plus the measure's rewritten back-references. Rerunning
// with no tree changes persists nothing new.
func (s *Service) LinkComponents(ctx context.Context, measureID uuid.UUID) (*link.Result, error) {
	m, err := s.repo.GetByID(ctx, measureID)
	if err != nil {
		return nil, fmt.Errorf("measure not found: %w", err)
	}
	comps, err := s.components.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load component library: %w", err)
	}
	lib := component.NewLibrary(comps...)

	if bad := lib.InconsistentUsage(); len(bad) > 0 {
		// Inconsistent cached counts are repaired before any linking writes
		// so the invariant never propagates into results.
		s.log.Warn().Strs("componentIds", bad).Msg("usage index inconsistent; rebuilding before link")
		all, err := s.repo.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load measures for rebuild: %w", err)
		}
		report := link.RebuildUsageIndex(lib, trees(all))
		if err := s.persistComponents(ctx, nil, report.ChangedComponents); err != nil {
			return nil, err
		}
	}

	res := link.MeasureComponents(m.ID.String(), m.Populations, lib)

	if err := s.persistComponents(ctx, res.NewComponents, res.UpdatedComponents); err != nil {
		return nil, err
	}
	if len(res.LinkMap) > 0 {
		if err := s.repo.Update(ctx, m); err != nil {
			return nil, fmt.Errorf("persist measure links: %w", err)
		}
	}
	s.log.Info().
		Str("measureId", m.ID.String()).
		Int("linked", len(res.LinkMap)).
		Int("created", len(res.NewComponents)).
		Int("updated", len(res.UpdatedComponents)).
		Int("skipped", res.SkippedElements).
		Msg("component linking complete")
	return &res, nil
}

func (s *Service) persistComponents(ctx context.Context, created, updated []*component.Component) error {
	for _, c := range created {
		if err := s.components.Create(ctx, c); err != nil {
			return fmt.Errorf("persist new component %s: %w", c.ID, err)
		}
	}
	for _, c := range updated {
		if err := s.components.Update(ctx, c); err != nil {
			return fmt.Errorf("persist component %s: %w", c.ID, err)
		}
	}
	return nil
}

// Evaluate runs the patient evaluator for one measure and one synthetic
// patient. The trace is returned to the caller and never persisted.
func (s *Service) Evaluate(ctx context.Context, measureID, patientID uuid.UUID) (*eval.Trace, error) {
	m, err := s.repo.GetByID(ctx, measureID)
	if err != nil {
		return nil, fmt.Errorf("measure not found: %w", err)
	}
	rec, err := s.patients.GetRecord(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient not found: %w", err)
	}
	return eval.Evaluate(m.Trees(), *rec, s.period(m)), nil
}

// period resolves the measurement period, defaulting to the current
// calendar year when the measure does not pin one.
func (s *Service) period(m *MeasureSpec) eval.Period {
	if m.PeriodStart != nil && m.PeriodEnd != nil {
		return eval.Period{Start: *m.PeriodStart, End: *m.PeriodEnd}
	}
	year := time.Now().UTC().Year()
	return eval.Period{
		Start: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC),
	}
}

func trees(measures []*MeasureSpec) []criteria.MeasurePopulations {
	out := make([]criteria.MeasurePopulations, len(measures))
	for i, m := range measures {
		out[i] = m.Trees()
	}
	return out
}
