// Package library exposes the shared component library to the review UI:
// component CRUD, candidate matching, edit propagation ("update all"),
// forking, and usage-index repair.
package library

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/measurekit/measurekit/internal/domain/component"
	"github.com/measurekit/measurekit/internal/engine/link"
	"github.com/measurekit/measurekit/internal/engine/match"
	enginesync "github.com/measurekit/measurekit/internal/engine/sync"
	"github.com/measurekit/measurekit/pkg/criteria"
)

// MeasureSource is the slice of measure storage the library service needs:
// reading every measure's population trees and writing rewritten trees back.
// Declared here (and adapted in cmd) to avoid a circular dependency with the
// measure domain.
type MeasureSource interface {
	ListAllTrees(ctx context.Context) ([]criteria.MeasurePopulations, error)
	SaveTrees(ctx context.Context, measureID string, populations []criteria.PopulationDefinition) error
}

type Service struct {
	repo     component.ComponentRepository
	measures MeasureSource
	log      zerolog.Logger
}

func NewService(repo component.ComponentRepository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// SetMeasureSource wires the measure adapter; required for sync, fork, and
// rebuild.
func (s *Service) SetMeasureSource(ms MeasureSource) { s.measures = ms }

func (s *Service) CreateComponent(ctx context.Context, c *component.Component) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Kind == "" {
		c.Kind = component.KindAtomic
	}
	if c.Kind != component.KindAtomic && c.Kind != component.KindComposite {
		return fmt.Errorf("invalid kind: %s", c.Kind)
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Version.VersionID == "" {
		c.AppendVersion("1", component.StatusDraft, "created", time.Now().UTC())
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) GetComponent(ctx context.Context, id string) (*component.Component, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListComponents(ctx context.Context, limit, offset int) ([]*component.Component, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateStatus moves a component through its review lifecycle. Status-only
// changes keep the current version id; the transition is recorded in the
// version history.
func (s *Service) UpdateStatus(ctx context.Context, id string, status component.Status, note string) (*component.Component, error) {
	switch status {
	case component.StatusDraft, component.StatusPendingReview, component.StatusApproved, component.StatusArchived:
	default:
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Version.Status == status {
		return c, nil
	}
	now := time.Now().UTC()
	c.AppendVersion(c.Version.VersionID, status, note, now)
	c.UpdatedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("persist component %s: %w", id, err)
	}
	return c, nil
}

// Match classifies a candidate element against the current library without
// writing anything; fuzzy results are for the reviewer to accept or reject.
func (s *Service) Match(ctx context.Context, candidate *criteria.DataElement) (*match.Result, error) {
	lib, err := s.loadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	res := match.FindPrioritizeApproved(candidate, lib)
	if res.Suspicious {
		s.log.Warn().
			Str("elementId", candidate.ID).
			Str("componentId", res.Component.ID).
			Float64("similarity", res.Similarity).
			Msg("fuzzy match overlap is all generic words; needs review")
	}
	return &res, nil
}

// SyncRequest carries a component edit to propagate.
type SyncRequest struct {
	Name     *string         `json:"name,omitempty"`
	Timing   *string         `json:"timing,omitempty"`
	Negation *bool           `json:"negation,omitempty"`
	Codes    []criteria.Code `json:"codes,omitempty"`
}

func (r SyncRequest) changes() enginesync.Changes {
	return enginesync.Changes{Name: r.Name, Timing: r.Timing, Negation: r.Negation, Codes: r.Codes}
}

// Sync applies an edit to the master component and propagates it to every
// measure referencing it ("update all"). The component record itself is
// updated with the same fields plus a version bump, so library and measures
// stay consistent.
func (s *Service) Sync(ctx context.Context, componentID string, req SyncRequest) (*enginesync.Result, error) {
	if s.measures == nil {
		return nil, fmt.Errorf("measure source not configured")
	}
	lib, err := s.loadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	s.repairIfInconsistent(ctx, lib)

	measures, err := s.measures.ListAllTrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load measure trees: %w", err)
	}

	res := enginesync.ComponentToMeasures(componentID, req.changes(), lib, measures)
	if !res.Success {
		return &res, nil
	}

	for _, m := range res.UpdatedMeasures {
		if err := s.measures.SaveTrees(ctx, m.MeasureID, m.Populations); err != nil {
			return nil, fmt.Errorf("persist measure %s: %w", m.MeasureID, err)
		}
	}

	comp, _ := lib.Get(componentID)
	s.applyEdit(comp, req)
	if err := s.repo.Update(ctx, comp); err != nil {
		return nil, fmt.Errorf("persist component %s: %w", componentID, err)
	}

	s.log.Info().
		Str("componentId", componentID).
		Int("measuresUpdated", len(res.UpdatedMeasures)).
		Msg("component edit propagated")
	return &res, nil
}

func (s *Service) applyEdit(c *component.Component, req SyncRequest) {
	now := time.Now().UTC()
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Timing != nil {
		c.TimingExpression = *req.Timing
	}
	if req.Negation != nil {
		c.Negation = *req.Negation
	}
	if req.Codes != nil {
		c.Codes = append([]criteria.Code(nil), req.Codes...)
	}
	next := nextVersion(c.Version.VersionID)
	c.AppendVersion(next, c.Version.Status, "edited and propagated", now)
	c.UpdatedAt = now
}

func nextVersion(current string) string {
	n, err := strconv.Atoi(current)
	if err != nil {
		return current + ".1"
	}
	return strconv.Itoa(n + 1)
}

// Fork duplicates a component for a single measure instead of propagating an
// edit everywhere. Because fork changes linkage for a subset of measures, a
// usage rebuild runs afterwards to reconfirm the global invariant.
func (s *Service) Fork(ctx context.Context, componentID, measureID string) (*enginesync.ForkResult, error) {
	if s.measures == nil {
		return nil, fmt.Errorf("measure source not configured")
	}
	lib, err := s.loadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	measures, err := s.measures.ListAllTrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load measure trees: %w", err)
	}

	res := enginesync.Fork(componentID, measureID, lib, measures)
	if !res.Success {
		return &res, nil
	}

	if err := s.repo.Create(ctx, res.Forked); err != nil {
		return nil, fmt.Errorf("persist forked component: %w", err)
	}
	orig, _ := lib.Get(componentID)
	if err := s.repo.Update(ctx, orig); err != nil {
		return nil, fmt.Errorf("persist original component: %w", err)
	}
	if err := s.measures.SaveTrees(ctx, res.UpdatedMeasure.MeasureID, res.UpdatedMeasure.Populations); err != nil {
		return nil, fmt.Errorf("persist measure %s: %w", measureID, err)
	}

	if _, err := s.RebuildUsage(ctx); err != nil {
		return nil, fmt.Errorf("rebuild after fork: %w", err)
	}
	s.log.Info().
		Str("componentId", componentID).
		Str("forkedId", res.Forked.ID).
		Str("measureId", measureID).
		Msg("component forked")
	return &res, nil
}

// RebuildUsage recomputes the usage index from scratch and persists every
// component whose usage set or count changed. Safe to call at any time.
func (s *Service) RebuildUsage(ctx context.Context) (*link.RebuildReport, error) {
	if s.measures == nil {
		return nil, fmt.Errorf("measure source not configured")
	}
	lib, err := s.loadLibrary(ctx)
	if err != nil {
		return nil, err
	}
	measures, err := s.measures.ListAllTrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load measure trees: %w", err)
	}

	report := link.RebuildUsageIndex(lib, measures)
	for _, c := range report.ChangedComponents {
		if err := s.repo.Update(ctx, c); err != nil {
			return nil, fmt.Errorf("persist component %s: %w", c.ID, err)
		}
	}
	s.log.Info().
		Int("changed", len(report.ChangedComponents)).
		Int("droppedRefs", report.DroppedMeasureIDs).
		Msg("usage index rebuilt")
	return &report, nil
}

func (s *Service) loadLibrary(ctx context.Context) (*component.Library, error) {
	comps, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load component library: %w", err)
	}
	return component.NewLibrary(comps...), nil
}

// repairIfInconsistent forces a rebuild when any cached usage count disagrees
// with its measure-id set, so stale counts never reach sync decisions or the
// UI. The repair is logged, not surfaced.
func (s *Service) repairIfInconsistent(ctx context.Context, lib *component.Library) {
	bad := lib.InconsistentUsage()
	if len(bad) == 0 {
		return
	}
	s.log.Warn().Strs("componentIds", bad).Msg("usage invariant violated; forcing rebuild")
	measures, err := s.measures.ListAllTrees(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("rebuild aborted: cannot load measures")
		return
	}
	report := link.RebuildUsageIndex(lib, measures)
	for _, c := range report.ChangedComponents {
		if err := s.repo.Update(ctx, c); err != nil {
			s.log.Error().Err(err).Str("componentId", c.ID).Msg("rebuild persist failed")
		}
	}
}
