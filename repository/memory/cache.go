package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

type ProjectRepo struct {
	mu   sync.RWMutex
	byID map[int64]*entity.Project
}

func NewProjectRepo() *ProjectRepo {
	return &ProjectRepo{byID: make(map[int64]*entity.Project)}
}

func cloneProject(p *entity.Project) *entity.Project {
	c := *p
	c.Images = append([]string(nil), p.Images...)
	c.DeletedAt = copyTime(p.DeletedAt)
	return &c
}

func (r *ProjectRepo) get(id int64) *entity.Project {
	p, ok := r.byID[id]
	if !ok || p.DeletedAt != nil {
		return nil
	}
	return p
}

func (r *ProjectRepo) Get(_ context.Context, projectID int64) (*entity.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p := r.get(projectID); p != nil {
		return cloneProject(p), nil
	}
	return nil, nil
}

func (r *ProjectRepo) MergeLedger(_ context.Context, l *entity.ProjectLedger, syncedAt time.Time) (*entity.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[l.ProjectID]
	if !ok {
		p = &entity.Project{Images: []string{}, CreatedAt: syncedAt}
		r.byID[l.ProjectID] = p
	}
	p.ProjectLedger = *l
	p.LastSyncedAt = syncedAt
	p.IsCacheValid = true
	return cloneProject(p), nil
}

func (r *ProjectRepo) UpdateMetadata(_ context.Context, projectID int64, m entity.ProjectMetadata) (*entity.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.get(projectID)
	if p == nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "ProjectRepo.UpdateMetadata", "project %d not found", projectID)
	}
	if m.Description != nil {
		p.Description = *m.Description
	}
	if m.Images != nil {
		p.Images = append([]string(nil), m.Images...)
	}
	if m.DetailedSpecifications != nil {
		p.DetailedSpecifications = *m.DetailedSpecifications
	}
	return cloneProject(p), nil
}

func (r *ProjectRepo) List(_ context.Context, f entity.ProjectFilter) ([]*entity.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Project
	for _, p := range r.byID {
		if p.DeletedAt == nil && f.Match(p) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (r *ProjectRepo) ListIDs(_ context.Context) ([]int64, error) {
	return r.ids(func(*entity.Project) bool { return true }), nil
}

func (r *ProjectRepo) ListStale(_ context.Context, before time.Time) ([]int64, error) {
	return r.ids(func(p *entity.Project) bool { return p.LastSyncedAt.Before(before) }), nil
}

func (r *ProjectRepo) ids(keep func(*entity.Project) bool) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int64
	for id, p := range r.byID {
		if p.DeletedAt == nil && keep(p) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type PositionRepo struct {
	mu    sync.RWMutex
	byKey map[string]*entity.Position
}

func NewPositionRepo() *PositionRepo {
	return &PositionRepo{byKey: make(map[string]*entity.Position)}
}

func clonePosition(p *entity.Position) *entity.Position {
	c := *p
	c.PurchasedAt = copyTime(p.PurchasedAt)
	c.DeletedAt = copyTime(p.DeletedAt)
	return &c
}

func (r *PositionRepo) Get(_ context.Context, address string, projectID int64) (*entity.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[entity.PositionKey(address, projectID)]
	if !ok || p.DeletedAt != nil {
		return nil, nil
	}
	return clonePosition(p), nil
}

func (r *PositionRepo) MergeLedger(_ context.Context, l *entity.PositionLedger, syncedAt time.Time) (*entity.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entity.PositionKey(l.WalletAddress, l.ProjectID)
	p, ok := r.byKey[key]
	if !ok {
		p = &entity.Position{ID: key}
		r.byKey[key] = p
	}
	p.PositionLedger = *l
	p.LastSyncedAt = syncedAt
	p.IsCacheValid = true
	return clonePosition(p), nil
}

func (r *PositionRepo) SetPurchasedAt(_ context.Context, address string, projectID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entity.PositionKey(address, projectID)
	p, ok := r.byKey[key]
	if !ok {
		p = &entity.Position{
			ID:             key,
			PositionLedger: entity.PositionLedger{WalletAddress: address, ProjectID: projectID},
		}
		r.byKey[key] = p
	}
	if p.PurchasedAt == nil {
		p.PurchasedAt = &at
	}
	return nil
}

func (r *PositionRepo) ListKeys(_ context.Context) ([]string, error) {
	return r.keys(func(*entity.Position) bool { return true }), nil
}

func (r *PositionRepo) ListStale(_ context.Context, before time.Time) ([]string, error) {
	return r.keys(func(p *entity.Position) bool { return p.LastSyncedAt.Before(before) }), nil
}

func (r *PositionRepo) keys(keep func(*entity.Position) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k, p := range r.byKey {
		if p.DeletedAt == nil && keep(p) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
