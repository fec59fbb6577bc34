package repository

import (
	"context"
	"sort"
	"sync"

	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
)

// InMemoryRunRepository keeps runs for the lifetime of the process.
type InMemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]model.ExportRun
}

// NewInMemoryRunRepository creates an empty repository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{runs: make(map[string]model.ExportRun)}
}

func (r *InMemoryRunRepository) SaveRun(ctx context.Context, run *model.ExportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *InMemoryRunRepository) UpdateRun(ctx context.Context, run *model.ExportRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *InMemoryRunRepository) FindRuns(ctx context.Context, batchName, runDate string) ([]*model.ExportRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.ExportRun
	for _, run := range r.runs {
		if run.BatchName == batchName && run.RunDate == runDate {
			run := run
			out = append(out, &run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *InMemoryRunRepository) LatestVersion(ctx context.Context, batchName, runDate string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	latest := 0
	for _, run := range r.runs {
		if run.BatchName == batchName && run.RunDate == runDate && run.Version > latest {
			latest = run.Version
		}
	}
	return latest, nil
}

func (r *InMemoryRunRepository) Close() error { return nil }

var _ RunRepository = (*InMemoryRunRepository)(nil)
