package repository

import (
	"context"
	"sync"
	"time"

	"storycast/model"
)

// MemoryJobRepository 内存任务仓库，用于测试和本地运行
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*model.Job)}
}

func (r *MemoryJobRepository) CreateJob(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *MemoryJobRepository) GetJob(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	clone := *job
	return &clone, nil
}

func (r *MemoryJobRepository) ClaimJob(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != model.JobStatusPending {
		return false, nil
	}
	now := time.Now()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	return true, nil
}

func (r *MemoryJobRepository) CompleteJob(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return nil
	}
	now := time.Now()
	stored.Status = model.JobStatusCompleted
	stored.ProgramURL = job.ProgramURL
	stored.Manifest = job.Manifest
	stored.CompletedAt = &now
	return nil
}

func (r *MemoryJobRepository) FailJob(_ context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[id]
	if !ok {
		return nil
	}
	now := time.Now()
	stored.Status = model.JobStatusFailed
	stored.ErrorMessage = errMsg
	stored.CompletedAt = &now
	return nil
}

func (r *MemoryJobRepository) ListPendingJobs(_ context.Context, limit int) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*model.Job
	for _, job := range r.jobs {
		if job.Status != model.JobStatusPending {
			continue
		}
		clone := *job
		jobs = append(jobs, &clone)
		if len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (r *MemoryJobRepository) FindActiveJob(_ context.Context, key model.GenerationKey) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Key == key && !job.Status.Terminal() {
			clone := *job
			return &clone, nil
		}
	}
	return nil, nil
}
