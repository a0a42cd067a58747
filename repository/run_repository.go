package repository

import (
	"context"

	"storycast/db"

	"gorm.io/gorm"
)

// RunRepository 流水线执行历史仓库
type RunRepository interface {
	RecordRun(ctx context.Context, run *db.ProgramRun) error
	RecentRuns(ctx context.Context, ownerID string, limit int) ([]db.ProgramRun, error)
}

type gormRunRepository struct {
	db *gorm.DB
}

func NewGormRunRepository(g *gorm.DB) RunRepository {
	return &gormRunRepository{db: g}
}

func (r *gormRunRepository) RecordRun(ctx context.Context, run *db.ProgramRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *gormRunRepository) RecentRuns(ctx context.Context, ownerID string, limit int) ([]db.ProgramRun, error) {
	var runs []db.ProgramRun
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
