package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storycast/model"
)

// JobRepository 任务持久化接口
type JobRepository interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// ClaimJob 将 pending 任务原子置为 processing。
	// 返回 false 表示任务已被其他 worker 认领或状态不符。
	ClaimJob(ctx context.Context, id string) (bool, error)
	CompleteJob(ctx context.Context, job *model.Job) error
	FailJob(ctx context.Context, id string, errMsg string) error
	ListPendingJobs(ctx context.Context, limit int) ([]*model.Job, error)
	// FindActiveJob 查找同一生成键下未结束的任务，用于去重。
	FindActiveJob(ctx context.Context, key model.GenerationKey) (*model.Job, error)
}

type mysqlJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository 创建MySQL任务仓库
func NewMySQLJobRepository(db *sql.DB) JobRepository {
	return &mysqlJobRepository{db: db}
}

func (r *mysqlJobRepository) CreateJob(ctx context.Context, job *model.Job) error {
	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	query := `INSERT INTO jobs (id, world, owner_id, language, variant, status, segments, file_count, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.Key.World, job.Key.OwnerID, job.Key.Language, job.Key.Variant,
		job.Status, segments, job.FileCount, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (r *mysqlJobRepository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT id, world, owner_id, language, variant, status, segments, file_count,
	                 program_url, manifest, error_message, created_at, started_at, completed_at
	          FROM jobs WHERE id = ?`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id))
}

func (r *mysqlJobRepository) ClaimJob(ctx context.Context, id string) (bool, error) {
	query := `UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, model.JobStatusProcessing, time.Now(), id, model.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return rows == 1, nil
}

func (r *mysqlJobRepository) CompleteJob(ctx context.Context, job *model.Job) error {
	var manifest []byte
	if job.Manifest != nil {
		var err error
		manifest, err = json.Marshal(job.Manifest)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest: %w", err)
		}
	}

	query := `UPDATE jobs SET status = ?, program_url = ?, manifest = ?, completed_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, model.JobStatusCompleted, job.ProgramURL, manifest, time.Now(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (r *mysqlJobRepository) FailJob(ctx context.Context, id string, errMsg string) error {
	query := `UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, model.JobStatusFailed, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (r *mysqlJobRepository) ListPendingJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	query := `SELECT id, world, owner_id, language, variant, status, segments, file_count,
	                 program_url, manifest, error_message, created_at, started_at, completed_at
	          FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, model.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *mysqlJobRepository) FindActiveJob(ctx context.Context, key model.GenerationKey) (*model.Job, error) {
	query := `SELECT id, world, owner_id, language, variant, status, segments, file_count,
	                 program_url, manifest, error_message, created_at, started_at, completed_at
	          FROM jobs
	          WHERE world = ? AND owner_id = ? AND language = ? AND variant = ?
	            AND status IN (?, ?)
	          ORDER BY created_at DESC LIMIT 1`
	return r.scanJob(r.db.QueryRowContext(ctx, query,
		key.World, key.OwnerID, key.Language, key.Variant,
		model.JobStatusPending, model.JobStatusProcessing))
}

// rowScanner 兼容 *sql.Row 与 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *mysqlJobRepository) scanJob(row rowScanner) (*model.Job, error) {
	var (
		job       model.Job
		segments  []byte
		manifest  []byte
		errMsg    sql.NullString
		started   sql.NullTime
		completed sql.NullTime
	)

	err := row.Scan(&job.ID, &job.Key.World, &job.Key.OwnerID, &job.Key.Language, &job.Key.Variant,
		&job.Status, &segments, &job.FileCount, &job.ProgramURL, &manifest,
		&errMsg, &job.CreatedAt, &started, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal(segments, &job.Segments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
	}
	if len(manifest) > 0 {
		job.Manifest = &model.ProgramManifest{}
		if err := json.Unmarshal(manifest, job.Manifest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
		}
	}
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
